// Package broadcast defines how a transform record leaves the process and keeps a registry of
// the drivers that can carry it.
package broadcast

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/pubtf/config"
	"go.viam.com/pubtf/logging"
	"go.viam.com/pubtf/referenceframe"
)

// A Broadcaster delivers transform records to subscribers. Delivery is complete once the
// underlying transport has accepted the record.
type Broadcaster interface {
	Broadcast(ctx context.Context, tr referenceframe.TransformRecord) error
	Close(ctx context.Context) error
}

// A Constructor builds a named broadcaster from the loaded config.
type Constructor func(ctx context.Context, cfg config.Config, logger logging.Logger) (Broadcaster, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a broadcaster available by name. It panics if name is empty, already taken or
// the constructor is nil.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if name == "" {
		panic(errors.New("cannot register a broadcaster without a name"))
	}
	if constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for broadcaster %q", name))
	}
	if _, old := registry[name]; old {
		panic(errors.Errorf("trying to register two broadcasters with the same name %q", name))
	}
	registry[name] = constructor
}

// Registered returns the sorted names of every registered broadcaster.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// New constructs the broadcaster registered under name.
func New(ctx context.Context, name string, cfg config.Config, logger logging.Logger) (Broadcaster, error) {
	registryMu.RLock()
	constructor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown broadcaster %q (available: %s)", name, strings.Join(Registered(), ", "))
	}
	b, err := constructor(ctx, cfg, logger.Sublogger(name))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create broadcaster %q", name)
	}
	return b, nil
}

type outputKey struct{}

// WithOutput returns a context carrying w as the output for broadcasters that write to a stream.
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

// OutputFrom returns the writer set by WithOutput, or os.Stdout.
func OutputFrom(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(outputKey{}).(io.Writer); ok && w != nil {
		return w
	}
	return os.Stdout
}
