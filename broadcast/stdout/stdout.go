// Package stdout broadcasts transforms as newline delimited JSON, one TransformStamped per line.
package stdout

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/pubtf/broadcast"
	"go.viam.com/pubtf/config"
	"go.viam.com/pubtf/logging"
	"go.viam.com/pubtf/referenceframe"
	"go.viam.com/pubtf/ros"
)

// Name is the registered name of this broadcaster.
const Name = "stdout"

func init() {
	broadcast.Register(Name, func(ctx context.Context, cfg config.Config, logger logging.Logger) (broadcast.Broadcaster, error) {
		return NewBroadcaster(broadcast.OutputFrom(ctx), logger), nil
	})
}

// Broadcaster writes each record to a writer.
type Broadcaster struct {
	logger logging.Logger

	mu     sync.Mutex
	enc    *json.Encoder
	closed bool
}

// NewBroadcaster returns a broadcaster writing to w.
func NewBroadcaster(w io.Writer, logger logging.Logger) *Broadcaster {
	return &Broadcaster{logger: logger, enc: json.NewEncoder(w)}
}

// Broadcast writes tr as a single JSON line.
func (b *Broadcaster) Broadcast(ctx context.Context, tr referenceframe.TransformRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("stdout broadcaster is closed")
	}
	if err := b.enc.Encode(ros.TransformStampedFromRecord(tr)); err != nil {
		return errors.Wrap(err, "cannot write transform")
	}
	b.logger.Debugw("broadcast transform", "topic", ros.TopicFor(tr), "child", tr.Child())
	return nil
}

// Close stops further writes. The writer itself is left open.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
