package broadcast

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"

	"go.viam.com/pubtf/config"
	"go.viam.com/pubtf/logging"
	"go.viam.com/pubtf/referenceframe"
	"go.viam.com/pubtf/spatialmath"
	"go.viam.com/pubtf/testutils/inject"
)

func deregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

func testRecord(t *testing.T) referenceframe.TransformRecord {
	t.Helper()
	tr, err := referenceframe.NewTransformRecord(
		referenceframe.ParentFrame,
		referenceframe.ChildFrame,
		r3.Vector{X: 1, Y: 2, Z: 3},
		&spatialmath.EulerAngles{Yaw: 0.5},
		time.Unix(10, 0),
	)
	test.That(t, err, test.ShouldBeNil)
	return tr
}

func TestRegistry(t *testing.T) {
	logger := logging.NewTestLogger(t)
	fake := &inject.Broadcaster{}
	var gotCfg config.Config
	Register("fake", func(ctx context.Context, cfg config.Config, logger logging.Logger) (Broadcaster, error) {
		gotCfg = cfg
		return fake, nil
	})
	defer deregister("fake")

	test.That(t, Registered(), test.ShouldContain, "fake")

	cfg := config.Default()
	cfg.ChildFrame = "turtle"
	b, err := New(context.Background(), "fake", cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldEqual, fake)
	test.That(t, gotCfg.ChildFrame, test.ShouldEqual, "turtle")

	_, err = New(context.Background(), "missing", cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown broadcaster "missing"`)
	test.That(t, err.Error(), test.ShouldContainSubstring, "fake")
}

func TestRegistryConstructorError(t *testing.T) {
	errBoom := errors.New("boom")
	Register("broken", func(ctx context.Context, cfg config.Config, logger logging.Logger) (Broadcaster, error) {
		return nil, errBoom
	})
	defer deregister("broken")

	_, err := New(context.Background(), "broken", config.Default(), logging.NewTestLogger(t))
	test.That(t, errors.Is(err, errBoom), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, `cannot create broadcaster "broken"`)
}

func TestRegisterPanics(t *testing.T) {
	constructor := func(ctx context.Context, cfg config.Config, logger logging.Logger) (Broadcaster, error) {
		return &inject.Broadcaster{}, nil
	}
	Register("twice", constructor)
	defer deregister("twice")

	test.That(t, func() { Register("twice", constructor) }, test.ShouldPanic)
	test.That(t, func() { Register("", constructor) }, test.ShouldPanic)
	test.That(t, func() { Register("nil", nil) }, test.ShouldPanic)
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)

	errDown := errors.New("transport down")
	fail := false
	fake := &inject.Broadcaster{
		BroadcastFunc: func(ctx context.Context, tr referenceframe.TransformRecord) error {
			if fail {
				return errDown
			}
			return nil
		},
	}
	b := metrics.Instrument("fake", fake)
	tr := testRecord(t)

	test.That(t, b.Broadcast(context.Background(), tr), test.ShouldBeNil)
	test.That(t, b.Broadcast(context.Background(), tr), test.ShouldBeNil)
	fail = true
	test.That(t, b.Broadcast(context.Background(), tr), test.ShouldEqual, errDown)

	test.That(t, testutil.ToFloat64(metrics.Counter("fake", true)), test.ShouldEqual, float64(2))
	test.That(t, testutil.ToFloat64(metrics.Counter("fake", false)), test.ShouldEqual, float64(1))
	test.That(t, len(fake.Published()), test.ShouldEqual, 2)

	test.That(t, b.Close(context.Background()), test.ShouldBeNil)
	test.That(t, fake.CloseCalls(), test.ShouldEqual, 1)

	// Registering again on the same registry shares the counters.
	again, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, testutil.ToFloat64(again.Counter("fake", true)), test.ShouldEqual, float64(2))
	count, err := testutil.GatherAndCount(reg, "pubtf_transforms_broadcast_total")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, count, test.ShouldEqual, 2)
}

func TestOutput(t *testing.T) {
	test.That(t, OutputFrom(context.Background()), test.ShouldEqual, os.Stdout)

	var buf bytes.Buffer
	ctx := WithOutput(context.Background(), &buf)
	test.That(t, OutputFrom(ctx), test.ShouldEqual, &buf)
	test.That(t, OutputFrom(WithOutput(ctx, nil)), test.ShouldEqual, os.Stdout)
}
