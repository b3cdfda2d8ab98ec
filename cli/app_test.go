package cli

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	urfave "github.com/urfave/cli/v2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pubtf/broadcast"
	"go.viam.com/pubtf/broadcast/stdout"
	"go.viam.com/pubtf/config"
	"go.viam.com/pubtf/logging"
	"go.viam.com/pubtf/referenceframe"
	"go.viam.com/pubtf/spatialmath"
	"go.viam.com/pubtf/testutils/inject"
	"go.viam.com/pubtf/transform"
)

var testNow = time.Unix(1700000000, 123000000)

type testHarness struct {
	out         *bytes.Buffer
	errOut      *bytes.Buffer
	clock       *clock.Mock
	registry    *prometheus.Registry
	broadcaster *inject.Broadcaster
	created     int
	gotConfig   config.Config
	opts        []Option
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	// InitLoggingSettings moves the global level; put it back for other tests.
	t.Cleanup(func() { logging.GlobalLogLevel.SetLevel(logging.INFO.AsZap()) })

	h := &testHarness{
		out:         &bytes.Buffer{},
		errOut:      &bytes.Buffer{},
		clock:       clock.NewMock(),
		registry:    prometheus.NewRegistry(),
		broadcaster: &inject.Broadcaster{},
	}
	h.clock.Set(testNow)
	h.opts = []Option{
		WithClock(h.clock),
		WithLogger(logging.NewTestLogger(t)),
		WithRegistry(h.registry),
		WithBroadcasterFactory(func(
			ctx context.Context, name string, cfg config.Config, logger logging.Logger,
		) (broadcast.Broadcaster, error) {
			h.created++
			h.gotConfig = cfg
			return h.broadcaster, nil
		}),
	}
	return h
}

func (h *testHarness) run(ctx context.Context, args ...string) error {
	return NewApp(h.out, h.errOut, h.opts...).RunContext(ctx, append([]string{"pubtf"}, args...))
}

func TestWrongArgumentCount(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"dyn"},
		{"dyn", "1", "2", "3", "4", "5"},
		{"dyn", "1", "2", "3", "4", "5", "6", "7"},
		{"dyn", "1", "2", "3", "4", "5", "6", "7", "8"},
	} {
		h := newHarness(t)
		err := h.run(context.Background(), args...)
		var usageErr *UsageError
		test.That(t, errors.As(err, &usageErr), test.ShouldBeTrue)
		test.That(t, usageErr.Got, test.ShouldEqual, len(args))
		test.That(t, err.Error(), test.ShouldContainSubstring, Usage)
		test.That(t, h.created, test.ShouldEqual, 0)
		test.That(t, h.broadcaster.Published(), test.ShouldBeEmpty)
	}
}

func TestReservedName(t *testing.T) {
	h := newHarness(t)
	err := h.run(context.Background(), "world", "1", "2", "3", "0", "0", "0")
	var reserved *ReservedNameError
	test.That(t, errors.As(err, &reserved), test.ShouldBeTrue)
	test.That(t, reserved.Name, test.ShouldEqual, "world")
	test.That(t, errors.Is(err, referenceframe.ErrReservedFrame), test.ShouldBeTrue)
	test.That(t, h.created, test.ShouldEqual, 0)
}

func TestPublishStatic(t *testing.T) {
	h := newHarness(t)
	// Numeric parameters are ignored, even ones that do not parse.
	err := h.run(context.Background(), "--strict", "sta", "9", "9", "9", "nope", "9", "9")
	test.That(t, err, test.ShouldBeNil)

	published := h.broadcaster.Published()
	test.That(t, len(published), test.ShouldEqual, 1)
	tr := published[0]
	test.That(t, tr.IsStatic(), test.ShouldBeTrue)
	test.That(t, tr.Parent(), test.ShouldEqual, referenceframe.ParentFrame)
	test.That(t, tr.Child(), test.ShouldEqual, referenceframe.ChildFrame)
	test.That(t, spatialmath.R3VectorAlmostEqual(tr.Translation(), r3.Vector{X: 1, Y: 1, Z: 1}, 1e-9), test.ShouldBeTrue)
	test.That(t, spatialmath.QuaternionAlmostEqual(
		tr.Rotation(), quat.Number{Real: math.Sqrt2 / 2, Imag: math.Sqrt2 / 2}, 1e-7,
	), test.ShouldBeTrue)

	test.That(t, h.broadcaster.CloseCalls(), test.ShouldEqual, 1)
	test.That(t, h.gotConfig.Broadcaster, test.ShouldEqual, config.DefaultBroadcaster)
	metrics, err := broadcast.NewMetrics(h.registry)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, testutil.ToFloat64(metrics.Counter(config.DefaultBroadcaster, true)), test.ShouldEqual, float64(1))
}

func TestPublishDynamic(t *testing.T) {
	h := newHarness(t)
	err := h.run(context.Background(),
		"--parent-frame", "map", "--child-frame", "robot", "--broadcaster", "kafka",
		"dyn", "1", "-2", "3.5", "0", "0", "1.5707963267948966",
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.gotConfig.Broadcaster, test.ShouldEqual, "kafka")

	published := h.broadcaster.Published()
	test.That(t, len(published), test.ShouldEqual, 1)
	tr := published[0]
	test.That(t, tr.Stamp().Equal(testNow), test.ShouldBeTrue)
	test.That(t, tr.Parent(), test.ShouldEqual, "map")
	test.That(t, tr.Child(), test.ShouldEqual, "robot")
	test.That(t, tr.Translation(), test.ShouldResemble, r3.Vector{X: 1, Y: -2, Z: 3.5})
	test.That(t, spatialmath.QuaternionAlmostEqual(
		tr.Rotation(), quat.Number{Real: math.Sqrt2 / 2, Kmag: math.Sqrt2 / 2}, 1e-7,
	), test.ShouldBeTrue)
}

func TestLenientParsing(t *testing.T) {
	h := newHarness(t)
	err := h.run(context.Background(), "dyn", "1.5abc", "  2", "abc", "0", "0", "0")
	test.That(t, err, test.ShouldBeNil)
	published := h.broadcaster.Published()
	test.That(t, len(published), test.ShouldEqual, 1)
	test.That(t, published[0].Translation(), test.ShouldResemble, r3.Vector{X: 1.5, Y: 2, Z: 0})
	test.That(t, published[0].Rotation(), test.ShouldResemble, quat.Number{Real: 1})
}

func TestStrictParsing(t *testing.T) {
	h := newHarness(t)
	err := h.run(context.Background(), "--strict", "dyn", "1", "2", "3", "abc", "0", "0")
	var parseErr *transform.ParseError
	test.That(t, errors.As(err, &parseErr), test.ShouldBeTrue)
	test.That(t, parseErr.Index, test.ShouldEqual, 3)
	test.That(t, parseErr.Text, test.ShouldEqual, "abc")
	test.That(t, h.created, test.ShouldEqual, 0)
}

func TestInvalidConfigFromFlags(t *testing.T) {
	h := newHarness(t)
	err := h.run(context.Background(), "--child-frame", "world_link", "dyn", "1", "2", "3", "0", "0", "0")
	test.That(t, errors.Is(err, referenceframe.ErrSameFrame), test.ShouldBeTrue)
	test.That(t, h.created, test.ShouldEqual, 0)
}

// recordExits replaces urfave's process exit for the rest of the test and returns the exit codes
// it was asked for.
func recordExits(t *testing.T) *[]int {
	t.Helper()
	var codes []int
	old := urfave.OsExiter
	urfave.OsExiter = func(code int) { codes = append(codes, code) }
	t.Cleanup(func() { urfave.OsExiter = old })
	return &codes
}

func TestBroadcastFailure(t *testing.T) {
	exits := recordExits(t)
	errDown := errors.New("transport down")
	h := newHarness(t)
	h.broadcaster.BroadcastFunc = func(ctx context.Context, tr referenceframe.TransformRecord) error {
		return errDown
	}
	h.broadcaster.CloseFunc = func(ctx context.Context) error {
		return errors.New("close failed")
	}
	err := h.run(context.Background(), "dyn", "1", "2", "3", "0", "0", "0")
	test.That(t, errors.Is(err, errDown), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "close failed")
	test.That(t, h.broadcaster.CloseCalls(), test.ShouldEqual, 1)
	test.That(t, *exits, test.ShouldBeEmpty)

	metrics, err := broadcast.NewMetrics(h.registry)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, testutil.ToFloat64(metrics.Counter(config.DefaultBroadcaster, false)), test.ShouldEqual, float64(1))
}

func TestBroadcasterConstructionFailure(t *testing.T) {
	h := newHarness(t)
	h.opts = append(h.opts, WithBroadcasterFactory(broadcast.New))
	err := h.run(context.Background(), "--broadcaster", "carrier-pigeon", "dyn", "1", "2", "3", "0", "0", "0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown broadcaster "carrier-pigeon"`)
}

func TestResidentRepublishes(t *testing.T) {
	h := newHarness(t)
	published := make(chan referenceframe.TransformRecord, 10)
	h.broadcaster.BroadcastFunc = func(ctx context.Context, tr referenceframe.TransformRecord) error {
		published <- tr
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- h.run(ctx, "--resident", "--republish-interval", "1s", "dyn", "1", "2", "3", "0", "0", "0")
	}()

	first := <-published
	test.That(t, first.Stamp().Equal(testNow), test.ShouldBeTrue)

	h.clock.Add(time.Second)
	second := <-published
	test.That(t, second.Stamp().Equal(testNow.Add(time.Second)), test.ShouldBeTrue)
	test.That(t, second.Translation(), test.ShouldResemble, first.Translation())

	h.clock.Add(time.Second)
	third := <-published
	test.That(t, third.Stamp().Equal(testNow.Add(2*time.Second)), test.ShouldBeTrue)

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, h.broadcaster.CloseCalls(), test.ShouldEqual, 1)
	test.That(t, len(h.broadcaster.Published()), test.ShouldEqual, 3)
}

func TestResidentWithoutInterval(t *testing.T) {
	h := newHarness(t)
	published := make(chan referenceframe.TransformRecord, 10)
	h.broadcaster.BroadcastFunc = func(ctx context.Context, tr referenceframe.TransformRecord) error {
		published <- tr
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.run(ctx, "--resident", "sta", "0", "0", "0", "0", "0", "0")
	}()

	test.That(t, (<-published).IsStatic(), test.ShouldBeTrue)
	h.clock.Add(time.Hour)
	cancel()
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, len(h.broadcaster.Published()), test.ShouldEqual, 1)
}

func TestLogsGoToErrWriter(t *testing.T) {
	h := newHarness(t)
	h.opts = append(h.opts, WithLogger(nil))
	err := h.run(context.Background(), "dyn", "1", "2", "3", "0", "0", "0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.errOut.String(), test.ShouldContainSubstring, "published transform")
	test.That(t, h.out.Len(), test.ShouldEqual, 0)

	h = newHarness(t)
	h.opts = append(h.opts, WithLogger(nil))
	err = h.run(context.Background(), "dyn")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, h.errOut.String(), test.ShouldContainSubstring, Usage)
}

func TestResidentMetricsAddrInvalid(t *testing.T) {
	h := newHarness(t)
	err := h.run(context.Background(), "--resident", "--metrics-addr", "not an address", "sta", "0", "0", "0", "0", "0", "0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot listen for metrics")
	test.That(t, h.broadcaster.Published(), test.ShouldBeEmpty)
	test.That(t, h.broadcaster.CloseCalls(), test.ShouldEqual, 1)
}

func TestErrorsAreReturnedNotExited(t *testing.T) {
	exits := recordExits(t)
	for _, args := range [][]string{
		{"dyn"},
		{"--parent-frame", "world", "--child-frame", "world", "--republish-interval=-1s", "dyn", "1", "2", "3", "0", "0", "0"},
		{"--strict", "dyn", "x", "2", "3", "0", "0", "0"},
	} {
		h := newHarness(t)
		h.opts = append(h.opts, WithLogger(nil))
		test.That(t, h.run(context.Background(), args...), test.ShouldNotBeNil)
	}
	test.That(t, *exits, test.ShouldBeEmpty)
}

func TestStdoutBroadcasterWritesToAppWriter(t *testing.T) {
	h := newHarness(t)
	h.opts = append(h.opts, WithBroadcasterFactory(broadcast.New))
	err := h.run(context.Background(), "--broadcaster", stdout.Name, "sta", "0", "0", "0", "0", "0", "0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.out.String(), test.ShouldStartWith, `{"header":{"stamp":{"secs":0,"nsecs":0},"frame_id":"world_link"}`)
	test.That(t, strings.Count(h.out.String(), "\n"), test.ShouldEqual, 1)
}
