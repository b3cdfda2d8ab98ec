package broadcast

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"go.viam.com/pubtf/referenceframe"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics counts broadcasts per driver and outcome.
type Metrics struct {
	broadcasts *prometheus.CounterVec
}

// NewMetrics registers the broadcast counters on reg. Registering twice on the same registerer
// reuses the existing collector.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pubtf",
		Name:      "transforms_broadcast_total",
		Help:      "Transform records handed to a broadcaster, by driver and result.",
	}, []string{"driver", "result"})

	if err := reg.Register(broadcasts); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, errors.Wrap(err, "cannot register broadcast metrics")
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, errors.Errorf("broadcast metrics collector has unexpected type %T", already.ExistingCollector)
		}
		broadcasts = existing
	}
	return &Metrics{broadcasts: broadcasts}, nil
}

// Counter returns the counter for one driver and result, mostly for inspection in tests.
func (m *Metrics) Counter(driver string, ok bool) prometheus.Counter {
	result := resultOK
	if !ok {
		result = resultError
	}
	return m.broadcasts.WithLabelValues(driver, result)
}

// Instrument wraps b so that every broadcast is counted under driver.
func (m *Metrics) Instrument(driver string, b Broadcaster) Broadcaster {
	return &instrumented{Broadcaster: b, driver: driver, metrics: m}
}

type instrumented struct {
	Broadcaster
	driver  string
	metrics *Metrics
}

func (i *instrumented) Broadcast(ctx context.Context, tr referenceframe.TransformRecord) error {
	err := i.Broadcaster.Broadcast(ctx, tr)
	i.metrics.Counter(i.driver, err == nil).Inc()
	return err
}
