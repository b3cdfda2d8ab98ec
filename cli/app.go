// Package cli contains the pubtf command line application.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/pubtf/broadcast"
	"go.viam.com/pubtf/config"
	"go.viam.com/pubtf/logging"
	"go.viam.com/pubtf/referenceframe"
	"go.viam.com/pubtf/telemetry"
	"go.viam.com/pubtf/transform"
)

const (
	// Flags.
	flagConfig            = "config"
	flagDebug             = "debug"
	flagBroadcaster       = "broadcaster"
	flagStrict            = "strict"
	flagResident          = "resident"
	flagRepublishInterval = "republish-interval"
	flagParentFrame       = "parent-frame"
	flagChildFrame        = "child-frame"
	flagMetricsAddr       = "metrics-addr"

	shutdownTimeout = 5 * time.Second
)

// BroadcasterFactory creates the broadcaster a run publishes through.
type BroadcasterFactory func(ctx context.Context, name string, cfg config.Config, logger logging.Logger) (broadcast.Broadcaster, error)

// An Option changes how the app runs, mostly so tests can swap out its collaborators.
type Option func(*runner)

// WithClock sets the clock used to stamp dynamic transforms and drive republishing.
func WithClock(clk clock.Clock) Option {
	return func(r *runner) { r.clock = clk }
}

// WithLogger replaces the logger normally written to the app's ErrWriter.
func WithLogger(logger logging.Logger) Option {
	return func(r *runner) { r.logger = logger }
}

// WithBroadcasterFactory replaces broadcast.New.
func WithBroadcasterFactory(factory BroadcasterFactory) Option {
	return func(r *runner) { r.newBroadcaster = factory }
}

// WithRegistry registers and serves metrics from reg instead of the prometheus defaults.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *runner) {
		r.registerer = reg
		r.gatherer = reg
	}
}

type runner struct {
	clock          clock.Clock
	logger         logging.Logger
	newBroadcaster BroadcasterFactory
	registerer     prometheus.Registerer
	gatherer       prometheus.Gatherer
}

// NewApp returns a new app with Writer set to out and ErrWriter set to errOut. The stdout
// broadcaster writes transforms to out. Logs go to errOut so the two never mix.
func NewApp(out, errOut io.Writer, opts ...Option) *cli.App {
	r := &runner{
		clock:          clock.New(),
		newBroadcaster: broadcast.New,
		registerer:     prometheus.DefaultRegisterer,
		gatherer:       prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(r)
	}

	return &cli.App{
		Name:            "pubtf",
		Usage:           "publish one coordinate-frame transform from world_link to base_link",
		UsageText:       strings.TrimPrefix(Usage, "usage: "),
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagBroadcaster,
				Usage: "broadcast through `NAME` (stdout or kafka)",
			},
			&cli.BoolFlag{
				Name:  flagStrict,
				Usage: "reject numeric parameters that do not parse instead of treating them as 0",
			},
			&cli.BoolFlag{
				Name:  flagResident,
				Usage: "keep running after publishing until interrupted",
			},
			&cli.DurationFlag{
				Name:  flagRepublishInterval,
				Usage: "while resident, publish again every `DURATION`",
			},
			&cli.StringFlag{
				Name:  flagParentFrame,
				Usage: "parent frame `NAME`",
			},
			&cli.StringFlag{
				Name:  flagChildFrame,
				Usage: "child frame `NAME`",
			},
			&cli.StringFlag{
				Name:  flagMetricsAddr,
				Usage: "while resident, serve prometheus metrics on `ADDR`",
			},
		},
		Action: r.action,
		// Errors are returned to the caller. The default handler would call os.Exit on any error
		// with an Errors method, which includes every multierr.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// RunWithArgs runs a fresh app writing to stdout and stderr.
func RunWithArgs(ctx context.Context, args []string, opts ...Option) error {
	return NewApp(os.Stdout, os.Stderr, opts...).RunContext(ctx, args)
}

func (r *runner) action(c *cli.Context) error {
	logger := r.logger
	if logger == nil {
		logger = logging.NewBlankLogger("pubtf")
		logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
		logger.SetLevel(logging.INFO)
	}
	err := r.run(c, logger)
	if err != nil {
		logger.Error(err.Error())
	}
	return multierr.Combine(err, logger.Sync())
}

func (r *runner) run(c *cli.Context, logger logging.Logger) (err error) {
	args := c.Args().Slice()
	if err := validateArgs(args); err != nil {
		return err
	}

	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return err
	}
	applyFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	config.InitLoggingSettings(logger, c.Bool(flagDebug), cfg)

	mode := transform.ModeFromToken(args[0])
	var params transform.Params
	if mode == transform.Dynamic {
		policy := transform.LenientZeroFallback
		if cfg.Strict {
			policy = transform.Strict
		}
		if params, err = transform.ParseParams(args[1:], policy); err != nil {
			return err
		}
	} else {
		logger.Debugw("static mode ignores numeric parameters", "params", args[1:])
	}

	builder, err := transform.NewBuilder(r.clock, cfg.ParentFrame, cfg.ChildFrame)
	if err != nil {
		return err
	}

	metrics, err := broadcast.NewMetrics(r.registerer)
	if err != nil {
		return err
	}
	b, err := r.newBroadcaster(broadcast.WithOutput(c.Context, c.App.Writer), cfg.Broadcaster, cfg, logger)
	if err != nil {
		return err
	}
	b = metrics.Instrument(cfg.Broadcaster, b)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Combine(err, b.Close(ctx))
	}()

	if !cfg.Resident {
		return r.publish(c.Context, b, builder.Build(mode, params), logger)
	}
	return r.stayResident(c.Context, cfg, b, func() referenceframe.TransformRecord {
		return builder.Build(mode, params)
	}, logger)
}

func (r *runner) publish(ctx context.Context, b broadcast.Broadcaster, tr referenceframe.TransformRecord, logger logging.Logger) error {
	if err := b.Broadcast(ctx, tr); err != nil {
		return err
	}
	logger.Infow("published transform", "mode", modeOf(tr), "transform", tr.String())
	return nil
}

// stayResident publishes once, then republishes on every tick of the republish interval until
// ctx is done or the process is interrupted. Static records are identical on every publish;
// dynamic ones are stamped afresh.
func (r *runner) stayResident(
	ctx context.Context,
	cfg config.Config,
	b broadcast.Broadcaster,
	build func() referenceframe.TransformRecord,
	logger logging.Logger,
) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv, serveErr := telemetry.Serve(cfg.MetricsAddr, r.gatherer, logger)
		if serveErr != nil {
			return serveErr
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = multierr.Combine(err, srv.Close(closeCtx))
		}()
	}

	var tick <-chan time.Time
	if cfg.RepublishInterval > 0 {
		ticker := r.clock.Ticker(cfg.RepublishInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if err := r.publish(ctx, b, build(), logger); err != nil {
		return err
	}
	logger.Infow("staying resident until interrupted", "republish_interval", cfg.RepublishInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-tick:
			if err := r.publish(ctx, b, build(), logger); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warnw("republish failed", "error", err)
			}
		}
	}
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagBroadcaster) {
		cfg.Broadcaster = c.String(flagBroadcaster)
	}
	if c.IsSet(flagStrict) {
		cfg.Strict = c.Bool(flagStrict)
	}
	if c.IsSet(flagResident) {
		cfg.Resident = c.Bool(flagResident)
	}
	if c.IsSet(flagRepublishInterval) {
		cfg.RepublishInterval = c.Duration(flagRepublishInterval)
	}
	if c.IsSet(flagParentFrame) {
		cfg.ParentFrame = c.String(flagParentFrame)
	}
	if c.IsSet(flagChildFrame) {
		cfg.ChildFrame = c.String(flagChildFrame)
	}
	if c.IsSet(flagMetricsAddr) {
		cfg.MetricsAddr = c.String(flagMetricsAddr)
	}
}

func modeOf(tr referenceframe.TransformRecord) transform.Mode {
	if tr.IsStatic() {
		return transform.Static
	}
	return transform.Dynamic
}
