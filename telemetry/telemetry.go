// Package telemetry exposes prometheus metrics over HTTP while pubtf stays resident.
package telemetry

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.viam.com/pubtf/logging"
)

// MetricsPath is where metrics are served.
const MetricsPath = "/metrics"

// Server serves one gatherer on MetricsPath.
type Server struct {
	listener net.Listener
	srv      *http.Server
	done     chan struct{}
}

// Serve starts listening on addr. Use port 0 to pick a free port.
func Serve(addr string, gatherer prometheus.Gatherer, logger logging.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot listen for metrics on %q", addr)
	}
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s := &Server{
		listener: listener,
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "error", err)
		}
	}()
	logger.Infow("serving metrics", "addr", listener.Addr().String(), "path", MetricsPath)
	return s, nil
}

// Addr is the address actually listened on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close shuts the server down, waiting for in flight scrapes until ctx is done.
func (s *Server) Close(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
