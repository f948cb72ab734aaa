package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/collab/telemetry"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
)

// readHeaderTimeout bounds slow clients on the control server.
const readHeaderTimeout = 10 * time.Second

// Run drives the orchestrator, the control server and the periodic
// telemetry log. It blocks until the orchestrator stops or ctx is
// cancelled. A clean stop returns nil.
func (a *App) Run(ctx context.Context) error {
	log := observe.Logger(ctx)
	log.Info("registered commands\n" + a.CommandListing())

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return a.orch.Run(runCtx)
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" && addr != config.ListenOff {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return a.serve(runCtx, ln) })
	}

	if interval := a.cfg.Telemetry.Interval; interval > 0 {
		g.Go(func() error {
			logTelemetry(runCtx, observe.Logger(runCtx), a.sampler, interval)
			return nil
		})
	}

	return g.Wait()
}

// serve runs the control server on ln until ctx ends.
func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		tls := a.cfg.Server.TLS
		slog.Info("control server listening", "addr", ln.Addr().String(), "tls", tls != nil)
		if tls != nil {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("control server shutdown", "err", err)
	}
	return nil
}

// logTelemetry logs the formatted host statistics every interval.
func logTelemetry(ctx context.Context, log *slog.Logger, s orchestrator.Sampler, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap := s.Sample(ctx)
			log.Info(telemetry.Format(snap), "snapshot", snap)
		}
	}
}
