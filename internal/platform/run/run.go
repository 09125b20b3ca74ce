package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownTimeout bounds Graceful.
const ShutdownTimeout = 10 * time.Second

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Logger: log}
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives and
// maps the outcome to a process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		// give start a chance to unwind its deferred cleanup
		select {
		case <-errCh:
		case <-time.After(ShutdownTimeout):
			r.Logger.Warn("shutdown timed out")
		}
		return 0
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			return 0
		}
		r.Logger.Error("exited with error", zap.Error(err))
		return 1
	}
}

// Graceful blocks until ctx is done, then calls shutdown with a fresh
// context bounded by ShutdownTimeout.
func (r *Runner) Graceful(ctx context.Context, shutdown func(context.Context) error) {
	<-ctx.Done()
	c, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := shutdown(c); err != nil {
		r.Logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func Exit(code int) {
	os.Exit(code)
}
