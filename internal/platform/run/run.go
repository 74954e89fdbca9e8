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

// DrainTimeout bounds how long WithSignals waits for the start func to
// finish after a shutdown signal. It must exceed the shutdown deadlines the
// start func uses internally, otherwise in-flight flushes get cut off.
const DrainTimeout = 15 * time.Second

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// WithSignals runs start with a context cancelled on SIGINT/SIGTERM. After a
// signal it does not return until start does: the start func owns the
// graceful stop (flush state, drain connections) and must only return once
// that work is complete.
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
		select {
		case err := <-errCh:
			return exitCode(r.Logger, err)
		case <-time.After(DrainTimeout):
			r.Logger.Error("shutdown drain deadline exceeded")
			return 1
		}
	case err := <-errCh:
		return exitCode(r.Logger, err)
	}
}

func exitCode(log *zap.Logger, err error) int {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return 0
	}
	log.Error("service exited with error", zap.Error(err))
	return 1
}

func Exit(code int) {
	os.Exit(code)
}
