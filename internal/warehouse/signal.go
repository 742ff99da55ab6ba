package warehouse

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CancelOnSignal returns a context that is cancelled on SIGTERM or SIGINT.
// onSignal, if non-nil, runs before cancellation so the caller can log which
// signal interrupted the run. The returned stop function releases the signal
// registration and must be called once the run is over.
//
// A cancelled context makes the in-flight warehouse statement fail, which the
// orchestrator treats as an unhandled error and records as PIPELINE_ERROR.
func CancelOnSignal(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	stop := func() {
		signal.Stop(sigChan)
		cancel()
	}
	return ctx, stop
}
