package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext returns a context cancelled on SIGINT/SIGTERM. The notice
// is written to w. If a second signal arrives within gracePeriod the
// process exits with status 1.
//
// Usage:
//
//	ctx, cancel := cli.SignalContext(os.Stderr, 30*time.Second)
//	defer cancel()
func SignalContext(w io.Writer, gracePeriod time.Duration) (context.Context, context.CancelFunc) {
	return signalContextWithNotifier(w, gracePeriod, nil, nil)
}

// signalContextWithNotifier lets tests supply the signal channel and the
// exit function.
func signalContextWithNotifier(
	w io.Writer,
	gracePeriod time.Duration,
	sigChan chan os.Signal,
	exitFn func(int),
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	if exitFn == nil {
		exitFn = os.Exit
	}
	if w == nil {
		w = io.Discard
	}

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Interrupt received, stopping scans (press Ctrl+C again to force exit)...")
			cancel()

			select {
			case <-sigChan:
				exitFn(1)
			case <-time.After(gracePeriod):
			}
		case <-ctx.Done():
		}
		if ownChannel {
			signal.Stop(sigChan)
		}
	}()

	return ctx, cancel
}
