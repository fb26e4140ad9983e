package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := interruptContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Execute(ctx)
	stop()
	os.Exit(code)
}

// interruptContext is cancelled by the first of signals. Default handling is
// restored right after, so a second signal ends the process while
// post-processing is still running.
func interruptContext(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, signals...)
	go stopOnDone(ctx, stop)
	return ctx, stop
}

func stopOnDone(ctx context.Context, stop context.CancelFunc) {
	<-ctx.Done()
	stop()
}
