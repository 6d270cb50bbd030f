package util

import (
	"context"
	"os/signal"
	"syscall"
)

// ReqContext is cancelled on SIGTERM, SIGINT or SIGHUP.
func ReqContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
}
