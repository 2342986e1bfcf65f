package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/distrischool/grade-service/internal/testgrades"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := testgrades.NewCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: stop already called
	}
}
