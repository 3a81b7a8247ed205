package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbinitiative/zenorchestrator/cmd/zenorch/commands"
	"github.com/pbinitiative/zenorchestrator/internal/log"
	"github.com/pbinitiative/zenorchestrator/internal/profile"
)

// set via ldflags
var Version = "dev"

func main() {
	profile.InitProfile()
	log.Init()
	defer log.Sync()

	appContext, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	appStop := make(chan os.Signal, 2)
	signal.Notify(appStop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go handleSigterm(appContext, appStop, ctxCancel)

	if err := commands.Execute(appContext, Version); err != nil {
		log.Error("%s", err)
		os.Exit(1)
	}
}

func handleSigterm(ctx context.Context, appStop chan os.Signal, cancel context.CancelFunc) {
	select {
	case sig := <-appStop:
		log.Infof(ctx, "Received %s. Shutting down", sig.String())
		cancel()
	case <-ctx.Done():
	}
}
