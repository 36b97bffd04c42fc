// Package main provides the entry point for the ReadWell replica server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/readwellapp/readwell-sync/internal/di"
	"github.com/readwellapp/readwell-sync/internal/di/providers"
	"github.com/readwellapp/readwell-sync/internal/logger"
)

func main() {
	injector := di.NewContainer()

	if err := di.BootstrapReplica(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap replica server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down replica server...")

	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	if storeHandle, err := do.Invoke[*providers.StoreHandle](injector); err == nil {
		if err := storeHandle.Shutdown(); err != nil {
			log.Error("Failed to close store", "error", err)
		}
	}

	log.Info("Goodbye")
}
