// Package di provides dependency injection configuration for the ReadWell
// binaries.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/readwellapp/readwell-sync/internal/auth"
	"github.com/readwellapp/readwell-sync/internal/config"
	"github.com/readwellapp/readwell-sync/internal/di/providers"
	"github.com/readwellapp/readwell-sync/internal/gateway"
	"github.com/readwellapp/readwell-sync/internal/logger"
	"github.com/readwellapp/readwell-sync/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
// Providers are lazy; each binary's Bootstrap invokes the slice it needs.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideAuthService)

	// Sync layer
	do.Provide(injector, providers.ProvideStatusBroadcaster)
	do.Provide(injector, providers.ProvideGateway)
	do.Provide(injector, providers.ProvideOrchestrator)
	do.Provide(injector, providers.ProvideReadingService)

	// Replica server
	do.Provide(injector, providers.ProvideReplicaServer)

	return injector
}

// Bootstrap initializes the sync daemon: session restore, auth-to-sync
// wiring, and the search index rebuild for the restored user.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	storeHandle := do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	searchHandle := do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*gateway.StatusBroadcaster](injector)
	_ = do.MustInvoke[gateway.Gateway](injector)
	orchestrator := do.MustInvoke[*providers.OrchestratorHandle](injector)
	authService := do.MustInvoke[*service.AuthService](injector)
	_ = do.MustInvoke[*service.ReadingService](injector)

	// Every session transition reaches the orchestrator: sign-in kicks off a
	// cloud sync, sign-out cancels pending work.
	authService.OnAuthChange(orchestrator.HandleAuthChange)

	ctx := context.Background()
	if err := authService.Hydrate(ctx); err != nil {
		return err
	}

	// The search index is ephemeral; refill it for the restored session.
	if user := authService.CurrentUser(); user != nil {
		history, err := storeHandle.ReadingHistory(ctx, user.ID)
		if err != nil {
			return err
		}
		marks, err := storeHandle.Bookmarks(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := searchHandle.IndexAll(user.ID, history, marks); err != nil {
			log.Warn("Search index rebuild failed", "error", err)
		}
	}

	return nil
}

// BootstrapReplica initializes the replica server binary.
func BootstrapReplica(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
