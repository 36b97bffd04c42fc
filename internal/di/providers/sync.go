package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/readwellapp/readwell-sync/internal/config"
	"github.com/readwellapp/readwell-sync/internal/gateway"
	"github.com/readwellapp/readwell-sync/internal/logger"
	"github.com/readwellapp/readwell-sync/internal/sync"
)

// OrchestratorHandle wraps the sync orchestrator with shutdown capability.
// Close flushes local data to a snapshot before the process exits.
type OrchestratorHandle struct {
	*sync.Orchestrator
}

// Shutdown implements do.Shutdownable.
func (h *OrchestratorHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Close(ctx)
}

// ProvideOrchestrator provides the sync orchestrator. It starts its interval
// loop immediately; sign-in wiring happens in Bootstrap.
func ProvideOrchestrator(i do.Injector) (*OrchestratorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	gw := do.MustInvoke[gateway.Gateway](i)
	status := do.MustInvoke[*gateway.StatusBroadcaster](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	orchestrator := sync.New(storeHandle.Store, gw, status, searchHandle.Index, sync.Options{
		Interval: cfg.Sync.Interval,
		Debounce: cfg.Sync.Debounce,
	}, log.Logger)
	orchestrator.Start()

	log.Info("Sync orchestrator started",
		"interval", cfg.Sync.Interval,
		"debounce", cfg.Sync.Debounce,
	)

	return &OrchestratorHandle{Orchestrator: orchestrator}, nil
}
