package providers

import (
	"github.com/samber/do/v2"

	"github.com/readwellapp/readwell-sync/internal/auth"
	"github.com/readwellapp/readwell-sync/internal/logger"
	"github.com/readwellapp/readwell-sync/internal/service"
)

// ProvideAuthService provides the session/identity service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokens, log.Logger), nil
}

// ProvideReadingService provides the reading-data mutation service, wired to
// the sync orchestrator for change notifications and to the search index.
func ProvideReadingService(i do.Injector) (*service.ReadingService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	orchestrator := do.MustInvoke[*OrchestratorHandle](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReadingService(storeHandle.Store, orchestrator.Orchestrator, searchHandle.Index, log.Logger), nil
}
