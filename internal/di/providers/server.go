package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/readwellapp/readwell-sync/internal/auth"
	"github.com/readwellapp/readwell-sync/internal/config"
	"github.com/readwellapp/readwell-sync/internal/logger"
	"github.com/readwellapp/readwell-sync/internal/ratelimit"
	"github.com/readwellapp/readwell-sync/internal/replica"
)

// A device syncs at most every few minutes, so the per-user rate limit
// can stay low.
const (
	replicaRequestsPerSecond = 2
	replicaBurst             = 10
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideReplicaServer provides the replica HTTP server, started in the
// background.
func ProvideReplicaServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	limiter := ratelimit.New(replicaRequestsPerSecond, replicaBurst)
	handler := replica.NewServer(storeHandle.Store, tokens, limiter, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Replica server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Replica server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
