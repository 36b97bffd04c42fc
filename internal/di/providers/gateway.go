package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/readwellapp/readwell-sync/internal/config"
	"github.com/readwellapp/readwell-sync/internal/gateway"
	"github.com/readwellapp/readwell-sync/internal/logger"
	"github.com/readwellapp/readwell-sync/internal/service"
)

// ProvideStatusBroadcaster provides the shared sync-status broadcaster.
func ProvideStatusBroadcaster(i do.Injector) (*gateway.StatusBroadcaster, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return gateway.NewStatusBroadcaster(cfg.Sync.SuccessDecay, cfg.Sync.ErrorDecay, log.Logger), nil
}

// ProvideGateway provides the remote replica gateway selected by config:
// a latency-and-failure simulation backed by the local store, or a real
// HTTP client against a replica server.
func ProvideGateway(i do.Injector) (gateway.Gateway, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	switch cfg.Gateway.Mode {
	case "simulated":
		storeHandle := do.MustInvoke[*StoreHandle](i)
		simCfg := gateway.SimulatedConfig{
			UploadLatencyMin:    cfg.Gateway.UploadLatencyMin,
			UploadLatencyMax:    cfg.Gateway.UploadLatencyMax,
			DownloadLatencyMin:  cfg.Gateway.DownloadLatencyMin,
			DownloadLatencyMax:  cfg.Gateway.DownloadLatencyMax,
			UploadFailureRate:   cfg.Gateway.UploadFailureRate,
			DownloadFailureRate: cfg.Gateway.DownloadFailureRate,
		}
		log.Info("Using simulated gateway",
			"upload_failure_rate", simCfg.UploadFailureRate,
			"download_failure_rate", simCfg.DownloadFailureRate,
		)
		return gateway.NewSimulated(storeHandle.Store, simCfg, log.Logger), nil

	case "http":
		authService := do.MustInvoke[*service.AuthService](i)
		log.Info("Using HTTP gateway", "base_url", cfg.Gateway.BaseURL)
		return gateway.NewHTTP(cfg.Gateway.BaseURL, authService), nil

	default:
		return nil, fmt.Errorf("unknown gateway mode: %s", cfg.Gateway.Mode)
	}
}
