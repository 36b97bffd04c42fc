package providers

import (
	"github.com/samber/do/v2"

	"github.com/readwellapp/readwell-sync/internal/logger"
	"github.com/readwellapp/readwell-sync/internal/search"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.Index
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the in-memory search index. It starts empty;
// Bootstrap fills it from the store once the session is known.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewIndex(log.Logger)
	if err != nil {
		return nil, err
	}

	return &SearchIndexHandle{Index: index}, nil
}
