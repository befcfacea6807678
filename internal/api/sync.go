package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mirrorlens/mirrorlens/internal/auth"
	"github.com/mirrorlens/mirrorlens/internal/logging"
)

// handleSync runs a full sync for the authenticated user.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	token := auth.GetToken(r.Context())

	cache, stats, err := s.syncer.Sync(r.Context(), claims.UserID, token)
	if err != nil {
		logging.Error("sync failed", zap.String("user", claims.UserID), zap.Error(err))

		// The prior cache is untouched on failure; report its current size
		// so clients know what they can still search.
		entries := 0
		if prior, loadErr := s.store.Load(claims.UserID); loadErr == nil {
			entries = len(prior.Names)
		}
		s.sendJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"entries": entries,
		})
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{
		"entries":    len(cache.Names),
		"files":      stats.Files,
		"downloaded": stats.Downloaded,
		"embedded":   stats.Embedded,
		"evicted":    stats.Evicted,
	})
}
