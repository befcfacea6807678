package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mirrorlens/mirrorlens/internal/auth"
	"github.com/mirrorlens/mirrorlens/internal/search"
)

// handleSearch serves paginated hybrid search results. Results for a
// repeated (query, filter) pair come from the session's result-cache slot,
// so paging does not recompute the ranking.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	q := r.URL.Query()

	query := q.Get("query")
	if query == "" {
		s.sendError(w, http.StatusBadRequest, "query is required; use /api/v1/files to browse")
		return
	}

	filter, err := search.ParseFilter(q.Get("filter"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	page := 1
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page = n
	}

	// Slot keys are namespaced by the authenticated user so a forged
	// session header can never address another user's slot.
	session := claims.UserID
	if h := r.Header.Get("X-Session-ID"); h != "" {
		session = claims.UserID + "/" + h
	}

	results, hit := s.resultCache.Get(session, query, filter)
	if !hit {
		results, err = s.engine.Search(r.Context(), claims.UserID, query, filter)
		if err != nil {
			if errors.Is(err, search.ErrEmptyQuery) {
				s.sendError(w, http.StatusBadRequest, "query is required")
				return
			}
			s.sendError(w, http.StatusInternalServerError, "search failed: "+err.Error())
			return
		}
		s.resultCache.Put(session, query, filter, results)
	}

	pageResults, totalPages := pageOf(results, page, s.pageSize)
	s.sendJSON(w, http.StatusOK, map[string]any{
		"query":       query,
		"filter":      filter.String(),
		"page":        page,
		"total_pages": totalPages,
		"total":       len(results),
		"cached":      hit,
		"results":     pageResults,
	})
}
