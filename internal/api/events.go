package api

import (
	"fmt"
	"net/http"

	"github.com/mirrorlens/mirrorlens/internal/auth"
	"github.com/mirrorlens/mirrorlens/internal/events"
)

// handleEvents streams sync events for the authenticated user over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.UserID != claims.UserID {
				continue
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
