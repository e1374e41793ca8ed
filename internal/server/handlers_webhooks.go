package server

import (
	"io"
	"net/http"

	"github.com/jonathan/talent-search/internal/signature"
)

// handleSearchUpdated receives a status callback from the automation system.
// The body is read whole so the signature is checked over the exact bytes.
func (s *Server) handleSearchUpdated(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.deps.Webhooks.Handle(r.Context(), raw, r.Header.Get(signature.HeaderName)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}
