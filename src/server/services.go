package server

import (
	"net/http"
)

// ListServices describes every registered REST method and its path.
func (s *Server) ListServices(w http.ResponseWriter, r *http.Request) {
	s.send(w, map[string]any{"routes": s.router.Routes()}, http.StatusOK)
}
