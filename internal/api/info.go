package api

import (
	"net/http"
	"time"

	"dashroute/internal/buildinfo"
)

// ConfigHandler reports build info and the effective planner configuration.
// Connection strings are never echoed.
func (s *Server) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build":       buildinfo.Info(),
		"time":        time.Now().UTC().Format(time.RFC3339),
		"config":      s.Config,
		"hasDatabase": s.Config.Database.URL != "",
		"hasRedis":    s.Config.Redis.URL != "",
	})
}
