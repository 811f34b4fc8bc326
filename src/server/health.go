package server

import (
	"context"
	"net/http"
	"time"

	webhttp "webinyframework/src/http"
)

const healthTimeout = 2 * time.Second

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health runs every check and answers 503 when one of them fails.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	report := healthReport{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			s.logger.Warn("Health check failed", "check", check.Name, "error", err)
			report.Checks[check.Name] = err.Error()
			report.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Checks[check.Name] = "ok"
	}

	s.send(w, report, status)
}

func (s *Server) send(w http.ResponseWriter, data any, status int) {
	response, err := webhttp.NewJSONResponse(data, status)
	if err != nil {
		s.logger.Error("Failed to render response", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	response.SetCacheControl(webhttp.CacheControl{})
	if err := response.Send(w); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
