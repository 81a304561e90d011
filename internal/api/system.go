package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/mekatrol/imperium-core/internal/scheduler"
)

// Health check settings.
const (
	healthCheckTimeout = 3 * time.Second

	defaultStatusLimit = 50
	maxStatusLimit     = 500
)

type loopHealth struct {
	Name              string `json:"name"`
	Status            string `json:"status"`
	Iterations        int    `json:"iterations"`
	Failures          int    `json:"failures"`
	ConsecutiveErrors int    `json:"consecutiveErrors"`
	LastError         string `json:"lastError,omitempty"`
}

// handleHealth reports loop states, the MQTT connection and dependency
// checks. A stopped loop or failed check answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := true
	resp := map[string]any{"version": s.version}

	loops := make([]loopHealth, 0, len(s.loops))
	for _, l := range s.loops {
		st := l.Stats()
		lh := loopHealth{
			Name:              l.Name(),
			Status:            string(st.Status),
			Iterations:        st.Iterations,
			Failures:          st.Failures,
			ConsecutiveErrors: st.ConsecutiveErrors,
		}
		if st.LastError != nil {
			lh.LastError = st.LastError.Error()
		}
		if st.Status == scheduler.StatusStopped {
			healthy = false
		}
		loops = append(loops, lh)
	}
	resp["loops"] = loops

	if s.mqtt != nil {
		resp["mqtt"] = string(s.mqtt.State())
	}

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := s.checks[name].HealthCheck(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}
		resp["checks"] = checks
	}

	resp["websocketClients"] = s.hub.ClientCount()

	code := http.StatusOK
	resp["status"] = "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		resp["status"] = "degraded"
	}
	writeJSON(w, code, resp)
}

type statusView struct {
	CorrelationID string    `json:"correlationId"`
	Category      string    `json:"category"`
	Severity      string    `json:"severity"`
	Key           string    `json:"key,omitempty"`
	Message       string    `json:"message"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// handleListStatus returns recent status reports, newest first.
//
// Query parameters:
//   - limit: maximum number of reports (default 50, max 500)
func (s *Server) handleListStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{"reports": []statusView{}, "count": 0})
		return
	}

	limit := defaultStatusLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxStatusLimit)
	}

	records, err := s.status.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing status reports failed", "error", err)
		writeInternalError(w, "failed to list status reports")
		return
	}

	views := make([]statusView, 0, len(records))
	for _, rec := range records {
		views = append(views, statusView{
			CorrelationID: rec.CorrelationID,
			Category:      rec.Category,
			Severity:      string(rec.Severity),
			Key:           rec.Key,
			Message:       rec.Message,
			Detail:        rec.Detail,
			CreatedAt:     rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": views, "count": len(views)})
}
