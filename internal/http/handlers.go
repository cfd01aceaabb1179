package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nirmaan/internal/dashboard"
	"nirmaan/internal/log"
	"nirmaan/internal/services"
)

// OfflineNotice is returned when a manual sync is requested without a
// connection.
const OfflineNotice = "device is offline; sync will run when the connection returns"

type errorResponse struct {
	Error string `json:"error"`
}

type tableResponse struct {
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Deleted int    `json:"deleted,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type syncResponse struct {
	Direction  services.Direction  `json:"direction"`
	OK         bool                `json:"ok"`
	Skipped    services.SkipReason `json:"skipped,omitempty"`
	Notice     string              `json:"notice,omitempty"`
	Tables     []tableResponse     `json:"tables,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt"`
}

func newSyncResponse(r services.Report) syncResponse {
	out := syncResponse{
		Direction:  r.Direction,
		OK:         r.OK(),
		Skipped:    r.Skipped,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, t := range r.Tables {
		tr := tableResponse{Table: t.Table, Rows: t.Rows, Deleted: t.Deleted, Skipped: t.Skipped}
		if t.Err != nil {
			tr.Error = t.Err.Error()
		}
		out.Tables = append(out.Tables, tr)
	}
	switch r.Skipped {
	case services.SkipOffline:
		out.Notice = OfflineNotice
	case services.SkipUnconfigured:
		out.Notice = "no remote endpoint is configured"
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Default(log.ComponentHTTP).Error("Failed to encode response", log.FieldError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("scheduler stopped"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.Summarize(s.ledger.Snapshot()))
}

// handleSync runs one push or pull. Offline answers 503 without touching
// the engine; a run with failed tables answers 502 with the per-table
// outcome.
func (s *Server) handleSync(d services.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sync.Online() {
			writeJSON(w, http.StatusServiceUnavailable, syncResponse{
				Direction: d,
				Skipped:   services.SkipOffline,
				Notice:    OfflineNotice,
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.syncTimeout)
		defer cancel()

		var report services.Report
		if d == services.DirectionPush {
			report = s.sync.Push(ctx)
		} else {
			report = s.sync.Pull(ctx)
		}

		status := http.StatusOK
		switch {
		case report.Skipped == services.SkipOffline:
			status = http.StatusServiceUnavailable
		case report.Err() != nil:
			status = http.StatusBadGateway
		}
		writeJSON(w, status, newSyncResponse(report))
	}
}
