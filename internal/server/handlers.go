package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/analytics"
	"github.com/crowdpulse/crowdfeed/internal/api"
	"github.com/crowdpulse/crowdfeed/internal/model"
	"github.com/crowdpulse/crowdfeed/internal/realtime"
)

const defaultScanLimit = 20

func (s *StatusServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(dashboardHTML) //nolint:errcheck
}

// requireSource writes a 503 and returns nil until the monitor is attached.
func (s *StatusServer) requireSource(w http.ResponseWriter) Source {
	src := s.getSource()
	if src == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "monitor not started"})
	}
	return src
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	src := s.requireSource(w)
	if src == nil {
		return
	}

	state := src.FeedState()
	stats := src.FeedStats()
	updated, from := src.Store().LastUpdate()

	status := "ok"
	if state != realtime.StateConnected {
		status = "degraded"
	}

	resp := healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Feed: feedHealth{
			State:         state.String(),
			Subscriptions: stats.Subscriptions,
			Delivered:     stats.Delivered,
			Dropped:       stats.Dropped,
			Unrouted:      stats.Unrouted,
			HandlerPanics: stats.HandlerPanics,
			Reconnects:    stats.Reconnects,
		},
		UpdateSource: string(from),
	}
	if !stats.LastConnected.IsZero() {
		t := stats.LastConnected.UTC()
		resp.Feed.LastConnected = &t
	}
	if !updated.IsZero() {
		t := updated.UTC()
		resp.LastUpdate = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *StatusServer) handleAreas(w http.ResponseWriter, _ *http.Request) {
	src := s.requireSource(w)
	if src == nil {
		return
	}
	writeJSON(w, http.StatusOK, src.Store().Areas())
}

func (s *StatusServer) handleArea(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	src := s.requireSource(w)
	if src == nil {
		return
	}

	a, found := src.Store().Area(id)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "area not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *StatusServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	src := s.requireSource(w)
	if src == nil {
		return
	}
	writeJSON(w, http.StatusOK, src.Store().Summary())
}

// handleAlerts lists stored alerts; ?active=true drops resolved ones.
func (s *StatusServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	src := s.requireSource(w)
	if src == nil {
		return
	}

	var alerts []model.Alert
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		alerts = src.Store().ActiveAlerts()
	} else {
		alerts = src.Store().Alerts()
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *StatusServer) handleScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultScanLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	src := s.requireSource(w)
	if src == nil {
		return
	}

	scans := src.Store().RecentScans()
	if len(scans) > limit {
		scans = scans[:limit]
	}
	if scans == nil {
		scans = []model.ScanEvent{}
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *StatusServer) handleHeatmap(w http.ResponseWriter, _ *http.Request) {
	src := s.requireSource(w)
	if src == nil {
		return
	}
	writeJSON(w, http.StatusOK, analytics.Heatmap(src.Store().Areas()))
}

func (s *StatusServer) handlePrediction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	src := s.requireSource(w)
	if src == nil {
		return
	}
	if _, found := src.Store().Area(id); !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "area not found"})
		return
	}

	p, err := src.Predict(r.Context(), id)
	switch {
	case errors.Is(err, api.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no trend data for area"})
	case err != nil:
		s.log.Warn("Prediction failed", "area", id, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "prediction unavailable"})
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid area id"})
		return 0, false
	}
	return id, true
}

type healthResponse struct {
	Status       string     `json:"status"`
	Timestamp    string     `json:"timestamp"`
	Uptime       string     `json:"uptime"`
	Feed         feedHealth `json:"feed"`
	LastUpdate   *time.Time `json:"last_update,omitempty"`
	UpdateSource string     `json:"update_source,omitempty"`
}

type feedHealth struct {
	State         string     `json:"state"`
	Subscriptions int        `json:"subscriptions"`
	Delivered     uint64     `json:"delivered"`
	Dropped       uint64     `json:"dropped"`
	Unrouted      uint64     `json:"unrouted"`
	HandlerPanics uint64     `json:"handler_panics"`
	Reconnects    uint64     `json:"reconnects"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}
