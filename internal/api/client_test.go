package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetries(2, time.Millisecond)}, opts...)
	c, err := NewClient(srv.URL+"/api", nil, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost:8080", nil)
	assert.Error(t, err)
	_, err = NewClient("::", nil)
	assert.Error(t, err)
}

func TestListAreasSendsUserEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/areas", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ops@example.com", r.Header.Get("X-User-Email"))
		writeJSON(w, http.StatusOK, []model.Area{
			{ID: 1, Name: "Main Hall", Capacity: 500, Threshold: 400, CurrentCount: 450, Status: model.StatusYellow},
			{ID: 2, Name: "Gate B", Capacity: 100, Threshold: 80, CurrentCount: 10, Status: model.StatusGreen},
		})
	})

	c := newTestClient(t, mux, WithUserEmail("ops@example.com"))
	areas, err := c.ListAreas(context.Background())
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "Main Hall", areas[0].Name)
	assert.Equal(t, model.StatusYellow, areas[0].Status)
}

func TestGetAreaNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/areas/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c := newTestClient(t, mux)
	_, err := c.GetArea(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "/areas/99", se.Path)
}

func TestCreateAreaBadRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/areas", func(w http.ResponseWriter, r *http.Request) {
		var req model.AreaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if req.Threshold > req.Capacity {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold exceeds capacity"})
			return
		}
		writeJSON(w, http.StatusCreated, model.Area{ID: 7, Name: req.Name, Capacity: req.Capacity, Threshold: req.Threshold})
	})

	c := newTestClient(t, mux)

	area, err := c.CreateArea(context.Background(), model.AreaRequest{Name: "Stage", Capacity: 100, Threshold: 80})
	require.NoError(t, err)
	assert.Equal(t, int64(7), area.ID)

	_, err = c.CreateArea(context.Background(), model.AreaRequest{Name: "Stage", Capacity: 10, Threshold: 80})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "threshold exceeds capacity", se.Message)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/alerts/active", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, []model.Alert{{ID: 1, AlertType: model.AlertOvercrowding}})
	})

	c := newTestClient(t, mux)
	alerts, err := c.ActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/areas", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := newTestClient(t, mux)
	_, err := c.ListAreas(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scans", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, mux)
	_, err := c.ProcessScan(context.Background(), model.ScanRequest{AreaID: 1, ScanType: model.ScanEntry})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.ProcessScan(context.Background(), model.ScanRequest{AreaID: 1, ScanType: "SIDEWAYS"})
	assert.ErrorContains(t, err, "invalid scan type")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/areas", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	c := newTestClient(t, mux, WithRetries(0, time.Millisecond))
	for range 10 {
		_, err := c.ListAreas(context.Background())
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := c.ListAreas(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(10), calls.Load())
}

func TestCircuitBreakerCooldown(t *testing.T) {
	var cb circuitBreaker
	for range 9 {
		cb.recordFailure()
	}
	assert.False(t, cb.shouldSkip())

	cb.recordFailure()
	assert.True(t, cb.shouldSkip())
	assert.WithinDuration(t, time.Now().Add(30*time.Second), cb.cooldownUntil, time.Second)

	for range 100 {
		cb.recordFailure()
	}
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), cb.cooldownUntil, time.Second)

	cb.recordSuccess()
	assert.False(t, cb.shouldSkip())
}

func TestListAlertsQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/alerts", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "UNREAD", q.Get("status"))
		assert.Equal(t, "5", q.Get("areaId"))
		assert.Equal(t, "24h", q.Get("dateRange"))
		assert.False(t, q.Has("type"))
		io.WriteString(w, `[{"id":3,"areaId":5,"alertType":"RAPID_INFLOW","status":"UNREAD","createdAt":"2024-05-01T10:00:00"}]`) //nolint:errcheck
	})

	c := newTestClient(t, mux)
	alerts, err := c.ListAlerts(context.Background(), AlertFilter{Status: model.AlertUnread, AreaID: 5})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertRapidInflow, alerts[0].AlertType)
	assert.True(t, alerts[0].Active())
}

func TestAlertActions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/alerts/unread-count", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"count": 4}`) //nolint:errcheck
	})
	mux.HandleFunc("PUT /api/alerts/{id}/resolve", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8", r.PathValue("id"))
		io.WriteString(w, `{"id":8,"status":"RESOLVED","createdAt":"2024-05-01T10:00:00","resolvedAt":"2024-05-01T10:05:00"}`) //nolint:errcheck
	})
	mux.HandleFunc("PUT /api/alerts/mark-all-read", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	n, err := c.UnreadAlertCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	alert, err := c.ResolveAlert(ctx, 8)
	require.NoError(t, err)
	assert.False(t, alert.Active())
	require.NotNil(t, alert.ResolvedAt)

	assert.NoError(t, c.MarkAllAlertsRead(ctx))
}

func TestScans(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scans/recent", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		io.WriteString(w, `[{"id":1,"areaId":2,"scanType":"EXIT","timestamp":[2024,5,1,10,0,0],"newCount":9}]`) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/scans/area/{id}/trend", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"hour":"09:00","entries":10,"exits":2,"count":8}]`) //nolint:errcheck
	})
	mux.HandleFunc("POST /api/scans", func(w http.ResponseWriter, r *http.Request) {
		var req model.ScanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, map[string]any{"id": 2, "areaId": req.AreaID, "scanType": req.ScanType, "newCount": 10, "timestamp": "2024-05-01T10:00:00"})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	scans, err := c.RecentScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, model.ScanExit, scans[0].ScanType)
	assert.Equal(t, 2024, scans[0].Timestamp.Year())

	trend, err := c.HourlyTrend(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.HourlyTrend{{Hour: "09:00", Entries: 10, Exits: 2, Count: 8}}, trend)

	resp, err := c.ProcessScan(ctx, model.ScanRequest{AreaID: 2, ScanType: model.ScanEntry})
	require.NoError(t, err)
	assert.Equal(t, 10, resp.NewCount)
}

func TestEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events/grouped", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"live":[{"id":1,"name":"Concert","status":"LIVE","eventDateTime":"2024-05-01T18:00:00"}],"upcoming":[],"completed":[]}`) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/events/public/{id}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":1,"name":"Concert","status":"LIVE","eventDateTime":"2024-05-01T18:00:00","areas":[{"id":4,"name":"Pit"}]}`) //nolint:errcheck
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	grouped, err := c.GroupedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, grouped.Live, 1)
	assert.Equal(t, model.EventLive, grouped.Live[0].Status)
	assert.Empty(t, grouped.Upcoming)

	ev, err := c.GetPublicEvent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ev.Areas, 1)
	assert.Equal(t, "Pit", ev.Areas[0].Name)
}

func TestAreaQRCode(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), 1, 2, 3)
	encoded := base64.StdEncoding.EncodeToString(png)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/areas/1/qrcode/entry", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(png) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/areas/1/qrcode/exit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "data:image/png;base64,"+encoded)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	got, err := c.AreaQRCode(ctx, 1, model.ScanEntry)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	got, err = c.AreaQRCode(ctx, 1, model.ScanExit)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	_, err = c.AreaQRCode(ctx, 1, "SIDE")
	assert.Error(t, err)

	_, err = decodeQRCode([]byte(base64.StdEncoding.EncodeToString([]byte("not a png"))))
	assert.ErrorContains(t, err, "not a png")
}

func TestAnalyticsPassThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/analytics/daily", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-05-01", r.URL.Query().Get("date"))
		io.WriteString(w, `{"totalEntries":120}`) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/analytics/prediction/{id}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"predicted":42}`) //nolint:errcheck
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	raw, err := c.DailySummary(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalEntries":120}`, string(raw))

	raw, err = c.Prediction(ctx, 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"predicted":42}`, string(raw))
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "admin123" {
			writeJSON(w, http.StatusUnauthorized, model.LoginResponse{Success: false, Message: "Invalid credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
		writeJSON(w, http.StatusOK, model.LoginResponse{Success: true, Message: "Login successful", Username: "admin"})
	})
	mux.HandleFunc("GET /api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("JSESSIONID"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, model.LoginResponse{Success: true, Message: "Session valid"})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	resp, err := c.Login(ctx, "admin", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid credentials", resp.Message)
	assert.False(t, c.Session().Authenticated)

	_, err = c.ValidateSession(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)

	resp, err = c.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, Session{Authenticated: true, Provider: "local", Username: "admin"}, c.Session())

	resp, err = c.ValidateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Session valid", resp.Message)

	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.Session().Authenticated)
}

func TestGoogleAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/google/url", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"url": "http://backend/oauth2/authorization/google"})
	})
	mux.HandleFunc("POST /api/auth/google/validate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] != "ops@example.com" {
			writeJSON(w, http.StatusUnauthorized, model.LoginResponse{Message: "User not authorized"})
			return
		}
		writeJSON(w, http.StatusOK, model.LoginResponse{Success: true, Message: "Login successful", Username: "Ops"})
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP", "service": "EventFlow API", "timestamp": "2024-05-01T10:00:00"})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	u, err := c.GoogleAuthURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://backend/oauth2/authorization/google", u)

	_, err = c.ValidateGoogle(ctx, "intruder@example.com")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.ValidateGoogle(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "google", c.Session().Provider)
	assert.Equal(t, "ops@example.com", c.UserEmail())

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UP", h.Status)
}
