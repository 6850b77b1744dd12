package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication_failed"})
			return
		}
		_ = json.NewEncoder(w).Encode(StatusResponse{
			Units: []string{"a", "b"},
			Live:  []UnitStatus{{Name: "a", PID: 42, StartedAt: time.Unix(100, 0).UTC(), UptimeSeconds: 5, State: "running"}},

			RestartAttempts: map[string]int{"b": 2},
		})
	})
	mux.HandleFunc("/api/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Query().Get("name") {
		case "a":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unit already running: a"})
		case "b":
			_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unknown unit"})
		}
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not json"))
	})
	mux.HandleFunc("/api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	srv := fakeAPI(t)
	c := New(Config{BaseURL: srv.URL + "/api", Token: "tok"})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, st.Units)
	require.Len(t, st.Live, 1)
	assert.Equal(t, 42, st.Live[0].PID)
	assert.Equal(t, map[string]int{"b": 2}, st.RestartAttempts)
	assert.True(t, c.IsReachable(context.Background()))

	_, err = New(Config{BaseURL: srv.URL + "/api"}).Status(context.Background())
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestStartStopShutdown(t *testing.T) {
	srv := fakeAPI(t)
	c := New(Config{BaseURL: srv.URL + "/api"})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, "b"))

	err := c.Start(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	assert.Contains(t, err.Error(), "already running")

	assert.Equal(t, http.StatusNotFound, StatusCode(c.Start(ctx, "zzz")))

	err = c.Stop(ctx, "a")
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, "HTTP 500", err.Error())

	assert.NoError(t, c.Shutdown(ctx))
}

func TestUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Status(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}
