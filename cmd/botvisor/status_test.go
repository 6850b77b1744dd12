package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loykin/botvisor/pkg/client"
)

func TestStatusShowsUnitsThatGaveUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.StatusResponse{
			Units:           []string{"alpha", "beta"},
			Live:            []client.UnitStatus{{Name: "alpha", PID: 7, UptimeSeconds: 61, Restarts: 1}},
			RestartAttempts: map[string]int{"alpha": 1, "beta": 5},
		})
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := cmdStatus(context.Background(), &out, client.New(client.Config{BaseURL: srv.URL})); err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"alpha: Running (uptime: 0h 1m 1s, PID: 7, restarts: 1)",
		"beta: Stopped (restart attempts: 5)",
		"1 of 2 bot(s) running",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "alpha: Stopped") {
		t.Fatalf("live unit listed as stopped:\n%s", out.String())
	}
}
