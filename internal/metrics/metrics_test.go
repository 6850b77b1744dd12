package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("a")
	IncStart("a")
	IncRestart("a")
	IncExit("a", OutcomeUnclean)
	IncGaveUp("a")
	SetLive("a", true)
	SetRestartAttempts("a", 2)
	SetRSS("a", 1024)
	IncHistoryDropped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"botvisor_unit_starts_total":          false,
		"botvisor_unit_restarts_total":        false,
		"botvisor_unit_exits_total":           false,
		"botvisor_unit_gave_up_total":         false,
		"botvisor_unit_live":                  false,
		"botvisor_unit_restart_attempts":      false,
		"botvisor_unit_resident_memory_bytes": false,
		"botvisor_history_dropped_total":      false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
		if n == "botvisor_unit_starts_total" {
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 2 {
				t.Fatalf("starts_total = %v", v)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `botvisor_unit_live{unit="a"} 1`) {
		t.Fatalf("metrics output missing live gauge:\n%s", body)
	}
}

func TestSampleRSSSelf(t *testing.T) {
	v, err := SampleRSS(context.Background(), os.Getpid())
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if v == 0 {
		t.Fatalf("expected non-zero RSS for the test process")
	}
	if _, err := SampleRSS(context.Background(), 0); err == nil {
		t.Fatalf("expected error for pid 0")
	}
}

func TestExceedsMB(t *testing.T) {
	if ExceedsMB(600*MB, 0) {
		t.Fatalf("threshold 0 disables the check")
	}
	if !ExceedsMB(600*MB, 500) || ExceedsMB(400*MB, 500) {
		t.Fatalf("threshold comparison wrong")
	}
}
