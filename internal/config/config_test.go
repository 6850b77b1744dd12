package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func findFallback(fbs []Fallback, key string) (Fallback, bool) {
	for _, f := range fbs {
		if f.Key == key {
			return f, true
		}
	}
	return Fallback{}, false
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, fbs, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fbs) != 0 {
		t.Fatalf("unexpected fallbacks: %v", fbs)
	}
	def := Defaults()
	if cfg.Restart != def.Restart || cfg.Advanced != def.Advanced || cfg.Monitoring != def.Monitoring {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Restart.MaxAttempts != 5 || cfg.Restart.RestartDelay != 3 || !cfg.Restart.Autostart {
		t.Fatalf("unexpected restart defaults: %+v", cfg.Restart)
	}
	if cfg.Logging.MaxLogFiles != 10 || !cfg.Logging.DateOrganized {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Advanced.StartupPause() != 500*time.Millisecond {
		t.Fatalf("startup pause = %v", cfg.Advanced.StartupPause())
	}
	if cfg.Advanced.ShutdownWindow() != 15*time.Second {
		t.Fatalf("shutdown window = %v", cfg.Advanced.ShutdownWindow())
	}
}

func TestLoadOverridesAndPartialSections(t *testing.T) {
	p := writeFile(t, "config.yaml", `
restart:
  max_attempts: 2
  restart_delay: 0.5
logging:
  date_organized: false
advanced:
  startup_delay: 0
`)
	cfg, fbs, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(fbs) != 0 {
		t.Fatalf("unexpected fallbacks: %v", fbs)
	}
	if cfg.Restart.MaxAttempts != 2 {
		t.Fatalf("max_attempts = %d", cfg.Restart.MaxAttempts)
	}
	if cfg.Restart.Delay() != 500*time.Millisecond {
		t.Fatalf("delay = %v", cfg.Restart.Delay())
	}
	// untouched keys of a present section keep defaults
	if !cfg.Restart.Autostart || cfg.Restart.ResetCounterAfterMinutes != 30 {
		t.Fatalf("restart defaults lost: %+v", cfg.Restart)
	}
	if cfg.Logging.DateOrganized {
		t.Fatalf("date_organized should be false")
	}
	if cfg.Advanced.StartupDelay != 0 {
		t.Fatalf("startup_delay = %d", cfg.Advanced.StartupDelay)
	}
	// missing section falls back entirely
	if cfg.Monitoring != Defaults().Monitoring {
		t.Fatalf("monitoring should be defaults: %+v", cfg.Monitoring)
	}
}

func TestLoadMalformedFallsBackToDefaults(t *testing.T) {
	p := writeFile(t, "config.yaml", "restart: [max_attempts: 2\n  oops: {")
	cfg, fbs, err := Load(p)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if len(fbs) != 0 {
		t.Fatalf("no per-field fallbacks expected on malformed doc: %v", fbs)
	}
	if cfg.Restart != Defaults().Restart {
		t.Fatalf("expected default restart section, got %+v", cfg.Restart)
	}
}

func TestLoadWrongTypesRecordFallbacks(t *testing.T) {
	p := writeFile(t, "config.yaml", `
restart:
  max_attempts: "lots"
  autostart: "yes"
  restart_delay: -1
logging:
  level: loud
  max_log_files: 3
`)
	cfg, fbs, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, key := range []string{"restart.max_attempts", "restart.autostart", "restart.restart_delay", "logging.level"} {
		f, ok := findFallback(fbs, key)
		if !ok {
			t.Fatalf("expected fallback for %s, got %v", key, fbs)
		}
		if f.Reason == "" {
			t.Fatalf("fallback for %s has no reason", key)
		}
	}
	if cfg.Restart.MaxAttempts != 5 || !cfg.Restart.Autostart || cfg.Restart.RestartDelay != 3 {
		t.Fatalf("rejected keys must keep defaults: %+v", cfg.Restart)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Logging.MaxLogFiles != 3 {
		t.Fatalf("valid sibling key not applied: %d", cfg.Logging.MaxLogFiles)
	}
	f, _ := findFallback(fbs, "logging.level")
	if !strings.Contains(f.String(), "logging.level=loud") {
		t.Fatalf("fallback string = %q", f.String())
	}
}

func TestLoadUnlimitedAndDisabledValues(t *testing.T) {
	p := writeFile(t, "config.yaml", `
restart:
  max_attempts: 0
  reset_counter_after_minutes: 0
logging:
  max_log_files: -1
monitoring:
  status_interval: 0
`)
	cfg, fbs, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(fbs) != 0 {
		t.Fatalf("unexpected fallbacks: %v", fbs)
	}
	if cfg.Restart.MaxAttempts != 0 || cfg.Restart.ResetAfter() != 0 {
		t.Fatalf("restart = %+v", cfg.Restart)
	}
	if cfg.Logging.MaxLogFiles != -1 {
		t.Fatalf("max_log_files = %d", cfg.Logging.MaxLogFiles)
	}
	if cfg.Monitoring.Interval() != 0 {
		t.Fatalf("interval = %v", cfg.Monitoring.Interval())
	}
}

func TestLoadUnitsSection(t *testing.T) {
	p := writeFile(t, "config.yaml", `
units:
  dir: /srv/bots
  command: "python main.py"
  env:
    - "MODE=prod"
    - "broken"
`)
	cfg, fbs, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Units.Dir != "/srv/bots" || cfg.Units.Command != "python main.py" {
		t.Fatalf("units = %+v", cfg.Units)
	}
	if _, ok := findFallback(fbs, "units.env"); !ok {
		t.Fatalf("expected units.env fallback, got %v", fbs)
	}
	if len(cfg.Units.Env) != 0 {
		t.Fatalf("env should keep default, got %v", cfg.Units.Env)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("BOTVISOR_RESTART_MAX_ATTEMPTS", "7")
	t.Setenv("BOTVISOR_LOGGING_LOG_ERRORS", "false")
	t.Setenv("BOTVISOR_UNITS_ENV", "A=1, B=2")
	cfg, fbs, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(fbs) != 0 {
		t.Fatalf("unexpected fallbacks: %v", fbs)
	}
	if cfg.Restart.MaxAttempts != 7 {
		t.Fatalf("max_attempts = %d", cfg.Restart.MaxAttempts)
	}
	if cfg.Logging.LogErrors {
		t.Fatalf("log_errors should be false")
	}
	if len(cfg.Units.Env) != 2 || cfg.Units.Env[1] != "B=2" {
		t.Fatalf("env = %v", cfg.Units.Env)
	}
}

func TestLoadJSONDocument(t *testing.T) {
	p := writeFile(t, "config.json", `{"advanced": {"force_kill_timeout": 1.5, "debug_mode": true}}`)
	cfg, _, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Advanced.ForceKill() != 1500*time.Millisecond || !cfg.Advanced.DebugMode {
		t.Fatalf("advanced = %+v", cfg.Advanced)
	}
}

func TestLoadRejectsDurationsThatOverflow(t *testing.T) {
	p := writeFile(t, "config.yaml", `
restart:
  restart_delay: 1e12
  reset_counter_after_minutes: 1000000000
monitoring:
  status_interval: 1e300
advanced:
  shutdown_grace_period: 2e10
  force_kill_timeout: 9e9
  startup_delay: 9000000000000000000
`)
	cfg, fbs, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, key := range []string{
		"restart.restart_delay", "restart.reset_counter_after_minutes", "monitoring.status_interval",
		"advanced.shutdown_grace_period", "advanced.startup_delay",
	} {
		if _, ok := findFallback(fbs, key); !ok {
			t.Fatalf("expected fallback for %s, got %v", key, fbs)
		}
	}
	if cfg.Restart.Delay() != 3*time.Second {
		t.Fatalf("delay = %v", cfg.Restart.Delay())
	}
	// accepted on its own, but the window sum must not wrap around
	if cfg.Advanced.ForceKillTimeout != 9e9 {
		t.Fatalf("force_kill_timeout = %v", cfg.Advanced.ForceKillTimeout)
	}
	if w := cfg.Advanced.ShutdownWindow(); w <= 0 {
		t.Fatalf("shutdown window wrapped: %v", w)
	}
}

func TestDurationHelpersSaturate(t *testing.T) {
	if d := (RestartConfig{RestartDelay: 1e12}).Delay(); d <= 0 {
		t.Fatalf("delay = %v", d)
	}
	if d := (AdvancedConfig{StartupDelay: 1 << 62}).StartupPause(); d <= 0 {
		t.Fatalf("startup pause = %v", d)
	}
	if d := (RestartConfig{ResetCounterAfterMinutes: 1 << 40}).ResetAfter(); d <= 0 {
		t.Fatalf("reset after = %v", d)
	}
	w := AdvancedConfig{ShutdownGracePeriod: 9e9, ForceKillTimeout: 9e9}.ShutdownWindow()
	if w <= 0 {
		t.Fatalf("window = %v", w)
	}
}
