package env

import (
	"strings"
	"testing"
)

func lookup(env []string, key string) (string, bool) {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

func TestForUnitLayering(t *testing.T) {
	e := New([]string{"MODE=prod", "HOME=/srv", "bad", "=x"}).
		WithBase([]string{"HOME=/root", "PATH=/usr/bin"})
	out := e.ForUnit("echo", "/bots/echo")

	if v, _ := lookup(out, "HOME"); v != "/srv" {
		t.Fatalf("global should override base, HOME=%q", v)
	}
	if v, _ := lookup(out, "PATH"); v != "/usr/bin" {
		t.Fatalf("PATH=%q", v)
	}
	if v, _ := lookup(out, UnitVar); v != "echo" {
		t.Fatalf("%s=%q", UnitVar, v)
	}
	if v, _ := lookup(out, UnitDirVar); v != "/bots/echo" {
		t.Fatalf("%s=%q", UnitDirVar, v)
	}
	for _, kv := range out {
		if strings.HasPrefix(kv, "=") || !strings.Contains(kv, "=") {
			t.Fatalf("malformed pair %q", kv)
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i-1] > out[i] {
			t.Fatalf("output not sorted: %v", out)
		}
	}
}

func TestForUnitExpansion(t *testing.T) {
	e := New([]string{"DATA=${BOTVISOR_UNIT_DIR}/data", "GREETING=hi ${NAME}"}).
		WithBase([]string{"NAME=bob"})
	out := e.ForUnit("echo", "/bots/echo")
	if v, _ := lookup(out, "DATA"); v != "/bots/echo/data" {
		t.Fatalf("DATA=%q", v)
	}
	if v, _ := lookup(out, "GREETING"); v != "hi bob" {
		t.Fatalf("GREETING=%q", v)
	}
}

func TestZeroValueUsesOS(t *testing.T) {
	t.Setenv("BOTVISOR_ENV_TEST", "yes")
	var e Env
	out := e.ForUnit("x", "/x")
	if v, ok := lookup(out, "BOTVISOR_ENV_TEST"); !ok || v != "yes" {
		t.Fatalf("OS variable missing: %q %v", v, ok)
	}
}

// FuzzForUnit checks that arbitrary pairs never produce malformed output.
func FuzzForUnit(f *testing.F) {
	f.Add("A=1\nB=${A}-x", "unit")
	f.Add("X=${Y}\nY=${X}", "u")
	f.Fuzz(func(t *testing.T, pairs, id string) {
		e := New(strings.Split(pairs, "\n")).WithBase(nil)
		for _, kv := range e.ForUnit(id, "/r") {
			if strings.HasPrefix(kv, "=") || !strings.Contains(kv, "=") {
				t.Fatalf("bad pair %q", kv)
			}
		}
	})
}
