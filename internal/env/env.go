// Package env composes the environment handed to unit processes.
package env

import (
	"os"
	"sort"
	"strings"
)

const (
	UnitVar    = "BOTVISOR_UNIT"
	UnitDirVar = "BOTVISOR_UNIT_DIR"
)

// Env holds the supervisor-wide variables applied on top of a base
// environment. The zero value uses the OS environment as its base.
type Env struct {
	base   map[string]string
	global map[string]string
}

// New parses KEY=VALUE pairs. Malformed entries and empty keys are skipped.
func New(pairs []string) *Env {
	return &Env{global: parse(pairs)}
}

// WithBase replaces the OS environment as the base, mostly for tests.
func (e *Env) WithBase(pairs []string) *Env {
	e.base = parse(pairs)
	return e
}

// ForUnit returns the sorted child environment for a unit: base, then
// global pairs, then the unit identity variables. ${VAR} references are
// expanded once against the composed set.
func (e *Env) ForUnit(id, root string) []string {
	base := e.base
	if base == nil {
		base = parse(os.Environ())
	}
	m := make(map[string]string, len(base)+len(e.global)+2)
	for k, v := range base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	m[UnitVar] = id
	m[UnitDirVar] = root

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], keys, m))
	}
	return out
}

func expand(s string, keys []string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for _, k := range keys {
		s = strings.ReplaceAll(s, "${"+k+"}", m[k])
	}
	return s
}

func parse(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}
