package process

import (
	"os/exec"
	"strings"
	"time"
)

// DefaultWaitDelay bounds how long Wait keeps reading output after the child
// exited while a descendant still holds its stdout or stderr open.
const DefaultWaitDelay = 2 * time.Second

// Spec describes one launch of a unit.
type Spec struct {
	Name      string        `json:"name"`
	Command   string        `json:"command"`  // command line, e.g. "node ."
	WorkDir   string        `json:"work_dir"` // unit root
	Env       []string      `json:"env"`      // complete child environment; empty inherits ours
	WaitDelay time.Duration `json:"wait_delay"`
}

// BuildCommand constructs an *exec.Cmd for spec.Command. Plain command lines
// are split on whitespace and executed directly; explicit "sh -c" invocations
// and lines containing shell metacharacters run through /bin/sh.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return trueCommand()
	}
	if script, ok := parseExplicitShell(cmdStr); ok {
		return shellCommand(script)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return shellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// parseExplicitShell detects "sh -c <script>" and returns the script with
// one pair of surrounding quotes removed.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
