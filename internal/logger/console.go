package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Console prints unit output to the terminal, one prefixed line per chunk.
type Console struct {
	mu         sync.Mutex
	w          io.Writer
	timestamps bool
	now        func() time.Time
}

func NewConsole(w io.Writer, timestamps bool) *Console {
	return &Console{w: w, timestamps: timestamps, now: time.Now}
}

// Output prints a stdout chunk as "[unit] text".
func (c *Console) Output(unit string, chunk []byte) {
	c.print(unit, "", chunk)
}

// Error prints a stderr chunk as "[unit] ❌ ERROR: text".
func (c *Console) Error(unit string, chunk []byte) {
	c.print(unit, "❌ ERROR: ", chunk)
}

// Printf prints a supervisor message without a unit prefix.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "%s%s\n", c.stamp(), fmt.Sprintf(format, args...))
}

func (c *Console) print(unit, marker string, chunk []byte) {
	text := strings.TrimSpace(string(chunk))
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "%s[%s] %s%s\n", c.stamp(), unit, marker, text)
}

func (c *Console) stamp() string {
	if !c.timestamps {
		return ""
	}
	return "[" + c.now().Format("2006-01-02 15:04:05") + "] "
}
