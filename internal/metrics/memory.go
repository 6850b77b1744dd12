package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// MB is the unit of memory_warning_threshold.
const MB = 1024 * 1024

// SampleRSS returns the resident set size of pid and its descendants, so a
// unit launched through a shell or interpreter wrapper is measured whole.
func SampleRSS(ctx context.Context, pid int) (uint64, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, err
	}
	total, err := rss(ctx, root)
	if err != nil {
		return 0, err
	}
	children, _ := root.ChildrenWithContext(ctx)
	for len(children) > 0 {
		next := children[:0:0]
		for _, c := range children {
			if v, err := rss(ctx, c); err == nil {
				total += v
			}
			if gc, err := c.ChildrenWithContext(ctx); err == nil {
				next = append(next, gc...)
			}
		}
		children = next
	}
	return total, nil
}

func rss(ctx context.Context, p *process.Process) (uint64, error) {
	mi, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}

// ExceedsMB reports whether bytes is above a threshold given in megabytes.
// A threshold <= 0 disables the check.
func ExceedsMB(bytes uint64, thresholdMB int) bool {
	return thresholdMB > 0 && bytes > uint64(thresholdMB)*MB
}
