package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/botvisor/internal/metrics"
	"github.com/loykin/botvisor/internal/process"
)

// Run launches the units when autostart is enabled, with the configured
// pause between launches, then blocks until shutdown completed. Cancelling
// ctx triggers Shutdown. The loop is closed when Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.Close()

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.done:
		}
	}()

	stopReports := s.startStatusReports()
	defer stopReports()

	switch {
	case len(s.order) == 0:
		s.log.Warn("no units found", "dir", s.cfg.Units.Dir)
	case !s.cfg.Restart.Autostart:
		s.log.Info("autostart disabled, units will not start automatically", "units", strings.Join(s.order, ", "))
	default:
		s.log.Info("found units", "count", len(s.order), "units", strings.Join(s.order, ", "))
		if err := s.launchAll(ctx); err != nil {
			return err
		}
	}

	<-s.done
	return nil
}

func (s *Supervisor) launchAll(ctx context.Context) error {
	pause := s.cfg.Advanced.StartupPause()
	for i, id := range s.order {
		if i > 0 && pause > 0 {
			t := time.NewTimer(pause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-s.done:
				t.Stop()
				return nil
			}
		}
		err := s.call(func() error { return s.start(id, false) })
		switch {
		case err == nil, errors.Is(err, ErrAlreadyRunning):
		case errors.Is(err, ErrDraining):
			return nil
		case errors.Is(err, ErrClosed):
			return fmt.Errorf("launch %s: %w", id, err)
		}
	}
	s.log.Info("all units launched, monitoring for crashes")
	return nil
}

// startStatusReports prints a status line per live unit every
// monitoring.status_interval. Memory sampling happens off the loop.
func (s *Supervisor) startStatusReports() func() {
	interval := s.cfg.Monitoring.Interval()
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.report(ctx)
			}
		}
	}()
	return cancel
}

func (s *Supervisor) report(ctx context.Context) {
	var (
		statuses []process.Status
		draining bool
	)
	err := s.call(func() error {
		draining = s.draining
		if !draining {
			statuses = s.snapshot()
		}
		return nil
	})
	if err != nil || draining || len(statuses) == 0 {
		return
	}
	s.console.Printf("=== Status: %d unit(s) running ===", len(statuses))
	for _, st := range statuses {
		line := st.Line()
		if s.cfg.Monitoring.PerformanceLogging {
			if rss, err := metrics.SampleRSS(ctx, st.PID); err == nil {
				metrics.SetRSS(st.Name, rss)
				line += fmt.Sprintf(" memory: %.1f MB", float64(rss)/metrics.MB)
				if metrics.ExceedsMB(rss, s.cfg.Monitoring.MemoryWarningThreshold) {
					s.log.Warn("high memory usage", "unit", st.Name, "rss_mb", rss/metrics.MB,
						"threshold_mb", s.cfg.Monitoring.MemoryWarningThreshold)
				}
			}
		}
		s.console.Printf("%s", line)
	}
}
