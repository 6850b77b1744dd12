package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/botvisor/internal/history"
	"github.com/loykin/botvisor/internal/logsink"
	"github.com/loykin/botvisor/internal/metrics"
	"github.com/loykin/botvisor/internal/process"
)

// outputWriter forwards one stream of a run to the loop. exec copies each
// pipe on its own goroutine, so chunks of a stream arrive in order.
type outputWriter struct {
	s      *Supervisor
	unit   string
	run    uint64
	stderr bool
}

func (w *outputWriter) Write(p []byte) (int, error) {
	chunk := append([]byte(nil), p...)
	w.s.post(func() { w.s.output(w.unit, w.run, w.stderr, chunk) })
	return len(p), nil
}

func (s *Supervisor) output(id string, run uint64, stderr bool, chunk []byte) {
	if r := s.live[id]; r != nil && r.run == run && r.sink != nil {
		if (stderr && s.cfg.Logging.LogErrors) || (!stderr && s.cfg.Logging.LogNormalOperations) {
			if _, err := r.sink.Write(chunk); err != nil {
				s.log.Warn("write unit log", "unit", id, "error", err)
			}
		}
	}
	if stderr {
		s.console.Error(id, chunk)
	} else {
		s.console.Output(id, chunk)
	}
}

func (s *Supervisor) openSink(id string, at time.Time) *logsink.Sink {
	if s.logs == nil || !(s.cfg.Logging.LogNormalOperations || s.cfg.Logging.LogErrors) {
		return nil
	}
	sink, err := s.logs.Open(id, at)
	if sink == nil {
		s.log.Warn("open unit log", "unit", id, "error", err)
		return nil
	}
	if err != nil {
		s.log.Warn("prune unit logs", "unit", id, "error", err)
	}
	return sink
}

// start spawns one run of a unit. A spawn failure is handled as an exit with
// the ERROR signal, so it goes through the restart policy like a crash.
func (s *Supervisor) start(id string, isRestart bool) error {
	if err := s.admitStart(id); err != nil {
		return err
	}
	s.cancelRestart(id)
	u := s.units[id]
	s.nextRun++
	r := &record{unit: u, run: s.nextRun}

	now := time.Now()
	r.sink = s.openSink(id, now)
	if r.sink != nil {
		_, _ = r.sink.WriteString(logsink.StartMarker(id, now, isRestart))
	}

	r.proc = process.New(process.Spec{
		Name:    id,
		Command: s.cfg.Units.Command,
		WorkDir: u.Root,
		Env:     s.env.ForUnit(id, u.Root),
	})
	stdout := &outputWriter{s: s, unit: id, run: r.run}
	stderr := &outputWriter{s: s, unit: id, run: r.run, stderr: true}
	if err := r.proc.Start(stdout, stderr); err != nil {
		s.log.Error("unit failed to start", "unit", id, "error", err)
		s.finishRun(r, process.ErrorExit(err))
		return err
	}

	s.live[id] = r
	if d := s.resetAfter; d > 0 {
		run := r.run
		r.resetTimer = s.after(d, func() { s.resetDue(id, run) })
	}
	go s.wait(r.proc, id, r.run)

	attempt := s.tracker.Count(id)
	metrics.IncStart(id)
	metrics.SetLive(id, true)
	s.emit(history.Event{Type: history.EventStart, Unit: id, PID: r.proc.PID(), Attempt: attempt})
	s.log.Info("unit started", "unit", id, "pid", r.proc.PID(), "restart", isRestart)
	return nil
}

func (s *Supervisor) wait(p *process.Process, id string, run uint64) {
	ex := p.Wait()
	s.post(func() { s.exited(id, run, ex) })
}

func (s *Supervisor) exited(id string, run uint64, ex process.Exit) {
	r := s.live[id]
	if r == nil || r.run != run {
		return
	}
	delete(s.live, id)
	s.finishRun(r, ex)
}

// finishRun closes out a run that is no longer in the live table.
func (s *Supervisor) finishRun(r *record, ex process.Exit) {
	id := r.unit.ID
	r.stopTimers()
	at := time.Now()
	if r.sink != nil {
		switch {
		case ex.Err != nil:
			if s.cfg.Logging.LogErrors {
				_, _ = r.sink.WriteString(logsink.ErrorMarker(id, ex.Err, at))
			}
		case ex.Clean():
			if s.cfg.Logging.LogNormalOperations {
				_, _ = r.sink.WriteString(logsink.ExitMarker(id, ex.Code, ex.Signal, at))
			}
		default:
			if s.cfg.Logging.LogErrors {
				_, _ = r.sink.WriteString(logsink.ExitMarker(id, ex.Code, ex.Signal, at))
			}
		}
		if err := r.sink.Close(); err != nil {
			s.log.Warn("close unit log", "unit", id, "error", err)
		}
	}

	metrics.SetLive(id, false)
	metrics.IncExit(id, outcome(ex))
	s.emit(history.Event{
		Type:     history.EventExit,
		Unit:     id,
		PID:      r.proc.PID(),
		Attempt:  s.tracker.Count(id),
		ExitCode: ex.Code,
		Signal:   ex.Signal,
		Detail:   errDetail(ex.Err),
	})
	s.log.Info("unit exited", "unit", id, "exit", ex.String())

	s.decide(id, ex, r.stopRequested)

	if s.draining && len(s.live) == 0 {
		s.log.Info("all units stopped")
		s.complete()
	}
}

// decide applies the restart policy to an exit.
func (s *Supervisor) decide(id string, ex process.Exit, stopRequested bool) {
	if s.draining {
		return
	}
	if stopRequested {
		s.log.Info("unit stopped", "unit", id)
		return
	}
	if ex.Clean() {
		s.log.Info("unit exited cleanly, not restarting", "unit", id)
		return
	}
	if !s.tracker.Admit(id) {
		metrics.IncGaveUp(id)
		s.emit(history.Event{Type: history.EventGaveUp, Unit: id, Attempt: s.tracker.Count(id), ExitCode: ex.Code, Signal: ex.Signal})
		s.log.Error("unit exceeded maximum restart attempts, giving up",
			"unit", id, "max_attempts", s.tracker.Ceiling())
		return
	}
	n := s.tracker.Increment(id)
	metrics.IncRestart(id)
	metrics.SetRestartAttempts(id, n)
	s.emit(history.Event{Type: history.EventRestartScheduled, Unit: id, Attempt: n, ExitCode: ex.Code, Signal: ex.Signal})

	delay := s.cfg.Restart.Delay()
	attrs := []any{"unit", id, "delay", delay, "attempt", n}
	if !s.tracker.Unlimited() {
		attrs = append(attrs, "max_attempts", s.tracker.Ceiling())
	}
	s.log.Warn("restarting unit", attrs...)
	s.cancelRestart(id)
	s.nextRun++
	seq := s.nextRun
	s.pending[id] = pendingRestart{timer: s.after(delay, func() { s.restartDue(id, seq) }), seq: seq}
}

// restartDue launches a scheduled restart unless it was cancelled or
// superseded since.
func (s *Supervisor) restartDue(id string, seq uint64) {
	p, ok := s.pending[id]
	if !ok || p.seq != seq {
		return
	}
	delete(s.pending, id)
	if s.draining {
		return
	}
	if _, live := s.live[id]; live {
		return
	}
	if err := s.start(id, true); err != nil && !errors.Is(err, ErrDraining) {
		s.log.Debug("restart did not launch", "unit", id, "error", err)
	}
}

// cancelRestart drops a scheduled restart of id and reports whether one was
// pending.
func (s *Supervisor) cancelRestart(id string) bool {
	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, id)
	return true
}

func (s *Supervisor) resetDue(id string, run uint64) {
	r := s.live[id]
	if r == nil || r.run != run {
		return
	}
	s.tracker.Reset(id)
	metrics.SetRestartAttempts(id, 0)
	s.log.Debug("restart attempts reset after healthy runtime", "unit", id)
}

// stop sends a graceful termination and arms the forced kill.
func (s *Supervisor) stop(id string) error {
	if _, ok := s.units[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	r := s.live[id]
	if r == nil {
		if s.cancelRestart(id) {
			s.emit(history.Event{Type: history.EventStopRequested, Unit: id})
			s.log.Info("pending restart cancelled", "unit", id)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	if r.stopRequested {
		return nil
	}
	r.stopRequested = true
	if r.resetTimer != nil {
		r.resetTimer.Stop()
	}
	s.emit(history.Event{Type: history.EventStopRequested, Unit: id, PID: r.proc.PID()})
	s.log.Info("stopping unit", "unit", id, "pid", r.proc.PID())
	if err := r.proc.Terminate(); err != nil {
		s.log.Warn("terminate unit", "unit", id, "error", err)
	}
	run := r.run
	r.killTimer = s.after(s.cfg.Advanced.ForceKill(), func() { s.killDue(id, run) })
	return nil
}

func (s *Supervisor) killDue(id string, run uint64) {
	r := s.live[id]
	if r == nil || r.run != run {
		return
	}
	s.log.Warn("force killing unit", "unit", id, "pid", r.proc.PID())
	if err := r.proc.Kill(); err != nil {
		s.log.Warn("kill unit", "unit", id, "error", err)
	}
}

func outcome(ex process.Exit) string {
	switch {
	case ex.Err != nil:
		return metrics.OutcomeError
	case ex.Clean():
		return metrics.OutcomeClean
	default:
		return metrics.OutcomeUnclean
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
