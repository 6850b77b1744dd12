// Package supervisor runs discovered units as child processes, restarts them
// under a bounded-attempt policy and coordinates shutdown.
//
// Supervisor state is owned by a single loop goroutine. Process output,
// exits, timers and API calls reach it as closures posted on one channel, so
// nothing is locked and every transition completes within one step.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/loykin/botvisor/internal/config"
	"github.com/loykin/botvisor/internal/discovery"
	"github.com/loykin/botvisor/internal/env"
	"github.com/loykin/botvisor/internal/history"
	"github.com/loykin/botvisor/internal/logger"
	"github.com/loykin/botvisor/internal/logsink"
	"github.com/loykin/botvisor/internal/process"
	"github.com/loykin/botvisor/internal/restart"
)

var (
	ErrUnknownUnit    = errors.New("unknown unit")
	ErrAlreadyRunning = errors.New("unit already running")
	ErrNotRunning     = errors.New("unit not running")
	ErrDraining       = errors.New("supervisor is shutting down")
	ErrClosed         = errors.New("supervisor closed")
)

// Emitter receives lifecycle events. *history.Dispatcher implements it.
type Emitter interface {
	Emit(history.Event)
}

// Options wires a Supervisor. Only Config and Units are required.
type Options struct {
	Config  config.Config
	Units   []discovery.Unit
	Logs    *logsink.Provider // nil disables per-run log files
	Env     *env.Env
	History Emitter
	Logger  *slog.Logger
	Console *logger.Console
}

// Supervisor owns the live process table of a fixed set of units.
type Supervisor struct {
	cfg     config.Config
	units   map[string]discovery.Unit
	order   []string
	logs    *logsink.Provider
	env     *env.Env
	history Emitter
	log     *slog.Logger
	console *logger.Console

	// resetAfter is the healthy runtime after which the restart counter of a
	// live unit is cleared, zero to never clear it.
	resetAfter time.Duration

	ops       chan func()
	quit      chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	// owned by the loop goroutine
	live      map[string]*record
	pending   map[string]pendingRestart
	tracker   *restart.Tracker
	draining  bool
	nextRun   uint64
	finalExit *time.Timer
}

// record is the Live Process Record of one run.
type record struct {
	unit          discovery.Unit
	run           uint64
	proc          *process.Process
	sink          *logsink.Sink
	resetTimer    *time.Timer
	killTimer     *time.Timer
	stopRequested bool
}

// pendingRestart is a restart scheduled after an unclean exit. seq ties the
// timer's firing to the entry, so a cancelled or replaced timer is ignored.
type pendingRestart struct {
	timer *time.Timer
	seq   uint64
}

func (r *record) stopTimers() {
	if r.resetTimer != nil {
		r.resetTimer.Stop()
	}
	if r.killTimer != nil {
		r.killTimer.Stop()
	}
}

// New builds a supervisor and starts its loop. Nothing is launched until
// Run or Start is called.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		cfg:     opts.Config,
		units:   make(map[string]discovery.Unit, len(opts.Units)),
		logs:    opts.Logs,
		env:     opts.Env,
		history: opts.History,
		log:     opts.Logger,
		console: opts.Console,
		ops:     make(chan func(), 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		live:    make(map[string]*record),
		pending: make(map[string]pendingRestart),
		tracker: restart.NewTracker(opts.Config.Restart.MaxAttempts),

		resetAfter: opts.Config.Restart.ResetAfter(),
	}
	for _, u := range opts.Units {
		if _, dup := s.units[u.ID]; dup {
			continue
		}
		s.units[u.ID] = u
		s.order = append(s.order, u.ID)
	}
	if s.env == nil {
		s.env = env.New(opts.Config.Units.Env)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.console == nil {
		s.console = logger.NewConsole(os.Stdout, opts.Config.Logging.ConsoleTimestamps)
	}
	go s.loop()
	return s
}

func (s *Supervisor) loop() {
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the loop is gone.
func (s *Supervisor) post(fn func()) bool {
	select {
	case s.ops <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (s *Supervisor) call(fn func() error) error {
	reply := make(chan error, 1)
	if !s.post(func() { reply <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.quit:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// after posts fn to the loop once d elapsed.
func (s *Supervisor) after(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { s.post(fn) })
}

// Units returns the unit identifiers in discovery order.
func (s *Supervisor) Units() []string {
	return append([]string(nil), s.order...)
}

// Start launches a unit that is not live. A manual start clears the unit's
// restart counter, so a unit that gave up gets a fresh budget.
func (s *Supervisor) Start(id string) error {
	return s.call(func() error {
		if err := s.admitStart(id); err != nil {
			return err
		}
		s.tracker.Reset(id)
		return s.start(id, false)
	})
}

// Stop asks a live unit to terminate, or cancels its pending restart. The
// exit that follows is never restarted.
func (s *Supervisor) Stop(id string) error {
	return s.call(func() error { return s.stop(id) })
}

// Status returns the live units sorted by identifier.
func (s *Supervisor) Status() ([]process.Status, error) {
	var out []process.Status
	err := s.call(func() error {
		out = s.snapshot()
		return nil
	})
	return out, err
}

// RestartAttempts returns the non-zero restart counters, including those of
// units that are not live because they gave up or await a restart.
func (s *Supervisor) RestartAttempts() (map[string]int, error) {
	var out map[string]int
	err := s.call(func() error {
		out = s.tracker.Snapshot()
		return nil
	})
	return out, err
}

// Draining reports whether shutdown has begun.
func (s *Supervisor) Draining() bool {
	var d bool
	if err := s.call(func() error { d = s.draining; return nil }); err != nil {
		return true
	}
	return d
}

// Shutdown enters the draining state and stops every live unit. Done is
// closed once all units exited or the shutdown window elapsed. Calling it
// again has no effect.
func (s *Supervisor) Shutdown() {
	if err := s.call(func() error { s.shutdown(); return nil }); err != nil {
		s.finish()
	}
}

// Done is closed when the supervisor finished shutting down.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Close stops the loop. Processes still running are left alone; call
// Shutdown and wait for Done first.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.finish()
	})
}

func (s *Supervisor) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Supervisor) admitStart(id string) error {
	if _, ok := s.units[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	if s.draining {
		return ErrDraining
	}
	if _, live := s.live[id]; live {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	return nil
}

func (s *Supervisor) liveIDs() []string {
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Supervisor) snapshot() []process.Status {
	now := time.Now()
	out := make([]process.Status, 0, len(s.live))
	for _, id := range s.liveIDs() {
		r := s.live[id]
		started := r.proc.StartedAt()
		out = append(out, process.Status{
			Name:          id,
			PID:           r.proc.PID(),
			StartedAt:     started,
			UptimeSeconds: int64(now.Sub(started) / time.Second),
			Restarts:      s.tracker.Count(id),
			State:         "running",
		})
	}
	return out
}

func (s *Supervisor) emit(e history.Event) {
	if s.history == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	s.history.Emit(e)
}
