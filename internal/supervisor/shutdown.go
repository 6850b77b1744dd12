package supervisor

// shutdown runs on the loop. The draining flag only moves from false to
// true, and the final exit is armed in that same step, so a second request
// cannot schedule it again.
func (s *Supervisor) shutdown() {
	if s.draining {
		s.log.Debug("shutdown already in progress")
		return
	}
	s.draining = true
	for id := range s.pending {
		s.cancelRestart(id)
	}

	ids := s.liveIDs()
	if len(ids) == 0 {
		s.log.Info("no units to stop, supervisor stopped")
		s.complete()
		return
	}
	s.log.Info("stopping all units", "count", len(ids))
	for _, id := range ids {
		if err := s.stop(id); err != nil {
			s.log.Warn("stop unit", "unit", id, "error", err)
		}
	}
	window := s.cfg.Advanced.ShutdownWindow()
	s.finalExit = s.after(window, func() {
		if n := len(s.live); n > 0 {
			s.log.Warn("shutdown window elapsed with units still live", "units", s.liveIDs())
		}
		s.log.Info("supervisor stopped")
		s.complete()
	})
}

func (s *Supervisor) complete() {
	if s.finalExit != nil {
		s.finalExit.Stop()
	}
	s.finish()
}
