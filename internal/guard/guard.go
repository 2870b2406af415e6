// Package guard holds the pause/shutdown switch shared by the gated ledgers.
// Every gated entry point consults the same switch at the top of the call so
// a guard cannot be missed in one code path and present in another.
package guard

import "errors"

var (
	ErrPaused        = errors.New("paused")
	ErrNotPaused     = errors.New("not paused")
	ErrAlreadyPaused = errors.New("already paused")
	ErrShutdown      = errors.New("shut down")
)

// Switch is not safe for concurrent use by itself, it is owned and serialized
// by the aggregate embedding it.
type Switch struct {
	paused   bool
	shutdown bool
}

func (s *Switch) Paused() bool {
	return s.paused
}

func (s *Switch) IsShutdown() bool {
	return s.shutdown
}

// RequireRunning gates user-facing mutations: invest, withdraw, lock.
func (s *Switch) RequireRunning() error {
	if s.shutdown {
		return ErrShutdown
	}
	if s.paused {
		return ErrPaused
	}
	return nil
}

// RequirePaused gates bulk-cancel operations that must not race live entries.
func (s *Switch) RequirePaused() error {
	if !s.paused {
		return ErrNotPaused
	}
	return nil
}

func (s *Switch) Pause() error {
	if s.shutdown {
		return ErrShutdown
	}
	if s.paused {
		return ErrAlreadyPaused
	}
	s.paused = true
	return nil
}

func (s *Switch) Unpause() error {
	if s.shutdown {
		return ErrShutdown
	}
	if !s.paused {
		return ErrNotPaused
	}
	s.paused = false
	return nil
}

// Shutdown is one-directional, there is no way back.
func (s *Switch) Shutdown() error {
	if s.shutdown {
		return ErrShutdown
	}
	s.shutdown = true
	return nil
}

// Restore rebuilds the switch from persisted state at startup.
func (s *Switch) Restore(paused, shutdown bool) {
	s.paused = paused
	s.shutdown = shutdown
}
