package common

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrModulePaused is returned when an operation is rejected because the
	// global pause switch is engaged.
	ErrModulePaused = errors.New("module paused")
	// ErrReentrantCall is returned when a guarded operation is entered again
	// while an external delegation is still outstanding.
	ErrReentrantCall = errors.New("reentrant call")
)

// PauseView exposes the pause switch to the guarded engines.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the named module is paused. A nil view or
// empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// CallGuard is an execution guard set before any external delegation and
// cleared on return. Nested entry into a guarded operation is rejected rather
// than deadlocked.
type CallGuard struct {
	busy atomic.Bool
}

// Enter acquires the guard, failing when the guard is already held.
func (g *CallGuard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit releases the guard.
func (g *CallGuard) Exit() {
	if g == nil {
		return
	}
	g.busy.Store(false)
}
