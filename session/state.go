package session

import (
	"fmt"
	"sync/atomic"
)

// State is the state of the session startup.
type State int32

// State values.
const (
	StateUninitialized State = iota
	StateLoading
	StateFetching
	StateCompiling
	StatePersisting
	StateReady
	StateDisabled
)

// String implements the [fmt.Stringer] interface for State.
func (s State) String() (str string) {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateFetching:
		return "fetching"
	case StateCompiling:
		return "compiling"
	case StatePersisting:
		return "persisting"
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("!bad_state_%d", int32(s))
	}
}

// Flag is the enabled flag of filtering shared by the toggle and the
// interceptors.  It is safe for concurrent use.
type Flag struct {
	enabled atomic.Bool
}

// NewFlag returns a new flag with the given value.
func NewFlag(enabled bool) (f *Flag) {
	f = &Flag{}
	f.enabled.Store(enabled)

	return f
}

// Enabled returns true if filtering is enabled.
func (f *Flag) Enabled() (ok bool) {
	return f.enabled.Load()
}

// Set sets the value of the flag.
func (f *Flag) Set(enabled bool) {
	f.enabled.Store(enabled)
}

// Toggle flips the flag and returns the new value.
func (f *Flag) Toggle() (enabled bool) {
	for {
		old := f.enabled.Load()
		if f.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
