package session

import (
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/abrw/reqfilter"
)

// ContentFilterManager is the content filtering facility of the host engine.
type ContentFilterManager interface {
	// AddFilter installs the native content filter compiled from e.
	AddFilter(e *reqfilter.Engine)

	// RemoveAllFilters removes all installed content filters.
	RemoveAllFilters()
}

// Toggle turns the filtering on and off.  It is meant to be used from the UI
// thread, the flag it changes is safe to read concurrently.
type Toggle struct {
	logger *slog.Logger
	sess   *Session
	mgr    ContentFilterManager
}

// NewToggle returns a new toggle for the session.  All arguments must not be
// nil.
func NewToggle(sess *Session, mgr ContentFilterManager, logger *slog.Logger) (t *Toggle) {
	return &Toggle{
		logger: logger.With(slogutil.KeyPrefix, "toggle"),
		sess:   sess,
		mgr:    mgr,
	}
}

// Toggle flips the enabled flag, updates the content filters of the host
// engine, and returns the new state.
func (t *Toggle) Toggle() (enabled bool) {
	enabled = t.sess.Flag().Toggle()
	t.apply(enabled)

	return enabled
}

// Sync updates the content filters of the host engine according to the
// current state of the flag.
func (t *Toggle) Sync() {
	t.apply(t.sess.Flag().Enabled())
}

// apply installs the engine as the content filter if enabled is true and the
// engine is ready, otherwise it removes the content filters.
func (t *Toggle) apply(enabled bool) {
	t.mgr.RemoveAllFilters()

	if !enabled {
		t.logger.Info("filtering disabled by user")

		return
	}

	e, ok := t.sess.Engine()
	if !ok {
		t.logger.Warn("no engine to install", "state", t.sess.State())

		return
	}

	t.mgr.AddFilter(e)
	t.logger.Info("filtering enabled", "rules", e.RulesCount())
}
