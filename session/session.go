// Package session contains the filtering session shared by the browser
// windows: the compiled engine, its startup state machine, the request
// interceptor and the toggle.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/abrw/reqfilter"
	"github.com/abrw/reqfilter/fetcher"
	"github.com/abrw/reqfilter/filterlist"
	"github.com/abrw/reqfilter/filterstore"
	"github.com/abrw/reqfilter/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// ErrEngineUnavailable is returned when no engine could be loaded or
	// built, filtering is disabled for the session.
	ErrEngineUnavailable errors.Error = "engine unavailable"

	// ErrNoURLs is returned when the engine must be built without any filter
	// list URLs.
	ErrNoURLs errors.Error = "no filter list urls"
)

// Store is the persistent storage of the engine.  [*filterstore.Store] is the
// usual implementation.
type Store interface {
	// Load returns the persisted engine or an error if there is none.
	Load(ctx context.Context) (e *reqfilter.Engine, err error)

	// Save persists e.
	Save(ctx context.Context, e *reqfilter.Engine) (err error)
}

// type check
var _ Store = (*filterstore.Store)(nil)

// Fetcher downloads the filter lists.  [*fetcher.Fetcher] is the usual
// implementation.
type Fetcher interface {
	// Fetch fetches urls into sink and returns the outcome for each URL.
	Fetch(ctx context.Context, urls []string, sink fetcher.Sink) (res []*fetcher.Outcome)
}

// type check
var _ Fetcher = (*fetcher.Fetcher)(nil)

// Config is the configuration structure for the session.
type Config struct {
	// Logger is used to log the session events.  It must not be nil.
	Logger *slog.Logger

	// Store, if not nil, persists the engine between the starts.
	Store Store

	// Fetcher downloads the filter lists.  It must not be nil.
	Fetcher Fetcher

	// ListURLs are the addresses of the filter lists.
	ListURLs []string

	// Enabled is the initial state of the enabled flag.
	Enabled bool
}

// Session is the filtering context shared by all windows and tabs.  It must
// be created with [New].  A Session is safe for concurrent use.
type Session struct {
	logger  *slog.Logger
	store   Store
	fetcher Fetcher
	flag    *Flag

	// engine is the current engine.  It is only used in [StateReady].
	engine atomic.Pointer[reqfilter.Engine]

	// refreshes coalesces the concurrent refreshes.
	refreshes *singleflight.Group

	listURLs []string

	state atomic.Int32
}

// New returns a new uninitialized session.  c must not be nil.
func New(c *Config) (s *Session) {
	return &Session{
		logger:    c.Logger.With(slogutil.KeyPrefix, "session"),
		store:     c.Store,
		fetcher:   c.Fetcher,
		flag:      NewFlag(c.Enabled),
		refreshes: &singleflight.Group{},
		listURLs:  c.ListURLs,
	}
}

// Flag returns the enabled flag of the session.
func (s *Session) Flag() (f *Flag) {
	return s.flag
}

// State returns the current state of the session.
func (s *Session) State() (st State) {
	return State(s.state.Load())
}

// setState sets the state and logs the transition.
func (s *Session) setState(ctx context.Context, st State) {
	prev := State(s.state.Swap(int32(st)))
	s.logger.DebugContext(ctx, "state changed", "from", prev, "to", st)
}

// Engine returns the current engine.  ok is false unless the session is in
// [StateReady].
func (s *Session) Engine() (e *reqfilter.Engine, ok bool) {
	if s.State() != StateReady {
		return nil, false
	}

	e = s.engine.Load()

	return e, e != nil
}

// Start loads the persisted engine or, if there is none, fetches the filter
// lists, compiles and persists the engine.  If the engine is unavailable, the
// session is disabled and err wraps [ErrEngineUnavailable].  The failure to
// persist the engine is only logged.
func (s *Session) Start(ctx context.Context) (err error) {
	s.setState(ctx, StateLoading)

	if s.store != nil {
		var e *reqfilter.Engine
		e, err = s.store.Load(ctx)
		if err == nil {
			s.ready(ctx, e)

			return nil
		}

		if errors.Is(err, filterstore.ErrNotFound) {
			s.logger.InfoContext(ctx, "no persisted filters", slogutil.KeyError, err)
		} else {
			s.logger.WarnContext(ctx, "loading persisted filters", slogutil.KeyError, err)
		}
	}

	e, err := s.build(ctx, true)
	if err != nil {
		s.setState(ctx, StateDisabled)
		err = errors.Join(ErrEngineUnavailable, err)
		s.logger.ErrorContext(ctx, "filtering disabled", slogutil.KeyError, err)

		return err
	}

	s.ready(ctx, e)

	return nil
}

// Refresh fetches the filter lists again and replaces the engine.  On error
// the current engine is kept.  A disabled session becomes ready if the refresh
// succeeds.  Concurrent calls share a single refresh.
func (s *Session) Refresh(ctx context.Context) (err error) {
	_, err, _ = s.refreshes.Do("refresh", func() (_ any, buildErr error) {
		track := s.State() != StateReady
		e, buildErr := s.build(ctx, track)
		if buildErr != nil {
			if track {
				s.setState(ctx, StateDisabled)
			}

			return nil, buildErr
		}

		s.ready(ctx, e)

		return nil, nil
	})

	if err != nil {
		return errors.Annotate(err, "refreshing: %w")
	}

	return nil
}

// build fetches the lists, compiles the engine and persists it.  If track is
// true, the state is moved through the building stages.
func (s *Session) build(ctx context.Context, track bool) (e *reqfilter.Engine, err error) {
	if len(s.listURLs) == 0 {
		return nil, ErrNoURLs
	}

	setState := func(st State) {
		if track {
			s.setState(ctx, st)
		}
	}

	setState(StateFetching)

	set := filterlist.NewSet(s.logger)

	var errs []error
	for _, o := range s.fetcher.Fetch(ctx, s.listURLs, set) {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}

	if len(errs) == len(s.listURLs) {
		return nil, errors.Annotate(errors.Join(errs...), "fetching lists: %w")
	}

	setState(StateCompiling)
	e = reqfilter.Compile(set.Snapshot())

	setState(StatePersisting)
	if s.store != nil {
		saveErr := s.store.Save(ctx, e)
		if saveErr != nil {
			s.logger.WarnContext(ctx, "persisting filters", slogutil.KeyError, saveErr)
		}
	}

	return e, nil
}

// ready makes e the current engine.
func (s *Session) ready(ctx context.Context, e *reqfilter.Engine) {
	s.engine.Store(e)
	s.setState(ctx, StateReady)
	metrics.EngineRules.Set(float64(e.RulesCount()))

	s.logger.InfoContext(ctx, "filtering ready", "rules", e.RulesCount(), "id", e.ID())
}
