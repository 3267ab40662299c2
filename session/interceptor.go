package session

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/abrw/reqfilter"
	"github.com/abrw/reqfilter/internal/metrics"
	"github.com/abrw/reqfilter/rules"
)

// errNoHost is logged for the request URLs without a host.
const errNoHost errors.Error = "no host in url"

// LoadStopper is the view of the host engine which loads the request.
type LoadStopper interface {
	// StopLoading stops the current load of the view.
	StopLoading()
}

// Interceptor checks the requests of the host engine against the session
// engine.  It fails open: a request is only stopped when the engine blocks
// it.
type Interceptor struct {
	logger *slog.Logger
	sess   *Session

	// unavailable makes sure the disabled session is reported only once.
	unavailable *sync.Once
}

// NewInterceptor returns a new interceptor for the session.  Both sess and
// logger must not be nil.
func NewInterceptor(sess *Session, logger *slog.Logger) (i *Interceptor) {
	return &Interceptor{
		logger:      logger.With(slogutil.KeyPrefix, "interceptor"),
		sess:        sess,
		unavailable: &sync.Once{},
	}
}

// OnResourceLoadStarted is called by the host engine for each request to uri
// made by view.  If the request must not be loaded, it stops the load of view.
// It never performs any I/O.
func (i *Interceptor) OnResourceLoadStarted(
	view LoadStopper,
	uri string,
	typ rules.RequestType,
) (res reqfilter.MatchResult) {
	res = reqfilter.NoMatch{}
	defer func() { metrics.InterceptorRequests.WithLabelValues(string(res.Verdict())).Inc() }()

	u, err := url.Parse(uri)
	if err == nil && u.Hostname() == "" {
		err = errNoHost
	}

	if err != nil {
		i.logger.Debug("parsing request url", "url", uri, slogutil.KeyError, err)

		return res
	}

	if !i.sess.Flag().Enabled() {
		return res
	}

	e, ok := i.sess.Engine()
	if !ok {
		if i.sess.State() == StateDisabled {
			i.unavailable.Do(func() {
				i.logger.Error("skipping requests", slogutil.KeyError, ErrEngineUnavailable)
			})
		}

		return res
	}

	// The host of the request is its originating domain.
	res = e.Check(rules.NewRequest(uri, strings.ToLower(u.Hostname()), typ))
	if reqfilter.ShouldStop(res) {
		view.StopLoading()
		i.logger.Debug(
			"stopped request",
			"url", uri,
			"verdict", res.Verdict(),
			"rule", res.RuleText(),
		)
	}

	return res
}
