package proxy

import (
	"net/http"

	"github.com/AdguardTeam/gomitmproxy"
	"github.com/abrw/reqfilter"
	"github.com/abrw/reqfilter/rules"
)

// loadStopper records whether the interceptor stopped the load of a request.
type loadStopper struct {
	stopped bool
}

// StopLoading implements the [session.LoadStopper] interface for
// *loadStopper.
func (v *loadStopper) StopLoading() {
	v.stopped = true
}

// onRequest handles the outgoing HTTP requests.
func (s *Server) onRequest(sess *gomitmproxy.Session) (req *http.Request, resp *http.Response) {
	r := sess.Request()
	if r.Method == http.MethodConnect {
		// Do nothing for CONNECT requests.
		return nil, nil
	}

	typ := assumeRequestType(r, nil)
	sess.SetProp(requestTypeKey, typ)

	resp = s.filterRequest(sess.ID(), r, typ)
	if resp != nil {
		// Mark this request as answered so that onResponse skips it.
		sess.SetProp(requestBlockedKey, true)

		return nil, resp
	}

	return r, nil
}

// filterRequest reports r to the interceptor and returns the response which
// replaces the stopped request.  resp is nil if the request must be loaded.
func (s *Server) filterRequest(id string, r *http.Request, typ rules.RequestType) (resp *http.Response) {
	v := &loadStopper{}
	res := s.interceptor.OnResourceLoadStarted(v, r.URL.String(), typ)
	if !v.stopped {
		return nil
	}

	s.logger.Debug("request stopped", "id", id, "verdict", res.Verdict(), "url", r.URL)

	switch res := res.(type) {
	case *reqfilter.Redirect:
		return newRedirectResponse(r, res)
	case *reqfilter.Rewrite:
		return newRewriteResponse(r, res.URL)
	default:
		return newBlockedResponse(r, res)
	}
}

// onResponse handles all the responses.
func (s *Server) onResponse(sess *gomitmproxy.Session) (resp *http.Response) {
	if _, ok := sess.GetProp(requestBlockedKey); ok {
		// The request was already answered.
		return nil
	}

	typ := rules.TypeOther
	if v, ok := sess.GetProp(requestTypeKey); ok {
		typ, _ = v.(rules.RequestType)
	}

	return s.filterResponse(sess.ID(), sess.Request(), sess.Response(), typ)
}

// filterResponse checks the request against the installed content filter
// once the response headers tell its real type.  reqType is the type assumed
// from the request.  resp is nil if res must be passed through.
func (s *Server) filterResponse(
	id string,
	r *http.Request,
	res *http.Response,
	reqType rules.RequestType,
) (resp *http.Response) {
	e := s.filter.Load()
	if e == nil || res == nil {
		return nil
	}

	typ := assumeRequestType(r, res)
	if typ == reqType {
		// Already checked by the interceptor.
		return nil
	}

	result := e.CheckURL(r.URL.String(), r.URL.Hostname(), typ)
	if _, ok := result.(*reqfilter.Block); !ok {
		return nil
	}

	s.logger.Debug("response blocked", "id", id, "rule", result.RuleText(), "url", r.URL)

	if res.Body != nil {
		_ = res.Body.Close()
	}

	return newBlockedResponse(r, result)
}
