// Package proxy implements a MITM proxy that plays the role of the host
// browser engine for the filtering session: it reports every proxied request
// to the interceptor and installs the engine as its response-phase content
// filter.
package proxy

import (
	"log/slog"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/abrw/reqfilter"
	"github.com/abrw/reqfilter/session"
)

const (
	// requestTypeKey is the session property with the request type assumed
	// from the request headers.
	requestTypeKey = "request_type"

	// requestBlockedKey is the session property set for the requests
	// answered by the proxy itself.
	requestBlockedKey = "blocked"
)

// Config contains the MITM proxy configuration.
type Config struct {
	// Logger is used to log the proxy events.  It must not be nil.
	Logger *slog.Logger

	// Session is the filtering session.  It must not be nil.
	Session *session.Session

	// ProxyConfig is the configuration of the MITM proxy.  Its handlers are
	// replaced by the ones of the server.
	ProxyConfig gomitmproxy.Config
}

// Server is the filtering proxy server.
type Server struct {
	logger *slog.Logger

	// proxyServer is the MITM proxy server instance.
	proxyServer *gomitmproxy.Proxy

	// interceptor checks the requests against the session engine.
	interceptor *session.Interceptor

	// filter is the installed content filter, nil if there is none.
	filter atomic.Pointer[reqfilter.Engine]
}

// type check
var _ session.ContentFilterManager = (*Server)(nil)

// NewServer creates a new instance of the MITM server.  c must not be nil.
func NewServer(c *Config) (s *Server) {
	s = &Server{
		logger:      c.Logger.With(slogutil.KeyPrefix, "proxy"),
		interceptor: session.NewInterceptor(c.Session, c.Logger),
	}

	pc := c.ProxyConfig
	pc.OnRequest = s.onRequest
	pc.OnResponse = s.onResponse
	s.proxyServer = gomitmproxy.NewProxy(pc)

	s.logger.Info(
		"initializing proxy server",
		"listen_addr", pc.ListenAddr,
		"mitm", pc.MITMConfig != nil,
		"https", pc.TLSConfig != nil,
		"auth", pc.Username != "",
	)

	return s
}

// Start starts the proxy server.
func (s *Server) Start() (err error) {
	return s.proxyServer.Start()
}

// Close stops the proxy server.
func (s *Server) Close() {
	s.proxyServer.Close()
}

// AddFilter implements the [session.ContentFilterManager] interface for
// *Server.
func (s *Server) AddFilter(e *reqfilter.Engine) {
	s.filter.Store(e)
	s.logger.Debug("content filter installed", "id", e.ID())
}

// RemoveAllFilters implements the [session.ContentFilterManager] interface for
// *Server.
func (s *Server) RemoveAllFilters() {
	s.filter.Store(nil)
	s.logger.Debug("content filters removed")
}
