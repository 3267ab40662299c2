// Package fetcher downloads the filter lists and merges them into a filter
// set.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/abrw/reqfilter/filterlist"
	"github.com/abrw/reqfilter/internal/metrics"
	"github.com/abrw/reqfilter/rules"
	"github.com/c2h5oh/datasize"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"
)

// Default values of the [Config] fields.
const (
	DefaultMaxSize     = 64 * datasize.MB
	DefaultConcurrency = 4
	DefaultTimeout     = 60 * time.Second
	DefaultUserAgent   = "reqfilter/1.0"
)

const (
	// ErrStatus is returned when the server responds with a non-success
	// status.
	ErrStatus errors.Error = "unexpected status"

	// ErrTooLarge is returned when the list exceeds the maximum size.
	ErrTooLarge errors.Error = "list is too large"

	// ErrDecode is returned when the list is not a valid UTF-8 text.
	ErrDecode errors.Error = "list is not valid utf-8"
)

// utf8BOM is the byte order mark some lists start with.
var utf8BOM = []byte("\xef\xbb\xbf")

// Sink accumulates the fetched rules.  It must be safe for concurrent use.
// [*filterlist.Set] is the usual implementation.
type Sink interface {
	// AddRules merges rs and returns the number of added rules.
	AddRules(rs []rules.Rule) (added int)
}

// Config is the configuration structure for the fetcher.
type Config struct {
	// Logger is used to log the fetching results.  It must not be nil.
	Logger *slog.Logger

	// Client, if not nil, is the HTTP client to use.  RetryMax and Timeout
	// are ignored then.
	Client *retryablehttp.Client

	// UserAgent is the User-Agent header of the requests.  If empty,
	// [DefaultUserAgent] is used.
	UserAgent string

	// Timeout is the timeout of a single request.  If zero, [DefaultTimeout]
	// is used.
	Timeout time.Duration

	// MaxSize is the maximum size of a list.  If zero, [DefaultMaxSize] is
	// used.
	MaxSize datasize.ByteSize

	// RetryMax is the maximum number of retries of a request.  Zero means a
	// single attempt.
	RetryMax int

	// Concurrency is the maximum number of lists fetched at once.  If zero,
	// [DefaultConcurrency] is used.
	Concurrency int
}

// Fetcher downloads filter lists over HTTP or reads them from the disk.
type Fetcher struct {
	logger      *slog.Logger
	client      *retryablehttp.Client
	userAgent   string
	maxSize     datasize.ByteSize
	concurrency int
}

// New returns a new properly initialized fetcher.  c must not be nil.
func New(c *Config) (f *Fetcher) {
	f = &Fetcher{
		logger:      c.Logger,
		client:      c.Client,
		userAgent:   c.UserAgent,
		maxSize:     c.MaxSize,
		concurrency: c.Concurrency,
	}

	if f.client == nil {
		f.client = newClient(c)
	}

	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}

	if f.maxSize == 0 {
		f.maxSize = DefaultMaxSize
	}

	if f.concurrency <= 0 {
		f.concurrency = DefaultConcurrency
	}

	return f
}

// newClient returns a new HTTP client as configured by c.
func newClient(c *Config) (client *retryablehttp.Client) {
	client = retryablehttp.NewClient()
	client.RetryMax = c.RetryMax
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = c.Logger.With(slogutil.KeyPrefix, "http")

	client.HTTPClient.Timeout = c.Timeout
	if client.HTTPClient.Timeout == 0 {
		client.HTTPClient.Timeout = DefaultTimeout
	}

	return client
}

// FetchError is returned when a list could not be fetched.
type FetchError struct {
	// Err is the underlying error.
	Err error

	// URL is the address of the list.
	URL string
}

// type check
var _ error = (*FetchError)(nil)

// Error implements the error interface for *FetchError.
func (e *FetchError) Error() (msg string) {
	return fmt.Sprintf("fetching %q: %s", e.URL, e.Err)
}

// Unwrap implements the [errors.Wrapper] interface for *FetchError.
func (e *FetchError) Unwrap() (unwrapped error) {
	return e.Err
}

// Outcome is the result of fetching a single list.
type Outcome struct {
	// Err is not nil if the list could not be fetched.  It has the type
	// [*FetchError].
	Err error

	// URL is the address of the list.
	URL string

	// Lines is the number of lines in the list.
	Lines int

	// Added is the number of rules added to the sink.
	Added int
}

// Fetch fetches all urls concurrently and adds their rules to sink.  The rules
// of a list are identified by the index of its URL.  A failed URL doesn't
// affect the others, its error is logged and returned in its outcome.  res has
// the same order as urls.  Fetch returns when all lists are processed.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, sink Sink) (res []*Outcome) {
	res = make([]*Outcome, len(urls))

	g := &errgroup.Group{}
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		g.Go(func() (err error) {
			res[i] = f.fetchOne(ctx, u, i, sink)

			return nil
		})
	}

	// The goroutines never return errors.
	_ = g.Wait()

	return res
}

// fetchOne fetches a single list with the identifier listID and adds it to
// sink.
func (f *Fetcher) fetchOne(ctx context.Context, u string, listID int, sink Sink) (o *Outcome) {
	o = &Outcome{URL: u}

	start := time.Now()
	parsed, lines, err := f.readList(ctx, u, listID)
	if err != nil {
		o.Err = &FetchError{URL: u, Err: err}
		metrics.FetcherLists.WithLabelValues(metrics.StatusError).Inc()
		f.logger.WarnContext(ctx, "fetching list", "url", u, slogutil.KeyError, err)

		return o
	}

	o.Lines = lines
	o.Added = sink.AddRules(parsed)
	metrics.FetcherLists.WithLabelValues(metrics.StatusOK).Inc()

	f.logger.InfoContext(
		ctx,
		"fetched list",
		"url", u,
		"lines", o.Lines,
		"rules", len(parsed),
		"added", o.Added,
		"elapsed", time.Since(start),
	)

	return o
}

// readList reads the list from u and parses its rules.  lines is the number of
// lines in the list.
func (f *Fetcher) readList(
	ctx context.Context,
	u string,
	listID int,
) (parsed []rules.Rule, lines int, err error) {
	rc, err := f.open(ctx, u)
	if err != nil {
		return nil, 0, err
	}
	defer func() { err = errors.WithDeferred(err, rc.Close()) }()

	body, err := io.ReadAll(io.LimitReader(rc, int64(f.maxSize)+1))
	if err != nil {
		return nil, 0, fmt.Errorf("reading body: %w", err)
	}

	if uint64(len(body)) > f.maxSize.Bytes() {
		return nil, 0, fmt.Errorf("%w: more than %s", ErrTooLarge, f.maxSize)
	}

	body = bytes.TrimPrefix(body, utf8BOM)
	if !utf8.Valid(body) {
		return nil, 0, ErrDecode
	}

	s := filterlist.NewRuleScanner(bytes.NewReader(body), listID)
	s.OnError = func(lineIdx int, _ string, scanErr error) {
		if errors.Is(scanErr, rules.ErrUnsupportedRule) {
			return
		}

		f.logger.DebugContext(ctx, "skipping line", "url", u, "idx", lineIdx, slogutil.KeyError, scanErr)
	}

	for s.Scan() {
		r, _ := s.Rule()
		parsed = append(parsed, r)
	}

	if err = s.Err(); err != nil {
		return nil, 0, fmt.Errorf("scanning: %w", err)
	}

	return parsed, s.LineCount(), nil
}

// open returns the reader of the list body.  Local files are addressed with
// the file:// scheme or by a plain path.
func (f *Fetcher) open(ctx context.Context, u string) (rc io.ReadCloser, err error) {
	if path, ok := localPath(u); ok {
		return os.Open(path)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set(httphdr.UserAgent, f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.WithDeferred(
			fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode),
			resp.Body.Close(),
		)
	}

	return resp.Body, nil
}

// localPath returns the path of the local list addressed by u.
func localPath(u string) (path string, ok bool) {
	if strings.HasPrefix(u, "file://") {
		parsed, err := url.Parse(u)
		if err != nil {
			return "", false
		}

		return parsed.Path, true
	}

	if strings.Contains(u, "://") {
		return "", false
	}

	return u, true
}
