// Package config contains the settings of the filtering core and their
// loading from a YAML file and the environment.
package config

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/abrw/reqfilter/fetcher"
	"github.com/c2h5oh/datasize"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables overriding the
// settings, e.g. REQFILTER_ENABLED.
const EnvPrefix = "REQFILTER"

// DefaultListURL is the filter list used when none are configured.
const DefaultListURL = "https://easylist.to/easylist/easylist.txt"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	// errNotPositive is returned when a value must be greater than zero.
	errNotPositive errors.Error = "must be positive"

	// errNegative is returned when a value must not be negative.
	errNegative errors.Error = "must not be negative"

	// errEmpty is returned when a value must not be empty.
	errEmpty errors.Error = "must not be empty"
)

// Settings are the externally supplied settings of the filtering core.  The
// core treats them as read-only.
type Settings struct {
	// ListURLs are the addresses of the filter lists.  Local paths and file://
	// URLs are allowed.
	ListURLs []string `yaml:"list_urls" envconfig:"LIST_URLS"`

	// CacheDir is the directory of the persisted engine.
	CacheDir string `yaml:"cache_dir" envconfig:"CACHE_DIR"`

	// Log configures logging.
	Log Log `yaml:"log" envconfig:"LOG"`

	// Proxy configures the filtering proxy.
	Proxy Proxy `yaml:"proxy" envconfig:"PROXY"`

	// Fetch configures the fetching of the filter lists.
	Fetch Fetch `yaml:"fetch" envconfig:"FETCH"`

	// Enabled is the initial state of filtering.
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

// Fetch are the settings of the list fetcher.
type Fetch struct {
	// UserAgent is sent with the HTTP requests.
	UserAgent string `yaml:"user_agent" envconfig:"USER_AGENT"`

	// Timeout is the timeout of a single list download.
	Timeout timeutil.Duration `yaml:"timeout" envconfig:"TIMEOUT"`

	// MaxSize is the maximum size of a single list.
	MaxSize datasize.ByteSize `yaml:"max_size" envconfig:"MAX_SIZE"`

	// RetryMax is the maximum number of retries of a failed download.
	RetryMax int `yaml:"retry_max" envconfig:"RETRY_MAX"`

	// Concurrency is the maximum number of lists fetched at once.
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY"`
}

// Log are the logging settings.
type Log struct {
	// Format is either [LogFormatText] or [LogFormatJSON].
	Format string `yaml:"format" envconfig:"FORMAT"`

	// Output is the path to the log file.  Empty means stderr.
	Output string `yaml:"output" envconfig:"OUTPUT"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" envconfig:"VERBOSE"`
}

// Proxy are the settings of the filtering proxy.
type Proxy struct {
	// ListenAddr is the address the proxy listens on.  Empty means the proxy
	// is not started.
	ListenAddr string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`

	// CACert is the path to the root certificate used to intercept HTTPS.
	CACert string `yaml:"ca_cert" envconfig:"CA_CERT"`

	// CAKey is the path to the private key of CACert.
	CAKey string `yaml:"ca_key" envconfig:"CA_KEY"`
}

// Default returns the default settings.
func Default() (s *Settings) {
	return &Settings{
		ListURLs: []string{DefaultListURL},
		CacheDir: defaultCacheDir(),
		Log: Log{
			Format: LogFormatText,
		},
		Fetch: Fetch{
			UserAgent:   fetcher.DefaultUserAgent,
			Timeout:     timeutil.Duration{Duration: fetcher.DefaultTimeout},
			MaxSize:     fetcher.DefaultMaxSize,
			RetryMax:    2,
			Concurrency: fetcher.DefaultConcurrency,
		},
		Enabled: true,
	}
}

// defaultCacheDir returns $XDG_CONFIG_HOME/swb/adblock or its platform
// equivalent.
func defaultCacheDir() (dir string) {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}

	return filepath.Join(base, "swb", "adblock")
}

// Load reads the settings from the YAML file at path, applies the environment
// overrides, and validates the result.  A missing file or an empty path means
// the default settings.
func Load(path string) (s *Settings, err error) {
	s = Default()

	if path != "" {
		var data []byte
		data, err = os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Go on with the defaults.
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			err = yaml.Unmarshal(data, s)
			if err != nil {
				return nil, fmt.Errorf("parsing config %q: %w", path, err)
			}
		}
	}

	err = envconfig.Process(EnvPrefix, s)
	if err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	err = s.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return s, nil
}

// Validate returns an error if the settings are invalid.
func (s *Settings) Validate() (err error) {
	if s == nil {
		return errors.Error("no settings")
	}

	var errs []error
	if s.CacheDir == "" {
		errs = append(errs, fmt.Errorf("cache_dir: %w", errEmpty))
	}

	for i, u := range s.ListURLs {
		err = validateListURL(u)
		if err != nil {
			errs = append(errs, fmt.Errorf("list_urls: at index %d: %w", i, err))
		}
	}

	errs = append(errs, s.Fetch.validate()...)
	errs = append(errs, s.Log.validate()...)
	errs = append(errs, s.Proxy.validate()...)

	return errors.Join(errs...)
}

// validateListURL returns an error if u is neither a local path nor an HTTP,
// HTTPS or file URL.
func validateListURL(u string) (err error) {
	if u == "" {
		return errEmpty
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return err
	}

	switch parsed.Scheme {
	case "":
		return nil
	case "file":
		return nil
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("url %q: no host", u)
		}

		return nil
	default:
		return fmt.Errorf("url %q: unsupported scheme %q", u, parsed.Scheme)
	}
}

// validate returns the errors of the fetch settings.
func (f *Fetch) validate() (errs []error) {
	if f.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout: %w", errNotPositive))
	}

	if f.MaxSize == 0 {
		errs = append(errs, fmt.Errorf("fetch.max_size: %w", errNotPositive))
	}

	if f.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("fetch.retry_max: %w", errNegative))
	}

	if f.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("fetch.concurrency: %w", errNotPositive))
	}

	return errs
}

// validate returns the errors of the log settings.
func (l *Log) validate() (errs []error) {
	switch l.Format {
	case LogFormatText, LogFormatJSON:
		return nil
	default:
		return []error{fmt.Errorf("log.format: unsupported value %q", l.Format)}
	}
}

// validate returns the errors of the proxy settings.
func (p *Proxy) validate() (errs []error) {
	if p.ListenAddr == "" {
		return nil
	}

	if p.CACert == "" {
		errs = append(errs, fmt.Errorf("proxy.ca_cert: %w", errEmpty))
	}

	if p.CAKey == "" {
		errs = append(errs, fmt.Errorf("proxy.ca_key: %w", errEmpty))
	}

	return errs
}
