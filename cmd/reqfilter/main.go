// Command reqfilter runs the request filtering core: it loads or builds the
// engine, checks URLs against it, and runs the filtering proxy.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/AdguardTeam/gomitmproxy/mitm"
	"github.com/abrw/reqfilter/config"
	"github.com/abrw/reqfilter/fetcher"
	"github.com/abrw/reqfilter/filterstore"
	"github.com/abrw/reqfilter/proxy"
	"github.com/abrw/reqfilter/rules"
	"github.com/abrw/reqfilter/session"
	goFlags "github.com/jessevdk/go-flags"
)

// Options are the console arguments.
type Options struct {
	// ConfigPath is the path to the YAML configuration file.
	ConfigPath string `short:"c" long:"config" description:"Path to the YAML configuration file."`

	// Verbose enables debug logging.
	Verbose bool `short:"v" long:"verbose" description:"Verbose output (optional)." optional:"yes" optional-value:"true"`

	// LogOutput is the path to the log file.
	LogOutput string `short:"o" long:"output" description:"Path to the log file. If not set, it writes to stderr."`

	// Refresh drops the persisted engine before the start.
	Refresh bool `long:"refresh" description:"Drop the persisted filters and fetch the lists again."`

	// Check are the URLs to check against the engine.
	Check []string `long:"check" description:"URL to check. Can be specified multiple times."`

	// CheckType is the request type of the checked URLs.
	CheckType string `long:"check-type" description:"Request type of the checked URLs." default:"other"`

	// ListenAddr is the listen address of the filtering proxy.
	ListenAddr string `short:"l" long:"listen" description:"Listen address of the filtering proxy, e.g. 127.0.0.1:8080."`

	// CACertPath is the path to the root certificate of the proxy.
	CACertPath string `long:"ca-cert" description:"Path to a file with the root certificate."`

	// CAKeyPath is the path to the private key of the root certificate.
	CAKeyPath string `long:"ca-key" description:"Path to a file with the CA private key."`

	// ProxyUser is the proxy auth username.
	ProxyUser string `short:"u" long:"username" description:"Proxy auth username. If specified, proxy authorization is required."`

	// ProxyPassword is the proxy auth password.
	ProxyPassword string `short:"a" long:"password" description:"Proxy auth password."`
}

func main() {
	var opts Options
	parser := goFlags.NewParser(&opts, goFlags.Default)

	_, err := parser.Parse()
	if err != nil {
		var flagsErr *goFlags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goFlags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}

	os.Exit(run(&opts))
}

// run runs the command and returns the exit code.
func run(opts *Options) (code int) {
	conf, err := loadSettings(opts)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "reqfilter: %s\n", err)

		return 1
	}

	logger, closeLog, err := newLogger(conf.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "reqfilter: %s\n", err)

		return 1
	}
	defer closeLog()

	ctx := context.Background()

	store := filterstore.New(&filterstore.Config{
		Logger: logger,
		Dir:    conf.CacheDir,
	})

	if opts.Refresh {
		err = store.Remove(ctx)
		if err != nil {
			logger.WarnContext(ctx, "dropping persisted filters", slogutil.KeyError, err)
		}
	} else if info, infoErr := store.Info(ctx); infoErr == nil {
		logger.InfoContext(
			ctx,
			"found persisted filters",
			"id", info.ID,
			"created", info.Created,
			"rules", info.RulesCount,
		)
	}

	sess := session.New(&session.Config{
		Logger: logger,
		Store:  store,
		Fetcher: fetcher.New(&fetcher.Config{
			Logger:      logger,
			UserAgent:   conf.Fetch.UserAgent,
			Timeout:     conf.Fetch.Timeout.Duration,
			MaxSize:     conf.Fetch.MaxSize,
			RetryMax:    conf.Fetch.RetryMax,
			Concurrency: conf.Fetch.Concurrency,
		}),
		ListURLs: conf.ListURLs,
		Enabled:  conf.Enabled,
	})

	// The session fails open, so the error is not fatal.
	err = sess.Start(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "starting session", slogutil.KeyError, err)
	}

	if len(opts.Check) > 0 {
		check(os.Stdout, sess, logger, opts.Check, rules.RequestTypeFromString(opts.CheckType))

		return 0
	}

	if conf.Proxy.ListenAddr == "" {
		logger.InfoContext(ctx, "no listen address, exiting", "state", sess.State())

		return 0
	}

	err = serve(ctx, logger, sess, conf, opts)
	if err != nil {
		logger.ErrorContext(ctx, "running proxy", slogutil.KeyError, err)

		return 1
	}

	return 0
}

// loadSettings loads the configuration file and applies the console
// arguments to it.
func loadSettings(opts *Options) (conf *config.Settings, err error) {
	conf, err = config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		conf.Log.Verbose = true
	}

	if opts.LogOutput != "" {
		conf.Log.Output = opts.LogOutput
	}

	if opts.ListenAddr != "" {
		conf.Proxy.ListenAddr = opts.ListenAddr
	}

	if opts.CACertPath != "" {
		conf.Proxy.CACert = opts.CACertPath
	}

	if opts.CAKeyPath != "" {
		conf.Proxy.CAKey = opts.CAKeyPath
	}

	err = conf.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating arguments: %w", err)
	}

	return conf, nil
}

// newLogger returns the logger configured by c.  closeLog closes the log file,
// if any.
func newLogger(c config.Log) (logger *slog.Logger, closeLog func(), err error) {
	var output io.Writer = os.Stderr
	closeLog = func() {}

	if c.Output != "" {
		// #nosec G302 -- The log file is meant to be readable by the user.
		file, fileErr := os.OpenFile(c.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if fileErr != nil {
			return nil, nil, fmt.Errorf("cannot create a log file: %w", fileErr)
		}

		output = file
		closeLog = func() { _ = file.Close() }
	}

	logger = slogutil.New(&slogutil.Config{
		Output:       output,
		Format:       slogutil.Format(c.Format),
		AddTimestamp: true,
		Verbose:      c.Verbose,
	})

	return logger, closeLog, nil
}

// printView is the [session.LoadStopper] of the checked URLs.
type printView struct {
	stopped bool
}

// StopLoading implements the [session.LoadStopper] interface for *printView.
func (v *printView) StopLoading() {
	v.stopped = true
}

// check prints the result of checking each of urls into w.
func check(
	w io.Writer,
	sess *session.Session,
	logger *slog.Logger,
	urls []string,
	typ rules.RequestType,
) {
	i := session.NewInterceptor(sess, logger)
	for _, u := range urls {
		v := &printView{}
		res := i.OnResourceLoadStarted(v, u, typ)

		_, _ = fmt.Fprintf(w, "%s\t%s\tstop=%t\t%s\n", u, res.Verdict(), v.stopped, res.RuleText())
	}
}

// serve runs the filtering proxy until SIGINT or SIGTERM.  SIGHUP refreshes
// the filter lists and SIGUSR1 toggles filtering.
func serve(
	ctx context.Context,
	logger *slog.Logger,
	sess *session.Session,
	conf *config.Settings,
	opts *Options,
) (err error) {
	addr, err := net.ResolveTCPAddr("tcp", conf.Proxy.ListenAddr)
	if err != nil {
		return fmt.Errorf("parsing listen address: %w", err)
	}

	mitmConfig, err := newMITMConfig(conf.Proxy.CACert, conf.Proxy.CAKey)
	if err != nil {
		return fmt.Errorf("creating mitm config: %w", err)
	}

	server := proxy.NewServer(&proxy.Config{
		Logger:  logger,
		Session: sess,
		ProxyConfig: gomitmproxy.Config{
			ListenAddr: addr,
			Username:   opts.ProxyUser,
			Password:   opts.ProxyPassword,
			MITMConfig: mitmConfig,
		},
	})

	toggle := session.NewToggle(sess, server, logger)
	toggle.Sync()

	err = server.Start()
	if err != nil {
		return fmt.Errorf("starting proxy: %w", err)
	}
	defer server.Close()

	logger.InfoContext(ctx, "proxy started", "addr", addr)

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)

	for sig := range signalChannel {
		switch sig {
		case syscall.SIGHUP:
			refreshErr := sess.Refresh(ctx)
			if refreshErr != nil {
				logger.WarnContext(ctx, "refreshing filters", slogutil.KeyError, refreshErr)
			}

			toggle.Sync()
		case syscall.SIGUSR1:
			logger.InfoContext(ctx, "filtering toggled", "enabled", toggle.Toggle())
		default:
			logger.InfoContext(ctx, "shutting down", "signal", sig)

			return nil
		}
	}

	return nil
}

// newMITMConfig loads the root CA from the files and creates the MITM
// configuration.
func newMITMConfig(certPath, keyPath string) (c *mitm.Config, err error) {
	tlsCert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading root ca: %w", err)
	}

	privateKey, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("root ca key: unsupported type %T", tlsCert.PrivateKey)
	}

	x509c, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("invalid certificate: %w", err)
	}

	c, err = mitm.NewConfig(x509c, privateKey, nil)
	if err != nil {
		return nil, err
	}

	// Generate certs valid for 7 days.
	c.SetValidity(7 * 24 * time.Hour)
	c.SetOrganization("reqfilter")

	return c, nil
}
