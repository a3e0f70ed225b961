package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mjl-/sconf"

	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/pslfetch"
	"github.com/mjl-/regdomain/pslupdate"
)

// Defaults for optional fields.
const (
	DefaultListen          = "localhost:8080"
	DefaultKeepSnapshots   = 4
	DefaultRefreshInterval = 7 * 24 * time.Hour
	DefaultInitialBackoff  = time.Minute
	DefaultMaxBackoff      = 6 * time.Hour
)

// Static is the parsed form of the regdomain.conf configuration file.
type Static struct {
	DataDir          string            `sconf-doc:"NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be on their own line, they don't end a line. Do not escape or quote strings. Details: https://pkg.go.dev/github.com/mjl-/sconf.\n\n\nDirectory where the database with snapshots of the public suffix list is stored. If this is a relative path, it is relative to the directory of regdomain.conf."`
	LogLevel         string            `sconf-doc:"Default log level, one of: error, info, debug, trace."`
	PackageLogLevels map[string]string `sconf:"optional" sconf-doc:"Overrides of log level per package (e.g. publicsuffix, orgdomain, pslfetch, pslstore, pslupdate, webapi)."`
	Listen           string            `sconf:"optional" sconf-doc:"Address to serve the HTTP API on, host:port. Default: localhost:8080."`
	MetricsListen    string            `sconf:"optional" sconf-doc:"Address to serve prometheus metrics on, host:port. If empty, metrics are served at /metrics on the API address."`
	KeepSnapshots    int               `sconf:"optional" sconf-doc:"Number of snapshots of the public suffix list index to keep in the database. Default: 4."`
	PublicSuffixList PublicSuffixList  `sconf:"optional" sconf-doc:"Where and how often to fetch the public suffix list."`
	ACME             *ACME             `sconf:"optional" sconf-doc:"Serve the HTTP API over HTTPS, with certificates requested through ACME, e.g. from Let's Encrypt. The listen address should be on port 443 for ACME validation to work."`

	// Parsed log levels, from LogLevel and PackageLogLevels.
	Log map[string]slog.Level `sconf:"-" json:"-"`
}

// PublicSuffixList configures fetching of the list.
type PublicSuffixList struct {
	URL             string        `sconf:"optional" sconf-doc:"URL of the list. Default: https://publicsuffix.org/list/public_suffix_list.dat."`
	ICANNOnly       bool          `sconf:"optional" sconf-doc:"Only use rules from the ICANN section of the list, ignoring the private domains, e.g. for determining organizational domains as with DMARC."`
	RefreshInterval time.Duration `sconf:"optional" sconf-doc:"How often to fetch the list, between 1h and 720h. The maintainers of the list ask not to fetch it more than once a day. Default: 168h."`
	InitialBackoff  time.Duration `sconf:"optional" sconf-doc:"Delay before retrying after a failed fetch, doubled for each further failure. Default: 1m."`
	MaxBackoff      time.Duration `sconf:"optional" sconf-doc:"Maximum delay between retries. Default: 6h."`
	MaxSize         int64         `sconf:"optional" sconf-doc:"Maximum size of the list in bytes. Default: 16777216."`
	LocalFile       string        `sconf:"optional" sconf-doc:"File with a public suffix list to load at startup if the database has no snapshot yet, e.g. a copy distributed with the operating system. If relative, it is relative to the directory of regdomain.conf."`
}

// ACME configures requesting TLS certificates.
type ACME struct {
	Hostnames    []string `sconf-doc:"Hostnames to request certificates for."`
	ContactEmail string   `sconf-doc:"Email address to register with the ACME provider. The provider can email about problems with the account."`
	CacheDir     string   `sconf:"optional" sconf-doc:"Directory to store the ACME account key and certificates in. If relative, it is relative to DataDir. Default: acme."`
}

// Config is a parsed and validated configuration file.
type Config struct {
	Path   string // Path of the configuration file.
	Static Static
}

// ParseFile reads the configuration file at path, fills in defaults and checks
// the values. All problems found are returned.
func ParseFile(path string) (*Config, []error) {
	c := &Config{Path: path, Static: Static{DataDir: "."}}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && os.Getenv("REGDOMAINCONF") == "" {
			return nil, []error{fmt.Errorf("open config file: %v (hint: use regdomain -config ... or set REGDOMAINCONF=...)", err)}
		}
		return nil, []error{fmt.Errorf("open config file: %v", err)}
	}
	defer f.Close()
	if err := sconf.Parse(f, &c.Static); err != nil {
		return nil, []error{fmt.Errorf("parsing %s%v", path, err)}
	}
	if errs := c.prepare(); len(errs) > 0 {
		return nil, errs
	}
	return c, nil
}

func (c *Config) prepare() (errs []error) {
	addErrorf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := &c.Static

	if logLevel, ok := mlog.Levels[s.LogLevel]; ok {
		s.Log = map[string]slog.Level{"": logLevel}
	} else {
		addErrorf("invalid log level %q", s.LogLevel)
		s.Log = map[string]slog.Level{"": mlog.LevelError}
	}
	for pkg, level := range s.PackageLogLevels {
		if logLevel, ok := mlog.Levels[level]; ok {
			s.Log[pkg] = logLevel
		} else {
			addErrorf("invalid log level %q for package %q", level, pkg)
		}
	}

	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	for _, addr := range []string{s.Listen, s.MetricsListen} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addErrorf("invalid listen address %q: %v", addr, err)
		}
	}
	if s.KeepSnapshots == 0 {
		s.KeepSnapshots = DefaultKeepSnapshots
	} else if s.KeepSnapshots < 0 {
		addErrorf("KeepSnapshots must be positive")
	}

	psl := &s.PublicSuffixList
	if psl.URL == "" {
		psl.URL = pslfetch.DefaultURL
	}
	if psl.RefreshInterval == 0 {
		psl.RefreshInterval = DefaultRefreshInterval
	} else if psl.RefreshInterval < time.Hour || psl.RefreshInterval > 720*time.Hour {
		addErrorf("RefreshInterval %v must be between 1h and 720h", psl.RefreshInterval)
	}
	if psl.InitialBackoff == 0 {
		psl.InitialBackoff = DefaultInitialBackoff
	}
	if psl.MaxBackoff == 0 {
		psl.MaxBackoff = DefaultMaxBackoff
	}
	if psl.InitialBackoff < 0 || psl.MaxBackoff < psl.InitialBackoff {
		addErrorf("InitialBackoff %v must be positive and not larger than MaxBackoff %v", psl.InitialBackoff, psl.MaxBackoff)
	}
	if psl.MaxSize == 0 {
		psl.MaxSize = pslfetch.DefaultMaxSize
	} else if psl.MaxSize < 0 {
		addErrorf("MaxSize must be positive")
	}
	if psl.LocalFile != "" {
		psl.LocalFile = c.ConfigDirPath(psl.LocalFile)
	}

	if s.ACME != nil {
		if len(s.ACME.Hostnames) == 0 {
			addErrorf("ACME requires at least one hostname")
		}
		if s.ACME.ContactEmail == "" {
			addErrorf("ACME requires a contact email address")
		}
		if s.ACME.CacheDir == "" {
			s.ACME.CacheDir = "acme"
		}
	}
	return errs
}

// ConfigDirPath returns f itself when absolute, or interpreted relative to the
// directory of the config file.
func (c *Config) ConfigDirPath(f string) string {
	if filepath.IsAbs(f) {
		return f
	}
	return filepath.Join(filepath.Dir(c.Path), f)
}

// DataDirPath returns f itself when absolute, or interpreted relative to the
// data directory.
func (c *Config) DataDirPath(f string) string {
	if filepath.IsAbs(f) {
		return f
	}
	return filepath.Join(c.ConfigDirPath(c.Static.DataDir), f)
}

// Updater returns the configuration for the public suffix list updater.
func (c *Config) Updater() pslupdate.Config {
	psl := c.Static.PublicSuffixList
	return pslupdate.Config{
		URL:            psl.URL,
		ICANNOnly:      psl.ICANNOnly,
		Interval:       psl.RefreshInterval,
		InitialBackoff: psl.InitialBackoff,
		MaxBackoff:     psl.MaxBackoff,
		MaxSize:        psl.MaxSize,
		LocalFile:      psl.LocalFile,
		KeepSnapshots:  c.Static.KeepSnapshots,
	}
}
