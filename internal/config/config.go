// Package config holds the options of a watson run and loads their
// defaults from a YAML file.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tdh8316/watson/internal/httpx"
)

const (
	DefaultDataFile    = "data.json"
	DefaultTimeout     = 60
	DefaultConcurrency = 32

	MaxTimeout     = 300
	MaxConcurrency = 100
)

// ErrInvalid marks an option value the run cannot start with.
var ErrInvalid = errors.New("invalid option")

var (
	outputFormats = []string{"text", "json", "csv", "html"}
	logFormats    = []string{"text", "json"}
)

// Options holds all configuration for a watson run. Identifiers never come
// from the config file.
type Options struct {
	// Targets
	Identifiers     []string `yaml:"-"`
	IdentifiersFile string   `yaml:"-"`
	Email           bool     `yaml:"email"`
	Variations      bool     `yaml:"variations"`

	// Catalog
	DataFile   string   `yaml:"database"`
	CatalogURL string   `yaml:"catalog_url"` // empty = Sherlock upstream
	Update     bool     `yaml:"update"`
	LocalOnly  bool     `yaml:"local_only"`
	Sites      []string `yaml:"sites"`
	Exclude    []string `yaml:"exclude"`
	NSFW       bool     `yaml:"nsfw"`

	// Transport
	Tor       bool   `yaml:"tor"`
	TorProxy  string `yaml:"tor_proxy"`
	Proxy     string `yaml:"proxy"`
	UserAgent string `yaml:"user_agent"`
	RotateUA  bool   `yaml:"rotate_user_agent"`

	// Sweep
	Timeout     int     `yaml:"timeout"` // seconds
	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 = off

	// Output
	OutputFile   string `yaml:"output"`
	OutputFormat string `yaml:"format"` // empty = guess from OutputFile
	PrintAll     bool   `yaml:"print_all"`
	NoColor      bool   `yaml:"no_color"`
	Progress     bool   `yaml:"progress"`
	ResultsDir   string `yaml:"results"`
	ScrapeEmails bool   `yaml:"scrape_emails"`

	// Logging
	Verbose   bool   `yaml:"verbose"`
	Quiet     bool   `yaml:"quiet"`
	LogFormat string `yaml:"log_format"`

	// Observability
	MetricsAddr  string `yaml:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

func Defaults() Options {
	return Options{
		DataFile:    DefaultDataFile,
		TorProxy:    httpx.DefaultTorProxyURL,
		UserAgent:   httpx.DefaultUserAgent,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Progress:    true,
		LogFormat:   "text",
	}
}

// DefaultPath is $XDG_CONFIG_HOME/watson/config.yaml, or the platform
// equivalent. It is empty when no config directory can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "watson", "config.yaml")
}

// Load returns Defaults overlaid with the YAML file at path. With an empty
// path the file at DefaultPath is used if it exists. Unknown keys are errors.
func Load(path string) (Options, error) {
	opts := Defaults()
	explicit := path != ""
	if !explicit {
		if path = DefaultPath(); path == "" {
			return opts, nil
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return opts, nil
		}
		return Options{}, errors.Wrap(err, "read config")
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, errors.Wrapf(err, "parse config %s", path)
	}
	return opts, nil
}

// Validate checks ranges and combinations. Every error wraps ErrInvalid.
func (o Options) Validate() error {
	if o.Timeout < 1 || o.Timeout > MaxTimeout {
		return fmt.Errorf("%w: timeout must be between 1 and %d seconds, got %d", ErrInvalid, MaxTimeout, o.Timeout)
	}
	if o.Concurrency < 1 || o.Concurrency > MaxConcurrency {
		return fmt.Errorf("%w: concurrency must be between 1 and %d, got %d", ErrInvalid, MaxConcurrency, o.Concurrency)
	}
	if o.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalid)
	}
	if o.Tor && o.Proxy != "" {
		return fmt.Errorf("%w: --tor and --proxy are mutually exclusive", ErrInvalid)
	}
	if o.Verbose && o.Quiet {
		return fmt.Errorf("%w: --verbose and --quiet are mutually exclusive", ErrInvalid)
	}
	if o.Proxy != "" {
		if _, err := httpx.ParseProxyURL(o.Proxy); err != nil {
			return fmt.Errorf("%w: proxy: %v", ErrInvalid, err)
		}
	}
	if o.OutputFormat != "" && !slices.Contains(outputFormats, strings.ToLower(o.OutputFormat)) {
		return fmt.Errorf("%w: format must be one of %s", ErrInvalid, strings.Join(outputFormats, ", "))
	}
	if !slices.Contains(logFormats, strings.ToLower(o.LogFormat)) {
		return fmt.Errorf("%w: log format must be one of %s", ErrInvalid, strings.Join(logFormats, ", "))
	}
	if o.DataFile == "" && !o.Email {
		return fmt.Errorf("%w: database path is empty", ErrInvalid)
	}
	return nil
}

func (o Options) RequestTimeout() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// Transport maps the transport options onto an httpx configuration.
func (o Options) Transport() httpx.Config {
	cfg := httpx.Config{
		Mode:            httpx.Direct,
		TorProxyURL:     o.TorProxy,
		UserAgent:       o.UserAgent,
		RotateUserAgent: o.RotateUA,
	}
	switch {
	case o.Tor:
		cfg.Mode = httpx.Tor
	case o.Proxy != "":
		cfg.Mode = httpx.Proxy
		cfg.ProxyURL = o.Proxy
	}
	return cfg
}

// ReadIdentifiers reads one identifier per line. Blank lines and lines
// starting with # are skipped.
func ReadIdentifiers(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read identifiers")
	}
	return out, nil
}

func ReadIdentifiersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIdentifiers(f)
}
