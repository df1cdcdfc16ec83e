package spmodel

import (
	"net/url"
	"os"
	"strings"

	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGraphEndpoint = "https://graph.microsoft.com"
	GraphVersionV1       = "v1.0"
	GraphVersionBeta     = "beta"

	defaultTimeoutSecs     = 60
	defaultMaxAttempts     = 5
	defaultMinRetryDelayMS = 500
	defaultMaxRetryDelayMS = 30 * 1000
	defaultBurst           = 1
	defaultRESTBatchSize   = 100
	defaultGraphBatchSize  = 20
	maxGraphBatchSize      = 20
	defaultUserAgent       = "spmodel"
	defaultLogLevel        = "info"
)

var validLogLevels = []string{"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug", "trace"}

// Settings holds the connection settings for one site.
type Settings struct {
	SiteURL       string       `yaml:"site_url" json:"site_url"`
	GraphEndpoint string       `yaml:"graph_endpoint" json:"graph_endpoint"`
	GraphVersion  string       `yaml:"graph_version" json:"graph_version"`
	GraphFirst    bool         `yaml:"graph_first" json:"graph_first"` // prefer the graph protocol for reads when a type supports it
	LogLevel      string       `yaml:"log_level" json:"log_level"`
	HTTP          HTTPSettings `yaml:"http" json:"http"`
}

// HTTPSettings configures the HTTP transport.
type HTTPSettings struct {
	TimeoutSecs       int    `yaml:"timeout_secs" json:"timeout_secs"`
	MaxAttempts       int    `yaml:"max_attempts" json:"max_attempts"`
	MinRetryDelayMS   int    `yaml:"min_retry_delay_ms" json:"min_retry_delay_ms"`
	MaxRetryDelayMS   int    `yaml:"max_retry_delay_ms" json:"max_retry_delay_ms"`
	RequestsPerSecond int    `yaml:"requests_per_second" json:"requests_per_second"` // 0 disables client side throttling
	Burst             int    `yaml:"burst" json:"burst"`
	UserAgent         string `yaml:"user_agent" json:"user_agent"`
	RESTBatchSize     int    `yaml:"rest_batch_size" json:"rest_batch_size"`
	GraphBatchSize    int    `yaml:"graph_batch_size" json:"graph_batch_size"`
}

// LoadSettings reads settings from a YAML file and validates them.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading settings file '%s'", path)
	}

	settings := &Settings{}
	if err = yaml.Unmarshal(data, settings); err != nil {
		return nil, errors.Wrapf(err, "parsing settings file '%s'", path)
	}

	if err = settings.ValidateAndDefault(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}

	return settings, nil
}

// NewSettings returns validated settings for the given site with every other
// option defaulted.
func NewSettings(siteURL string) (*Settings, error) {
	s := &Settings{SiteURL: siteURL}
	if err := s.ValidateAndDefault(); err != nil {
		return nil, errors.WithStack(err)
	}
	return s, nil
}

func (s *Settings) ValidateAndDefault() error {
	catcher := grip.NewBasicCatcher()

	s.SiteURL = strings.TrimRight(strings.TrimSpace(s.SiteURL), "/")
	if s.SiteURL == "" {
		catcher.New("site URL must not be empty")
	} else if u, err := url.Parse(s.SiteURL); err != nil {
		catcher.Wrapf(err, "parsing site URL '%s'", s.SiteURL)
	} else if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		catcher.Errorf("site URL '%s' must be an absolute http(s) URL", s.SiteURL)
	}

	if s.GraphEndpoint == "" {
		s.GraphEndpoint = DefaultGraphEndpoint
	}
	s.GraphEndpoint = strings.TrimRight(s.GraphEndpoint, "/")
	if u, err := url.Parse(s.GraphEndpoint); err != nil || u.Host == "" {
		catcher.Errorf("graph endpoint '%s' must be an absolute URL", s.GraphEndpoint)
	}

	if s.GraphVersion == "" {
		s.GraphVersion = GraphVersionV1
	}
	catcher.ErrorfWhen(s.GraphVersion != GraphVersionV1 && s.GraphVersion != GraphVersionBeta,
		"graph version must be '%s' or '%s', not '%s'", GraphVersionV1, GraphVersionBeta, s.GraphVersion)

	if s.LogLevel == "" {
		s.LogLevel = defaultLogLevel
	}
	s.LogLevel = strings.ToLower(s.LogLevel)
	catcher.ErrorfWhen(!utility.StringSliceContains(validLogLevels, s.LogLevel), "invalid log level '%s'", s.LogLevel)

	catcher.Add(s.HTTP.validateAndDefault())

	return catcher.Resolve()
}

func (s *HTTPSettings) validateAndDefault() error {
	catcher := grip.NewBasicCatcher()

	if s.TimeoutSecs == 0 {
		s.TimeoutSecs = defaultTimeoutSecs
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = defaultMaxAttempts
	}
	if s.MinRetryDelayMS == 0 {
		s.MinRetryDelayMS = defaultMinRetryDelayMS
	}
	if s.MaxRetryDelayMS == 0 {
		s.MaxRetryDelayMS = defaultMaxRetryDelayMS
	}
	if s.Burst == 0 {
		s.Burst = defaultBurst
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	if s.RESTBatchSize == 0 {
		s.RESTBatchSize = defaultRESTBatchSize
	}
	if s.GraphBatchSize == 0 {
		s.GraphBatchSize = defaultGraphBatchSize
	}

	catcher.NewWhen(s.TimeoutSecs < 0, "timeout must not be negative")
	catcher.NewWhen(s.MaxAttempts < 0, "max attempts must not be negative")
	catcher.NewWhen(s.MinRetryDelayMS < 0, "minimum retry delay must not be negative")
	catcher.ErrorfWhen(s.MaxRetryDelayMS < s.MinRetryDelayMS, "maximum retry delay (%d ms) must be at least the minimum retry delay (%d ms)", s.MaxRetryDelayMS, s.MinRetryDelayMS)
	catcher.NewWhen(s.RequestsPerSecond < 0, "requests per second must not be negative")
	catcher.NewWhen(s.Burst < 0, "burst must not be negative")
	catcher.NewWhen(s.RESTBatchSize < 0, "REST batch size must not be negative")
	catcher.ErrorfWhen(s.GraphBatchSize < 0 || s.GraphBatchSize > maxGraphBatchSize, "graph batch size must be between 1 and %d", maxGraphBatchSize)

	return catcher.Resolve()
}

// SiteHost returns the host name of the site URL.
func (s *Settings) SiteHost() string {
	u, err := url.Parse(s.SiteURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// SiteServerRelativePath returns the path of the site URL, always starting
// with a slash.
func (s *Settings) SiteServerRelativePath() string {
	u, err := url.Parse(s.SiteURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// GraphRoot returns the versioned graph root, e.g. https://graph.microsoft.com/v1.0.
func (s *Settings) GraphRoot() string {
	return s.GraphEndpoint + "/" + s.GraphVersion
}
