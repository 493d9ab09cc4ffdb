package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

type Scenario string

const (
	ScenarioIssue    Scenario = "issue"
	ScenarioValidate Scenario = "validate"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Defaults shared by flags and config files.
const (
	DefaultURL            = "http://localhost:35357"
	DefaultDuration       = 15 * time.Second
	DefaultWarmup         = 5 * time.Second
	DefaultReportInterval = 3 * time.Second
	DefaultWindowSize     = 100_000
	DefaultTimeout        = 30 * time.Second
)

type Config struct {
	URL            string        `mapstructure:"url"`
	Scenario       Scenario      `mapstructure:"scenario"`
	Auth           AuthConfig    `mapstructure:",squash"`
	Levels         []int         `mapstructure:"levels"`
	Duration       time.Duration `mapstructure:"duration"`
	Warmup         time.Duration `mapstructure:"warmup"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	WindowSize     int           `mapstructure:"window_size"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRate        int           `mapstructure:"max_rate"`
	Output         OutputFormat  `mapstructure:"output"`
	ResultsFile    string        `mapstructure:"results_file"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	LogErrors      bool          `mapstructure:"log_errors"`
	NoColor        bool          `mapstructure:"no_color"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	ConfigFile     string        `mapstructure:"-"`
}

// AuthConfig holds the Keystone password credentials and scope.
type AuthConfig struct {
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	UserDomainName    string `mapstructure:"user_domain_name"`
	UserDomainID      string `mapstructure:"user_domain_id"`
	ProjectName       string `mapstructure:"project_name"`
	ProjectID         string `mapstructure:"project_id"`
	ProjectDomainName string `mapstructure:"project_domain_name"`
	ProjectDomainID   string `mapstructure:"project_domain_id"`
	Token             string `mapstructure:"token"` // pre-issued subject token for the validate scenario
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // nil means propagate when enabled
}

// Enabled reports whether an exporter endpoint is configured, directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		URL:      DefaultURL,
		Scenario: ScenarioIssue,
		Auth: AuthConfig{
			Username:          "demo",
			UserDomainName:    "Default",
			ProjectName:       "demo",
			ProjectDomainName: "Default",
		},
		Levels:         []int{1},
		Duration:       DefaultDuration,
		Warmup:         DefaultWarmup,
		ReportInterval: DefaultReportInterval,
		WindowSize:     DefaultWindowSize,
		Timeout:        DefaultTimeout,
		Output:         OutputText,
		LogLevel:       "info",
		LogFormat:      "console",
		Tracing:        TracingConfig{SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.URL) == "" {
		issues = append(issues, "url is required (use --help for usage information)")
	} else if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("url %q must be an absolute http(s) URL", c.URL))
	}

	switch c.Scenario {
	case ScenarioIssue, ScenarioValidate:
	default:
		issues = append(issues, fmt.Sprintf("scenario must be %q or %q, got %q", ScenarioIssue, ScenarioValidate, c.Scenario))
	}

	issues = append(issues, validateAuthConfig(c.Scenario, c.Auth)...)

	if len(c.Levels) == 0 {
		issues = append(issues, "levels must contain at least one concurrency value")
	}
	for i, level := range c.Levels {
		if level < 1 {
			issues = append(issues, fmt.Sprintf("levels[%d]: concurrency must be >= 1, got %d", i, level))
		}
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.Warmup < 0 {
		issues = append(issues, "warmup must be >= 0")
	}
	if c.ReportInterval <= 0 {
		issues = append(issues, "report_interval must be > 0")
	}
	if c.WindowSize < 1 {
		issues = append(issues, "window_size must be >= 1")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.MaxRate < 0 {
		issues = append(issues, "max_rate must be >= 0")
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be text, json or yaml, got %q", c.Output))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be console or json, got %q", c.LogFormat))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateAuthConfig(scenario Scenario, auth AuthConfig) []string {
	var issues []string
	needsPassword := scenario == ScenarioIssue || (scenario == ScenarioValidate && auth.Token == "")
	if !needsPassword {
		return nil
	}
	if strings.TrimSpace(auth.Username) == "" {
		issues = append(issues, "username is required")
	}
	if auth.Password == "" {
		issues = append(issues, "password is required (flag, config file or RAMPFIRE_PASSWORD)")
	}
	if auth.UserDomainName == "" && auth.UserDomainID == "" {
		issues = append(issues, "user_domain_name or user_domain_id is required")
	}
	if auth.ProjectName == "" && auth.ProjectID == "" {
		issues = append(issues, "project_name or project_id is required")
	}
	if auth.ProjectID == "" && auth.ProjectDomainName == "" && auth.ProjectDomainID == "" {
		issues = append(issues, "project_domain_name or project_domain_id is required when scoping by project name")
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
