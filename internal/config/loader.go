package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment fallbacks for secrets kept off the command line.
const (
	EnvPassword = "RAMPFIRE_PASSWORD"
	EnvToken    = "RAMPFIRE_TOKEN"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Precedence: flags, then the config file, then environment fallbacks for
// secrets, then defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	if cfg.Auth.Password == "" {
		cfg.Auth.Password = os.Getenv(EnvPassword)
	}
	if cfg.Auth.Token == "" {
		cfg.Auth.Token = strings.TrimSpace(os.Getenv(EnvToken))
	}

	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	cfg.ResultsFile = strings.TrimSpace(cfg.ResultsFile)

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringSettings := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"url", "target"}, &cfg.URL},
		{[]string{"username"}, &cfg.Auth.Username},
		{[]string{"password"}, &cfg.Auth.Password},
		{[]string{"user_domain_name", "user-domain-name", "userdomainname"}, &cfg.Auth.UserDomainName},
		{[]string{"user_domain_id", "user-domain-id", "userdomainid"}, &cfg.Auth.UserDomainID},
		{[]string{"project_name", "project-name", "projectname"}, &cfg.Auth.ProjectName},
		{[]string{"project_id", "project-id", "projectid"}, &cfg.Auth.ProjectID},
		{[]string{"project_domain_name", "project-domain-name", "projectdomainname"}, &cfg.Auth.ProjectDomainName},
		{[]string{"project_domain_id", "project-domain-id", "projectdomainid"}, &cfg.Auth.ProjectDomainID},
		{[]string{"token"}, &cfg.Auth.Token},
		{[]string{"results_file", "results-file", "resultsfile"}, &cfg.ResultsFile},
		{[]string{"log_level", "log-level", "loglevel"}, &cfg.LogLevel},
		{[]string{"log_format", "log-format", "logformat"}, &cfg.LogFormat},
		{[]string{"metrics_addr", "metrics-addr", "metricsaddr"}, &cfg.MetricsAddr},
	}
	for _, s := range stringSettings {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "scenario"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		cfg.Scenario = Scenario(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "levels", "concurrency"); ok {
		levels, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("levels: %w", err)
		}
		cfg.Levels = levels
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "warmup", "warm_up", "warm-up"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
		cfg.Warmup = dur
	}

	if raw, ok := lookupSetting(settings, "report_interval", "report-interval", "reportinterval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("report_interval: %w", err)
		}
		cfg.ReportInterval = dur
	}

	if raw, ok := lookupSetting(settings, "window_size", "window-size", "windowsize"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("window_size: %w", err)
		}
		cfg.WindowSize = val
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "max_rate", "max-rate", "maxrate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_rate: %w", err)
		}
		cfg.MaxRate = val
	}

	if raw, ok := lookupSetting(settings, "log_errors", "log-errors", "logerrors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "no_color", "no-color", "nocolor"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("no_color: %w", err)
		}
		cfg.NoColor = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tracing := base
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "service_name", "service-name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "sample-rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return tracing, nil
}
