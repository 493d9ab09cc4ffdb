package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rampfire",
		Short:         "Closed-loop latency benchmark for Keystone token APIs",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("url", DefaultURL, "Keystone base URL")
	flags.String("scenario", string(ScenarioIssue), "Request scenario: 'issue' or 'validate'")

	// Credential flags
	flags.String("username", "demo", "User name")
	flags.String("password", "", "User password (or RAMPFIRE_PASSWORD)")
	flags.String("user-domain-name", "Default", "User domain name")
	flags.String("user-domain-id", "", "User domain ID (overrides user-domain-name)")
	flags.String("project-name", "demo", "Project name to scope to")
	flags.String("project-id", "", "Project ID to scope to (overrides project-name)")
	flags.String("project-domain-name", "Default", "Project domain name")
	flags.String("project-domain-id", "", "Project domain ID (overrides project-domain-name)")
	flags.String("token", "", "Pre-issued subject token for the validate scenario (or RAMPFIRE_TOKEN)")

	// Ramp flags
	flags.IntSliceP("levels", "l", []int{1}, "Concurrency levels to run in order (comma separated)")
	flags.DurationP("duration", "d", DefaultDuration, "Measured duration of each level")
	flags.Duration("warmup", DefaultWarmup, "Settle period discarded after every worker has responded once")
	flags.Duration("report-interval", DefaultReportInterval, "Interval between live progress lines")
	flags.Int("window-size", DefaultWindowSize, "Maximum number of samples held per level")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.IntP("max-rate", "r", 0, "Requests per second ceiling across all workers (0 means unlimited)")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Final report format: text, json or yaml")
	flags.String("results-file", "", "Append one CSV row per level to this file")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log encoding: console or json")
	flags.Bool("log-errors", false, "Log failed requests to stderr (throttled)")
	flags.Bool("no-color", false, "Disable colored output")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported to the collector")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", true, "Inject W3C trace headers into requests when tracing is enabled")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		flag string
		dst  *string
	}{
		{"url", &cfg.URL},
		{"username", &cfg.Auth.Username},
		{"password", &cfg.Auth.Password},
		{"user-domain-name", &cfg.Auth.UserDomainName},
		{"user-domain-id", &cfg.Auth.UserDomainID},
		{"project-name", &cfg.Auth.ProjectName},
		{"project-id", &cfg.Auth.ProjectID},
		{"project-domain-name", &cfg.Auth.ProjectDomainName},
		{"project-domain-id", &cfg.Auth.ProjectDomainID},
		{"token", &cfg.Auth.Token},
		{"results-file", &cfg.ResultsFile},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
	}
	for _, s := range stringFlags {
		if !fs.Changed(s.flag) {
			continue
		}
		val, err := fs.GetString(s.flag)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(val)
	}

	if fs.Changed("scenario") {
		val, err := fs.GetString("scenario")
		if err != nil {
			return err
		}
		cfg.Scenario = Scenario(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("levels") {
		val, err := fs.GetIntSlice("levels")
		if err != nil {
			return err
		}
		cfg.Levels = val
	}

	durationFlags := []struct {
		flag string
		dst  *time.Duration
	}{
		{"duration", &cfg.Duration},
		{"warmup", &cfg.Warmup},
		{"report-interval", &cfg.ReportInterval},
		{"timeout", &cfg.Timeout},
	}
	for _, d := range durationFlags {
		if !fs.Changed(d.flag) {
			continue
		}
		val, err := fs.GetDuration(d.flag)
		if err != nil {
			return err
		}
		*d.dst = val
	}

	if fs.Changed("window-size") {
		val, err := fs.GetInt("window-size")
		if err != nil {
			return err
		}
		cfg.WindowSize = val
	}
	if fs.Changed("max-rate") {
		val, err := fs.GetInt("max-rate")
		if err != nil {
			return err
		}
		cfg.MaxRate = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("no-color") {
		val, err := fs.GetBool("no-color")
		if err != nil {
			return err
		}
		cfg.NoColor = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	return nil
}
