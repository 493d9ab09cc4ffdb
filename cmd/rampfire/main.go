package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/rampfire/internal/config"
	"github.com/torosent/rampfire/internal/keystone"
	"github.com/torosent/rampfire/internal/logging"
	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/output"
	"github.com/torosent/rampfire/internal/runner"
	"github.com/torosent/rampfire/internal/telemetry"
	"github.com/torosent/rampfire/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	client, err := keystone.New(cfg.URL, keystone.CredentialsFromConfig(cfg.Auth),
		keystone.WithHTTPClient(keystone.NewHTTPClient(cfg.Timeout)),
		keystone.WithTracer(tp.Tracer(), tp.ShouldPropagate()),
	)
	if err != nil {
		return err
	}

	requester, closeRequester, err := buildRequester(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	defer closeRequester()

	if cfg.LogErrors {
		requester = runner.WithLogging(requester, runner.NewFailureLogger(logger))
	}

	window := metrics.NewWindow(cfg.WindowSize)

	var observer runner.Observer
	if cfg.MetricsAddr != "" {
		exporter := telemetry.NewExporter()
		exporter.WatchWindow(window)
		srv, err := exporter.Serve(ctx, cfg.MetricsAddr, logger)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		observer = exporter
	}

	// Live lines share stdout with the text report only.
	live := stdout
	if cfg.Output != config.OutputText {
		live = stderr
	}
	colors := output.ColorsFor(live, cfg.NoColor)

	ramp := runner.NewRamp(runner.Options{
		Requester:   requester,
		Window:      window,
		WarmupDelay: cfg.Warmup,
		MaxRate:     cfg.MaxRate,
		Reporter:    output.NewReporterFactory(cfg.ReportInterval, live, colors),
		Observer:    observer,
		Logger:      logger,
		Tracer:      tp.Tracer(),
		OnLevelComplete: func(result runner.LevelResult) {
			fmt.Fprintln(live, output.FormatLevelLine(result))
			if cfg.ResultsFile == "" {
				return
			}
			if err := output.AppendResultsFile(cfg.ResultsFile, result); err != nil {
				logger.Error("append results file", zap.String("path", cfg.ResultsFile), zap.Error(err))
			}
		},
	})

	logger.Info("starting ramp",
		zap.String("run_id", ramp.RunID()),
		zap.String("url", cfg.URL),
		zap.String("scenario", string(cfg.Scenario)),
		zap.Ints("levels", cfg.Levels),
		zap.Duration("duration", cfg.Duration),
		zap.Duration("warmup", cfg.Warmup))

	results, runErr := ramp.Run(ctx, cfg.Levels, cfg.Duration)

	report := output.NewReport(ramp.RunID(), results)
	if err := emitReport(stdout, cfg.Output, report, colors); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return nil
}

func emitReport(w io.Writer, format config.OutputFormat, report output.Report, colors *output.ColorScheme) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, report)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, report)
	default:
		output.PrintReport(w, report, colors)
		return nil
	}
}
