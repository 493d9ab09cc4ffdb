package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/rampfire/internal/auth"
	"github.com/torosent/rampfire/internal/config"
	"github.com/torosent/rampfire/internal/keystone"
	"github.com/torosent/rampfire/internal/runner"
)

const tokenRefreshLeeway = 30 * time.Second

// buildRequester returns the requester for cfg.Scenario. For the validate
// scenario the subject token is acquired here, before any level starts, and a
// failure aborts the run. Password-issued tokens are then kept fresh in the
// background until the returned cleanup runs.
func buildRequester(ctx context.Context, cfg *config.Config, client *keystone.Client, logger *zap.Logger) (runner.Requester, func(), error) {
	switch cfg.Scenario {
	case config.ScenarioIssue:
		return client.IssueRequester(), func() {}, nil
	case config.ScenarioValidate:
		provider := buildAuthProvider(cfg, client)
		if _, err := provider.Token(ctx); err != nil {
			logger.Error("could not obtain subject token", zap.Error(err))
			_ = provider.Close()
			return nil, nil, fmt.Errorf("acquire subject token: %w", err)
		}
		logger.Info("subject token acquired")

		// Reissue off the timed request path.
		refreshCtx, stopRefresh := context.WithCancel(ctx)
		refreshed := make(chan struct{})
		if kp, ok := provider.(*auth.KeystonePasswordProvider); ok {
			go func() {
				defer close(refreshed)
				kp.KeepFresh(refreshCtx, func(err error) {
					logger.Warn("background token refresh failed", zap.Error(err))
				})
			}()
		} else {
			close(refreshed)
		}
		cleanup := func() {
			stopRefresh()
			<-refreshed
			_ = provider.Close()
		}
		return client.ValidateRequester(provider), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported scenario %q", cfg.Scenario)
	}
}

func buildAuthProvider(cfg *config.Config, issuer auth.TokenIssuer) auth.Provider {
	if cfg.Auth.Token != "" {
		return auth.NewStaticTokenProvider(cfg.Auth.Token)
	}
	return auth.NewKeystonePasswordProvider(issuer, tokenRefreshLeeway)
}
