package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Code returns the HTTP status code.
func (e *HTTPError) Code() int { return e.StatusCode }

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(err error)
}

// loggingRequester wraps a Requester with failure logging.
type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log failures.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && ctx.Err() == nil && l.logger != nil {
		l.logger.LogFailure(err)
	}
	return err
}

// ZapFailureLogger writes failures to a zap logger. After the first few
// failures it logs at most one per interval and counts the rest.
type ZapFailureLogger struct {
	logger     *zap.Logger
	sometimes  rate.Sometimes
	suppressed atomic.Int64
}

// NewFailureLogger creates a throttled failure logger.
func NewFailureLogger(logger *zap.Logger) *ZapFailureLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapFailureLogger{
		logger:    logger,
		sometimes: rate.Sometimes{First: 5, Interval: time.Second},
	}
}

// LogFailure implements FailureLogger.
func (f *ZapFailureLogger) LogFailure(err error) {
	logged := false
	f.sometimes.Do(func() {
		logged = true
		fields := []zap.Field{zap.Error(err)}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			fields = append(fields, zap.Int("status", httpErr.StatusCode))
		}
		if n := f.suppressed.Swap(0); n > 0 {
			fields = append(fields, zap.Int64("suppressed", n))
		}
		f.logger.Warn("request failed", fields...)
	})
	if !logged {
		f.suppressed.Add(1)
	}
}

// Suppressed returns the number of failures not yet logged.
func (f *ZapFailureLogger) Suppressed() int64 {
	return f.suppressed.Load()
}
