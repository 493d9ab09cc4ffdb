package metrics

import (
	"errors"
	"fmt"
	"time"
)

var errUnknownFailure = errors.New("request failed")

// Sample is a single observation: a successful round-trip latency, or a
// failure marker when Err is non-nil.
type Sample struct {
	Latency time.Duration
	Err     error
}

// Success returns a successful sample with the given latency.
func Success(latency time.Duration) Sample {
	if latency < 0 {
		latency = 0
	}
	return Sample{Latency: latency}
}

// Failure returns a failure marker. A nil err is replaced by a generic error so
// the sample still counts as a failure.
func Failure(err error) Sample {
	if err == nil {
		err = errUnknownFailure
	}
	return Sample{Err: err}
}

// Failed reports whether the sample is a failure marker.
func (s Sample) Failed() bool {
	return s.Err != nil
}

// Reason returns a short human-friendly label for a failed sample.
func (s Sample) Reason() string {
	if s.Err == nil {
		return ""
	}
	var coded interface{ Code() int }
	if errors.As(s.Err, &coded) && coded.Code() > 0 {
		return fmt.Sprintf("HTTP %d", coded.Code())
	}
	return FriendlyErrorName(fmt.Sprintf("%T", s.Err))
}
