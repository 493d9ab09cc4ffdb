package auth

import (
	"context"
	"errors"
	"net/http"
)

// HeaderAuthToken carries the caller's Keystone token.
const HeaderAuthToken = "X-Auth-Token"

// ErrNoToken is returned when a token source yields an empty token.
var ErrNoToken = errors.New("no token available")

// Provider defines the interface for authentication providers that can
// obtain tokens and inject them into HTTP requests.
type Provider interface {
	// Token retrieves a valid authentication token, using cached values
	// when available and valid.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the X-Auth-Token header of the provided HTTP request.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}
