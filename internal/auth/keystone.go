package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// TokenIssuer performs one Keystone password authentication and returns the
// X-Subject-Token header value together with the raw response body.
type TokenIssuer interface {
	IssueToken(ctx context.Context) (token string, body []byte, err error)
}

// KeystonePasswordProvider obtains a subject token with password credentials
// and caches it until shortly before its expires_at.
type KeystonePasswordProvider struct {
	issuer              TokenIssuer
	refreshBeforeExpiry time.Duration
	minRefreshInterval  time.Duration // floor between background refreshes
	now                 func() time.Time

	mu              sync.Mutex
	cachedToken     string
	tokenExpiry     time.Time // zero when the response carried no expiry
	generation      uint64    // bumped on every successful fetch
	fetchInProgress bool
	fetchCond       *sync.Cond
}

const defaultMinRefreshInterval = time.Second

// NewKeystonePasswordProvider creates a provider backed by issuer.
func NewKeystonePasswordProvider(issuer TokenIssuer, refreshBeforeExpiry time.Duration) *KeystonePasswordProvider {
	p := &KeystonePasswordProvider{
		issuer:              issuer,
		refreshBeforeExpiry: refreshBeforeExpiry,
		minRefreshInterval:  defaultMinRefreshInterval,
		now:                 time.Now,
	}
	p.fetchCond = sync.NewCond(&p.mu)
	return p
}

// Token returns the cached subject token, issuing a new one when none is
// cached or the cached one is about to expire.
func (p *KeystonePasswordProvider) Token(ctx context.Context) (string, error) {
	return p.get(ctx, false)
}

// Refresh issues a new token and replaces the cached one, even if the cached
// token is still valid. It shares an in-flight fetch with concurrent callers.
func (p *KeystonePasswordProvider) Refresh(ctx context.Context) error {
	_, err := p.get(ctx, true)
	return err
}

// KeepFresh reissues the token in the background one refresh margin ahead of
// the point where Token would block on Keystone. Failed refreshes are passed to
// onError and retried. It returns when ctx is done, or at once if the cached
// token has no expiry.
func (p *KeystonePasswordProvider) KeepFresh(ctx context.Context, onError func(error)) {
	retry := p.minRefreshInterval
	if retry <= 0 {
		retry = defaultMinRefreshInterval
	}
	for {
		p.mu.Lock()
		cached, expiry := p.cachedToken, p.tokenExpiry
		p.mu.Unlock()

		var wait time.Duration
		if cached != "" {
			if expiry.IsZero() {
				return
			}
			wait = expiry.Add(-2 * p.refreshBeforeExpiry).Sub(p.now())
		}
		if wait < retry {
			wait = retry
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil && onError != nil {
			onError(err)
		}
	}
}

func (p *KeystonePasswordProvider) get(ctx context.Context, force bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !force && p.validLocked() {
		return p.cachedToken, nil
	}

	// If another goroutine is already fetching, wait for it
	gen := p.generation
	for p.fetchInProgress {
		p.fetchCond.Wait()
		if (!force || p.generation != gen) && p.validLocked() {
			return p.cachedToken, nil
		}
	}

	p.fetchInProgress = true
	p.mu.Unlock()

	token, expiry, err := p.fetchToken(ctx)

	p.mu.Lock()
	p.fetchInProgress = false
	p.fetchCond.Broadcast()

	if err != nil {
		return "", err
	}

	p.cachedToken = token
	p.tokenExpiry = expiry
	p.generation++
	return p.cachedToken, nil
}

// ExpiresAt returns the expiry of the cached token, or the zero time.
func (p *KeystonePasswordProvider) ExpiresAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenExpiry
}

// InjectHeader sets X-Auth-Token on req.
func (p *KeystonePasswordProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAuthToken, token)
	return nil
}

// Close drops the cached token.
func (p *KeystonePasswordProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cachedToken = ""
	p.tokenExpiry = time.Time{}
	return nil
}

func (p *KeystonePasswordProvider) validLocked() bool {
	if p.cachedToken == "" {
		return false
	}
	if p.tokenExpiry.IsZero() {
		return true
	}
	return p.now().Before(p.tokenExpiry.Add(-p.refreshBeforeExpiry))
}

func (p *KeystonePasswordProvider) fetchToken(ctx context.Context) (string, time.Time, error) {
	token, body, err := p.issuer.IssueToken(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	if token == "" {
		return "", time.Time{}, fmt.Errorf("issue token: %w (missing X-Subject-Token header)", ErrNoToken)
	}

	var expiry time.Time
	if raw := gjson.GetBytes(body, "token.expires_at"); raw.Exists() {
		parsed, err := time.Parse(time.RFC3339Nano, raw.String())
		if err != nil {
			return "", time.Time{}, fmt.Errorf("parse token expires_at %q: %w", raw.String(), err)
		}
		expiry = parsed
	}
	return token, expiry, nil
}
