package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// expiryBuffer refreshes tokens this long before they expire
const expiryBuffer = 60 * time.Second

// TokenSource refreshes tokens ahead of expiry and hands every new token to
// onRefresh for persistence before using it
type TokenSource struct {
	ctx       context.Context
	config    *oauth2.Config
	onRefresh func(*oauth2.Token) error
	now       func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenSource creates a TokenSource. ctx carries the HTTP client used for
// refresh requests (see oauth2.HTTPClient).
func NewTokenSource(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, onRefresh func(*oauth2.Token) error) *TokenSource {
	return &TokenSource{
		ctx:       context.WithoutCancel(ctx),
		config:    cfg,
		token:     token,
		onRefresh: onRefresh,
		now:       time.Now,
	}
}

// Token returns a valid token, refreshing if necessary
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.expiring() {
		return ts.token, nil
	}

	// Only the refresh token is passed so oauth2 cannot hand back the
	// still-valid access token.
	src := ts.config.TokenSource(ts.ctx, &oauth2.Token{RefreshToken: ts.token.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		return nil, err
	}
	if newToken.RefreshToken == "" {
		newToken.RefreshToken = ts.token.RefreshToken
	}

	if ts.onRefresh != nil {
		if err := ts.onRefresh(newToken); err != nil {
			return nil, err
		}
	}

	ts.token = newToken
	return newToken, nil
}

// IsExpired reports whether the current token is expired or inside the buffer
func (ts *TokenSource) IsExpired() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.expiring()
}

// CurrentToken returns the current token without refreshing
func (ts *TokenSource) CurrentToken() *oauth2.Token {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token
}

func (ts *TokenSource) expiring() bool {
	return ts.token.Expiry.Sub(ts.now()) <= expiryBuffer
}
