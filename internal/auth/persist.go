package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"readiness/internal/store"
)

// TokenStore persists Strava tokens
type TokenStore interface {
	GetAuth(ctx context.Context) (*store.Auth, error)
	SaveAuth(ctx context.Context, auth *store.Auth) error
	UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error
	DeleteAuth(ctx context.Context) error
}

// AuthCodeURL returns the Strava consent URL for the application shell to
// open, with a random state the shell must verify on callback
func AuthCodeURL(cfg *oauth2.Config) (url, state string, err error) {
	state, err = generateState()
	if err != nil {
		return "", "", fmt.Errorf("generating state: %w", err)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

// Exchange trades an authorization code for tokens and stores them
func Exchange(ctx context.Context, cfg *oauth2.Config, ts TokenStore, code string) (*oauth2.Token, error) {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	if err := Save(ctx, ts, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Save stores a token obtained outside this package
func Save(ctx context.Context, ts TokenStore, token *oauth2.Token) error {
	err := ts.SaveAuth(ctx, &store.Auth{
		AthleteID:    ExtractAthleteID(token),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	})
	if err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	return nil
}

// Load builds a persisting TokenSource from stored tokens. It returns
// store.ErrNoAuth when Strava was never connected.
func Load(ctx context.Context, cfg *oauth2.Config, ts TokenStore) (*TokenSource, error) {
	a, err := ts.GetAuth(ctx)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       a.ExpiresAt,
	}
	return NewTokenSource(ctx, cfg, token, func(t *oauth2.Token) error {
		return ts.UpdateTokens(context.WithoutCancel(ctx), t.AccessToken, t.RefreshToken, t.Expiry)
	}), nil
}

// Connected reports whether tokens are stored
func Connected(ctx context.Context, ts TokenStore) bool {
	_, err := ts.GetAuth(ctx)
	return err == nil
}

// Disconnect removes stored tokens
func Disconnect(ctx context.Context, ts TokenStore) error {
	if err := ts.DeleteAuth(ctx); err != nil && !errors.Is(err, store.ErrNoAuth) {
		return fmt.Errorf("deleting tokens: %w", err)
	}
	return nil
}

// generateState returns a random OAuth state value
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
