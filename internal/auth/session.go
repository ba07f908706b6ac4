// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

/*
Package auth wraps backend calls with the stored session.

A Session attaches the current access token to every call. When a call is
rejected as unauthorized it refreshes the token pair exactly once, persists
the new pair and retries. Any further authorization failure is fatal and
surfaces as ErrSessionExpired; the caller is expected to clear local state
and ask the user to sign in again.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/tracksync/internal/backend"
	"github.com/tomtom215/tracksync/internal/logging"
	"github.com/tomtom215/tracksync/internal/metrics"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/store"
)

var (
	// ErrNotLoggedIn means no usable credentials are stored.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrSessionExpired means the backend refused both the access token
	// and the refresh token.
	ErrSessionExpired = errors.New("session expired")
)

// IsFatal reports whether err requires the user to authenticate again.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotLoggedIn) || errors.Is(err, ErrSessionExpired)
}

// TokenStore persists the token pair.
type TokenStore interface {
	LoadCredentials(ctx context.Context) (*models.Credentials, error)
	SaveCredentials(ctx context.Context, c models.Credentials) error
	ClearCredentials(ctx context.Context) error
}

// Authenticator issues token pairs.
type Authenticator interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error)
}

// Session serializes refreshes so concurrent callers hitting a 401 at the
// same time trigger one refresh between them.
type Session struct {
	tokens       TokenStore
	auth         Authenticator
	enc          *TokenEncryptor
	fallbackUser string
	now          func() time.Time

	mu sync.Mutex
}

// NewSession builds a session. enc may be nil to store tokens in clear.
// fallbackUser scopes local data when the access token carries no subject.
func NewSession(tokens TokenStore, auth Authenticator, enc *TokenEncryptor, fallbackUser string) *Session {
	return &Session{
		tokens:       tokens,
		auth:         auth,
		enc:          enc,
		fallbackUser: fallbackUser,
		now:          time.Now,
	}
}

// Do runs fn with the current access token, refreshing and retrying once
// on an authorization failure.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	creds, err := s.load(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, creds.AccessToken)
	if !backend.IsUnauthorized(err) {
		return err
	}

	logging.Debug().Msg("Access token rejected, refreshing session")
	token, err := s.refresh(ctx, creds.AccessToken)
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if backend.IsUnauthorized(err) {
		metrics.AuthFatal.Inc()
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return err
}

// Call is Do for calls that return a value.
func Call[T any](ctx context.Context, s *Session, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	var out T
	err := s.Do(ctx, func(ctx context.Context, token string) error {
		v, err := fn(ctx, token)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// refresh exchanges the stored refresh token. If another caller already
// replaced the access token that failed, the stored one is returned as is.
func (s *Session) refresh(ctx context.Context, failed string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if creds.AccessToken != failed {
		return creds.AccessToken, nil
	}
	if creds.RefreshToken == "" {
		metrics.AuthFatal.Inc()
		return "", ErrNotLoggedIn
	}

	resp, err := s.auth.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		if backend.IsUnauthorized(err) || backend.IsFatalAuth(err) {
			metrics.AuthRefreshes.WithLabelValues("rejected").Inc()
			metrics.AuthFatal.Inc()
			logging.Warn().Err(err).Msg("Refresh token rejected")
			return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		metrics.AuthRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("refresh session: %w", err)
	}
	if resp.AccessToken == "" {
		metrics.AuthRefreshes.WithLabelValues("error").Inc()
		return "", errors.New("refresh session: response carried no access token")
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	if err := s.save(ctx, resp.AccessToken, refreshToken, resp.ExpiresIn); err != nil {
		return "", err
	}
	metrics.AuthRefreshes.WithLabelValues("success").Inc()
	logging.Info().Msg("Session refreshed")
	return resp.AccessToken, nil
}

// Login exchanges credentials for a token pair and stores it.
func (s *Session) Login(ctx context.Context, req models.LoginRequest) error {
	resp, err := s.auth.Login(ctx, req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return errors.New("login: response carried no access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, resp.AccessToken, resp.RefreshToken, resp.ExpiresIn); err != nil {
		return err
	}
	logging.Info().Str("username", req.Username).Msg("Logged in")
	return nil
}

// Logout drops the stored token pair.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tokens.ClearCredentials(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// LoggedIn reports whether a token pair is stored.
func (s *Session) LoggedIn(ctx context.Context) bool {
	_, err := s.load(ctx)
	return err == nil
}

// Subject returns the user id that scopes local data.
func (s *Session) Subject(ctx context.Context) string {
	creds, err := s.load(ctx)
	if err != nil || creds.Subject == "" {
		return s.fallbackUser
	}
	return creds.Subject
}

// load returns decrypted credentials.
func (s *Session) load(ctx context.Context) (*models.Credentials, error) {
	creds, err := s.tokens.LoadCredentials(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil, ErrNotLoggedIn
	}

	if creds.Encrypted {
		if !s.enc.Enabled() {
			return nil, fmt.Errorf("%w: stored credentials are encrypted but no master key is configured", ErrNotLoggedIn)
		}
		if creds.AccessToken, err = s.enc.Decrypt(creds.AccessToken); err != nil {
			return nil, fmt.Errorf("decrypt access token: %w", err)
		}
		if creds.RefreshToken, err = s.enc.Decrypt(creds.RefreshToken); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
		creds.Encrypted = false
	}
	return creds, nil
}

func (s *Session) save(ctx context.Context, access, refresh string, expiresIn *int64) error {
	now := s.now().UTC()
	subject, expiresAt := tokenClaims(access)
	if expiresIn != nil {
		t := now.Add(time.Duration(*expiresIn) * time.Second)
		expiresAt = &t
	}

	creds := models.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		Subject:      subject,
		Encrypted:    s.enc.Enabled(),
		UpdatedAt:    now,
	}
	var err error
	if creds.AccessToken, err = s.enc.Encrypt(access); err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	if creds.RefreshToken, err = s.enc.Encrypt(refresh); err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	if err := s.tokens.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}
