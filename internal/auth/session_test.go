// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/tracksync/internal/backend"
	"github.com/tomtom215/tracksync/internal/models"
	"github.com/tomtom215/tracksync/internal/store"
)

type fakeAuth struct {
	mu          sync.Mutex
	refreshes   int
	refreshErr  error
	nextAccess  string
	nextRefresh string
	loginResp   *models.TokenResponse
	lastRefresh string
}

func (f *fakeAuth) Login(_ context.Context, _ models.LoginRequest) (*models.TokenResponse, error) {
	if f.loginResp == nil {
		return nil, &backend.APIError{Endpoint: "login", StatusCode: http.StatusUnauthorized}
	}
	return f.loginResp, nil
}

func (f *fakeAuth) Refresh(_ context.Context, rt string) (*models.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.lastRefresh = rt
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &models.TokenResponse{AccessToken: f.nextAccess, RefreshToken: f.nextRefresh}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, access, refresh string) {
	t.Helper()
	err := s.SaveCredentials(context.Background(), models.Credentials{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
}

func unauthorized() error {
	return &backend.APIError{Endpoint: "tracks.batch", StatusCode: http.StatusUnauthorized}
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestSession_Do_PassesThroughWithoutRefresh(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seed(t, st, "a1", "r1")
	fa := &fakeAuth{}
	sess := NewSession(st, fa, nil, "local")

	var seen string
	err := sess.Do(context.Background(), func(_ context.Context, token string) error {
		seen = token
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if seen != "a1" {
		t.Errorf("token = %q, want a1", seen)
	}
	if fa.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", fa.refreshes)
	}
}

func TestSession_Do_RefreshesOnceAndRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)
	seed(t, st, "a1", "r1")
	fa := &fakeAuth{nextAccess: "a2", nextRefresh: "r2"}
	sess := NewSession(st, fa, nil, "local")

	var tokens []string
	err := sess.Do(ctx, func(_ context.Context, token string) error {
		tokens = append(tokens, token)
		if token == "a1" {
			return unauthorized()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if strings.Join(tokens, ",") != "a1,a2" {
		t.Errorf("tokens = %v, want [a1 a2]", tokens)
	}
	if fa.refreshes != 1 || fa.lastRefresh != "r1" {
		t.Errorf("refreshes = %d with %q", fa.refreshes, fa.lastRefresh)
	}

	creds, err := st.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.AccessToken != "a2" || creds.RefreshToken != "r2" {
		t.Errorf("stored pair = %q/%q, want a2/r2", creds.AccessToken, creds.RefreshToken)
	}
}

func TestSession_Do_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)
	seed(t, st, "a1", "r1")
	fa := &fakeAuth{nextAccess: "a2"}
	sess := NewSession(st, fa, nil, "local")

	_ = sess.Do(ctx, func(_ context.Context, token string) error {
		if token == "a1" {
			return unauthorized()
		}
		return nil
	})
	creds, _ := st.LoadCredentials(ctx)
	if creds.RefreshToken != "r1" {
		t.Errorf("refresh token = %q, want r1", creds.RefreshToken)
	}
}

func TestSession_Do_SecondUnauthorizedIsFatal(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seed(t, st, "a1", "r1")
	fa := &fakeAuth{nextAccess: "a2", nextRefresh: "r2"}
	sess := NewSession(st, fa, nil, "local")

	calls := 0
	err := sess.Do(context.Background(), func(context.Context, string) error {
		calls++
		return unauthorized()
	})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if !IsFatal(err) {
		t.Error("IsFatal should be true")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if fa.refreshes != 1 {
		t.Errorf("refreshes = %d, want exactly 1", fa.refreshes)
	}
}

func TestSession_Do_RefreshRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantFatal bool
	}{
		{"401", &backend.APIError{StatusCode: 401}, true},
		{"reused code", &backend.APIError{StatusCode: 400, Code: "refresh_token_reused"}, true},
		{"expired code", &backend.APIError{StatusCode: 403, Code: "refresh_token_expired"}, true},
		{"server error", &backend.APIError{StatusCode: 503}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := newTestStore(t)
			seed(t, st, "a1", "r1")
			sess := NewSession(st, &fakeAuth{refreshErr: tt.err}, nil, "local")

			err := sess.Do(context.Background(), func(context.Context, string) error {
				return unauthorized()
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsFatal(err); got != tt.wantFatal {
				t.Errorf("IsFatal = %v, want %v (err %v)", got, tt.wantFatal, err)
			}
			if !tt.wantFatal && !backend.IsTransient(err) {
				t.Errorf("non-fatal refresh failure should stay transient: %v", err)
			}
		})
	}
}

func TestSession_Do_NoCredentials(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess := NewSession(st, &fakeAuth{}, nil, "local")

	called := false
	err := sess.Do(context.Background(), func(context.Context, string) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("err = %v, want ErrNotLoggedIn", err)
	}
	if called {
		t.Error("call must not run without credentials")
	}
}

func TestSession_Do_NoRefreshToken(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seed(t, st, "a1", "")
	fa := &fakeAuth{}
	sess := NewSession(st, fa, nil, "local")

	err := sess.Do(context.Background(), func(context.Context, string) error {
		return unauthorized()
	})
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("err = %v, want ErrNotLoggedIn", err)
	}
	if fa.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", fa.refreshes)
	}
}

func TestSession_Do_NonAuthErrorsPassThrough(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seed(t, st, "a1", "r1")
	fa := &fakeAuth{}
	sess := NewSession(st, fa, nil, "local")

	want := &backend.APIError{StatusCode: 500}
	err := sess.Do(context.Background(), func(context.Context, string) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
	if fa.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", fa.refreshes)
	}
}

func TestSession_Do_ConcurrentUnauthorizedRefreshesOnce(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seed(t, st, "a1", "r1")
	fa := &fakeAuth{nextAccess: "a2", nextRefresh: "r2"}
	sess := NewSession(st, fa, nil, "local")

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sess.Do(context.Background(), func(_ context.Context, token string) error {
				if token == "a1" {
					return unauthorized()
				}
				return nil
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("%d calls failed", failures.Load())
	}
	if fa.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", fa.refreshes)
	}
}

func TestCall_ReturnsValue(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	seed(t, st, "a1", "r1")
	sess := NewSession(st, &fakeAuth{}, nil, "local")

	got, err := Call(context.Background(), sess, func(_ context.Context, token string) (string, error) {
		return "value-for-" + token, nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "value-for-a1" {
		t.Errorf("Call = %q", got)
	}
}

func TestSession_LoginSubjectLogout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)
	enc, err := NewTokenEncryptor(testMasterKey)
	if err != nil {
		t.Fatalf("NewTokenEncryptor: %v", err)
	}
	access := signedToken(t, "user-42", time.Now().Add(time.Hour))
	fa := &fakeAuth{loginResp: &models.TokenResponse{AccessToken: access, RefreshToken: "r1"}}
	sess := NewSession(st, fa, enc, "local")

	if got := sess.Subject(ctx); got != "local" {
		t.Errorf("Subject before login = %q, want fallback", got)
	}
	if err := sess.Login(ctx, models.LoginRequest{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := sess.Subject(ctx); got != "user-42" {
		t.Errorf("Subject = %q, want user-42", got)
	}

	raw, err := st.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if !raw.Encrypted || raw.AccessToken == access || raw.RefreshToken == "r1" {
		t.Error("stored tokens should be encrypted")
	}
	if raw.ExpiresAt == nil {
		t.Error("expiry should come from the exp claim")
	}

	var seen string
	_ = sess.Do(ctx, func(_ context.Context, token string) error {
		seen = token
		return nil
	})
	if seen != access {
		t.Error("Do should receive the decrypted access token")
	}

	if err := sess.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if sess.LoggedIn(ctx) {
		t.Error("LoggedIn after Logout")
	}
}

func TestSession_LoginFailure(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess := NewSession(st, &fakeAuth{}, nil, "local")
	err := sess.Login(context.Background(), models.LoginRequest{Username: "u", Password: "bad"})
	if !backend.IsUnauthorized(err) {
		t.Errorf("err = %v, want unauthorized", err)
	}
	if sess.LoggedIn(context.Background()) {
		t.Error("failed login must not store credentials")
	}
}

func TestSession_EncryptedWithoutKey(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	_ = st.SaveCredentials(context.Background(), models.Credentials{AccessToken: "x", RefreshToken: "y", Encrypted: true})
	sess := NewSession(st, &fakeAuth{}, nil, "local")

	err := sess.Do(context.Background(), func(context.Context, string) error { return nil })
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("err = %v, want ErrNotLoggedIn", err)
	}
}
