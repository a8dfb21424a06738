package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cordctl/internal/apierr"
)

func newTestManager(t *testing.T, tokenHandler http.HandlerFunc) (*Manager, *CredentialStore) {
	t.Helper()

	ts := httptest.NewServer(tokenHandler)
	t.Cleanup(ts.Close)

	store, err := NewCredentialStore(filepath.Join(t.TempDir(), "credentials.enc"), "test-passphrase", DefaultRetention)
	if err != nil {
		t.Fatalf("NewCredentialStore failed: %v", err)
	}

	m := NewManager(ManagerConfig{
		AuthorizeEndpoint: "https://example.invalid/oauth2/authorize",
		TokenEndpoint:     ts.URL,
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		Scopes:            "identify guilds",
	}, store)
	m.openBrowser = func(string) error {
		t.Fatal("unexpected browser launch")
		return nil
	}
	return m, store
}

func writeTokenResponse(w http.ResponseWriter, accessToken string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "new-refresh-token",
		"scope":         "identify guilds",
	})
}

func TestAuthorizeReturnsStoredToken(t *testing.T) {
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint called for a usable credential")
		http.Error(w, "unexpected", http.StatusInternalServerError)
	})

	if err := store.Save(&Credential{
		AccessToken: "stored-token",
		ExpiresIn:   3600,
		IssuedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	token, err := m.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if token != "stored-token" {
		t.Errorf("Authorize = %q, want %q", token, "stored-token")
	}
	if m.State() != StateAuthenticated {
		t.Errorf("State = %v, want %v", m.State(), StateAuthenticated)
	}
}

func TestAuthorizeRefreshesExpiredCredential(t *testing.T) {
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse token request: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostFormValue("refresh_token"); got != "old-refresh-token" {
			t.Errorf("refresh_token = %q, want old-refresh-token", got)
		}
		writeTokenResponse(w, "refreshed-token")
	})

	if err := store.Save(&Credential{
		AccessToken:  "expired-token",
		RefreshToken: "old-refresh-token",
		ExpiresIn:    3600,
		IssuedAt:     time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	token, err := m.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if token != "refreshed-token" {
		t.Errorf("Authorize = %q, want %q", token, "refreshed-token")
	}

	// The refreshed credential must survive a restart.
	stored, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored == nil || stored.AccessToken != "refreshed-token" {
		t.Errorf("stored credential = %+v, want refreshed-token", stored)
	}
	if stored.RefreshToken != "new-refresh-token" {
		t.Errorf("stored refresh token = %q, want new-refresh-token", stored.RefreshToken)
	}
}

func TestAuthorizeTransientRefreshFailureKeepsCredential(t *testing.T) {
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"try again later"}`, http.StatusServiceUnavailable)
	})

	if err := store.Save(&Credential{
		AccessToken:  "expired-token",
		RefreshToken: "old-refresh-token",
		ExpiresIn:    3600,
		IssuedAt:     time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err := m.Authorize(context.Background())
	if err == nil {
		t.Fatal("Authorize succeeded against a failing token endpoint")
	}
	if !apierr.IsKind(err, apierr.KindServer) {
		t.Errorf("error kind = %v, want server", err)
	}

	stored, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored == nil || stored.RefreshToken != "old-refresh-token" {
		t.Errorf("stored credential = %+v, want the original kept", stored)
	}
}

func TestAuthorizeRefreshRejectionClearsStoreAndStartsSignIn(t *testing.T) {
	var refreshCalls, exchangeCalls int64
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse token request: %v", err)
		}
		switch grant := r.PostFormValue("grant_type"); grant {
		case "refresh_token":
			atomic.AddInt64(&refreshCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","message":"invalid refresh token"}`))
		case "authorization_code":
			atomic.AddInt64(&exchangeCalls, 1)
			writeTokenResponse(w, "fresh-token")
		default:
			t.Errorf("unexpected grant_type %q", grant)
			http.Error(w, "unexpected", http.StatusInternalServerError)
		}
	})
	m.cfg.CallbackPort = DefaultCallbackPort

	// The browser stub runs after the rejected refresh; by then the stale
	// credential must already be gone from disk.
	var storeDuringSignIn *Credential
	m.openBrowser = func(authURL string) error {
		var err error
		storeDuringSignIn, err = store.Load()
		if err != nil {
			return err
		}
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		callback := fmt.Sprintf("%s?code=auth-code&state=%s", q.Get("redirect_uri"), url.QueryEscape(q.Get("state")))
		resp, err := http.Get(callback)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	if err := store.Save(&Credential{
		AccessToken:  "expired-token",
		RefreshToken: "stale-refresh-token",
		ExpiresIn:    3600,
		IssuedAt:     time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := m.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("Authorize = %q, want fresh-token", token)
	}

	// Exactly one refresh attempt, then the full sign-in flow, never a
	// second refresh with the rejected token.
	if got := atomic.LoadInt64(&refreshCalls); got != 1 {
		t.Errorf("refresh attempts = %d, want 1", got)
	}
	if got := atomic.LoadInt64(&exchangeCalls); got != 1 {
		t.Errorf("code exchanges = %d, want 1", got)
	}
	if storeDuringSignIn != nil {
		t.Errorf("store during sign-in = %+v, want cleared", storeDuringSignIn)
	}

	stored, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored == nil || stored.AccessToken != "fresh-token" {
		t.Errorf("stored credential = %+v, want the fresh one", stored)
	}
	if m.State() != StateAuthenticated {
		t.Errorf("State = %v, want %v", m.State(), StateAuthenticated)
	}
}

func TestAuthorizeSingleFlight(t *testing.T) {
	var calls int64
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		writeTokenResponse(w, "refreshed-token")
	})

	if err := store.Save(&Credential{
		AccessToken:  "expired-token",
		RefreshToken: "old-refresh-token",
		ExpiresIn:    3600,
		IssuedAt:     time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := m.Authorize(context.Background())
			if err != nil {
				t.Errorf("Authorize failed: %v", err)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1", got)
	}
	for i, token := range tokens {
		if token != "refreshed-token" {
			t.Errorf("caller %d got token %q, want refreshed-token", i, token)
		}
	}
}

// loginManager wires the browser stub to complete the callback with the
// given state override ("" means echo the real state).
func loginManager(t *testing.T, tokenHandler http.HandlerFunc, stateOverride string) *Manager {
	t.Helper()
	m, _ := newTestManager(t, tokenHandler)
	m.cfg.CallbackPort = DefaultCallbackPort
	m.openBrowser = func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		state := q.Get("state")
		if stateOverride != "" {
			state = stateOverride
		}
		callback := fmt.Sprintf("%s?code=auth-code&state=%s", q.Get("redirect_uri"), url.QueryEscape(state))
		resp, err := http.Get(callback)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
	return m
}

func TestLoginCompletesAuthorizationCodeFlow(t *testing.T) {
	var sawVerifier string
	m := loginManager(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse token request: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", got)
		}
		if got := r.PostFormValue("code"); got != "auth-code" {
			t.Errorf("code = %q, want auth-code", got)
		}
		sawVerifier = r.PostFormValue("code_verifier")
		writeTokenResponse(w, "fresh-token")
	}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := m.Login(ctx)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("Login = %q, want fresh-token", token)
	}
	if len(sawVerifier) != 43 {
		t.Errorf("code_verifier length = %d, want 43", len(sawVerifier))
	}
	if m.State() != StateAuthenticated {
		t.Errorf("State = %v, want %v", m.State(), StateAuthenticated)
	}
}

func TestLoginRejectsStateMismatch(t *testing.T) {
	m := loginManager(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint called despite state mismatch")
		http.Error(w, "unexpected", http.StatusInternalServerError)
	}, "forged-state")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.Login(ctx)
	if err == nil {
		t.Fatal("Login accepted a mismatched state")
	}
	if !apierr.IsKind(err, apierr.KindAuthentication) {
		t.Errorf("error kind = %v, want authentication", err)
	}
	if m.State() != StateUnauthenticated {
		t.Errorf("State = %v, want %v", m.State(), StateUnauthenticated)
	}
}

func TestLogoutClearsCredential(t *testing.T) {
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		writeTokenResponse(w, "unused")
	})

	if err := store.Save(&Credential{
		AccessToken: "stored-token",
		ExpiresIn:   3600,
		IssuedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := m.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	if err := m.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if m.State() != StateUnauthenticated {
		t.Errorf("State = %v, want %v", m.State(), StateUnauthenticated)
	}

	stored, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored != nil {
		t.Errorf("stored credential = %+v, want nil after logout", stored)
	}
}

func TestCredentialUsable(t *testing.T) {
	now := time.Now()

	fresh := &Credential{AccessToken: "t", ExpiresIn: 3600, IssuedAt: now}
	if !fresh.Usable(now) {
		t.Error("fresh credential reported unusable")
	}

	nearExpiry := &Credential{AccessToken: "t", ExpiresIn: 3600, IssuedAt: now.Add(-time.Hour + 10*time.Second)}
	if nearExpiry.Usable(now) {
		t.Error("credential inside the expiry margin reported usable")
	}

	var nilCred *Credential
	if nilCred.Usable(now) {
		t.Error("nil credential reported usable")
	}

	noToken := &Credential{ExpiresIn: 3600, IssuedAt: now}
	if noToken.Usable(now) {
		t.Error("credential with no access token reported usable")
	}
}
