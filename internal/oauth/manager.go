// Package oauth implements the OAuth2 authorization code flow with PKCE
// against Discord, the encrypted at-rest credential store, and the manager
// that keeps a usable access token available to the API client.
package oauth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cordctl/internal/apierr"
	"cordctl/pkg/logging"
)

// State describes where the auth manager is in the token lifecycle.
type State int

const (
	// StateUnauthenticated means no usable credential is held.
	StateUnauthenticated State = iota

	// StateAuthenticated means a usable access token is available.
	StateAuthenticated

	// StateRefreshing means a token refresh or sign-in is in progress.
	StateRefreshing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// ManagerConfig carries the endpoints and client registration the Manager
// signs in with.
type ManagerConfig struct {
	AuthorizeEndpoint string
	TokenEndpoint     string
	ClientID          string
	ClientSecret      string
	Scopes            string
	CallbackPort      int
}

// Manager owns the credential lifecycle for the single signed-in account:
// interactive sign-in, silent refresh, persistence, and sign-out. All token
// material stays inside this package; callers only ever receive the access
// token string for the current request.
type Manager struct {
	cfg    ManagerConfig
	store  *CredentialStore
	tokens *tokenClient

	// flight collapses concurrent Authorize calls into one token operation.
	flight singleflight.Group

	mu     sync.Mutex
	cred   *Credential
	loaded bool
	state  State

	now func() time.Time

	// openBrowser is replaceable in tests.
	openBrowser func(string) error
}

// NewManager creates a manager backed by the given credential store.
func NewManager(cfg ManagerConfig, store *CredentialStore) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       store,
		tokens:      newTokenClient(cfg.TokenEndpoint, cfg.ClientID, cfg.ClientSecret),
		state:       StateUnauthenticated,
		now:         time.Now,
		openBrowser: OpenBrowser,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status is a snapshot of the credential lifecycle for display. It carries
// no token material.
type Status struct {
	State      State
	SignedIn   bool
	Scope      string
	ExpiresAt  time.Time
	CanRefresh bool
}

// Status reports the current lifecycle state and credential metadata,
// loading the store on first use. It never triggers a refresh or sign-in.
func (m *Manager) Status() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return Status{}, err
	}
	st := Status{State: m.state}
	if m.cred != nil {
		st.SignedIn = true
		st.Scope = m.cred.Scope
		st.ExpiresAt = m.cred.ExpiresAt()
		st.CanRefresh = m.cred.RefreshToken != ""
	}
	return st, nil
}

// Authorize returns an access token usable right now, refreshing or running
// the interactive sign-in flow as needed. Concurrent callers share a single
// in-flight operation and receive the same result.
func (m *Manager) Authorize(ctx context.Context) (string, error) {
	v, err, _ := m.flight.Do("authorize", func() (interface{}, error) {
		return m.authorize(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) authorize(ctx context.Context) (string, error) {
	m.mu.Lock()
	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return "", err
	}

	if m.cred.Usable(m.now()) {
		token := m.cred.AccessToken
		m.state = StateAuthenticated
		m.mu.Unlock()
		return token, nil
	}

	refreshToken := ""
	if m.cred != nil {
		refreshToken = m.cred.RefreshToken
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	if refreshToken != "" {
		token, err := m.refresh(ctx, refreshToken)
		if err == nil {
			return token, nil
		}
		if !refreshRejected(err) {
			// Transient failure. Keep the stored credential so a later
			// attempt can retry the refresh.
			m.setState(StateUnauthenticated)
			return "", err
		}
		logging.Info("Auth", "Refresh token rejected, starting a new sign-in")
		m.forget()
	}

	return m.login(ctx)
}

// Login runs the interactive sign-in flow regardless of any held credential.
func (m *Manager) Login(ctx context.Context) (string, error) {
	v, err, _ := m.flight.Do("authorize", func() (interface{}, error) {
		return m.login(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate marks the held access token as no longer usable, e.g. after the
// API rejected it with a 401. The refresh token is kept so the next Authorize
// can refresh silently.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred != nil {
		m.cred.ExpiresIn = 0
	}
	if m.state == StateAuthenticated {
		m.state = StateUnauthenticated
	}
}

// Logout discards the held credential and removes it from disk.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.cred = nil
	m.loaded = true
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear stored credential: %w", err)
	}
	logging.Info("Auth", "Signed out")
	return nil
}

// refresh redeems the refresh token and stores the resulting credential.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (string, error) {
	logging.Debug("Auth", "Refreshing access token")

	tok, err := m.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	cred := CredentialFromToken(tok, m.now())
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return m.adopt(cred)
}

// login drives the browser-based PKCE flow end to end.
func (m *Manager) login(ctx context.Context) (string, error) {
	m.setState(StateRefreshing)

	pkce, err := GeneratePKCE()
	if err != nil {
		m.setState(StateUnauthenticated)
		return "", err
	}
	state, err := GenerateState()
	if err != nil {
		m.setState(StateUnauthenticated)
		return "", err
	}

	serverCtx, cancel := context.WithTimeout(ctx, CallbackTimeout)
	defer cancel()

	server := NewCallbackServer(m.cfg.CallbackPort)
	redirectURI, err := server.Start(serverCtx)
	if err != nil {
		m.setState(StateUnauthenticated)
		return "", fmt.Errorf("failed to start sign-in callback server: %w", err)
	}
	defer server.Stop()

	authURL := m.authorizeURL(redirectURI, state, pkce)
	logging.Info("Auth", "Opening browser for sign-in")
	if err := m.openBrowser(authURL); err != nil {
		logging.Warn("Auth", "Could not open browser automatically: %v", err)
		logging.Info("Auth", "Visit this URL to sign in: %s", authURL)
	}

	result, err := server.WaitForCallback(serverCtx)
	if err != nil {
		m.setState(StateUnauthenticated)
		return "", apierr.New(apierr.KindAuthentication, fmt.Sprintf("sign-in did not complete: %v", err))
	}
	if result.IsError() {
		m.setState(StateUnauthenticated)
		msg := result.Error
		if result.ErrorDescription != "" {
			msg = fmt.Sprintf("%s: %s", result.Error, result.ErrorDescription)
		}
		return "", apierr.New(apierr.KindAuthentication, fmt.Sprintf("authorization denied: %s", msg))
	}
	if result.State != state {
		m.setState(StateUnauthenticated)
		return "", apierr.New(apierr.KindAuthentication, "authorization response state mismatch")
	}
	if result.Code == "" {
		m.setState(StateUnauthenticated)
		return "", apierr.New(apierr.KindAuthentication, "authorization response contained no code")
	}

	tok, err := m.tokens.ExchangeCode(ctx, result.Code, redirectURI, pkce.CodeVerifier)
	if err != nil {
		m.setState(StateUnauthenticated)
		return "", err
	}

	return m.adopt(CredentialFromToken(tok, m.now()))
}

// adopt installs a fresh credential in memory and on disk.
func (m *Manager) adopt(cred *Credential) (string, error) {
	if err := m.store.Save(cred); err != nil {
		// The token is valid even if persistence failed. Keep going and
		// surface the problem in the log.
		logging.Warn("Auth", "Failed to persist credential: %v", err)
	}

	m.mu.Lock()
	m.cred = cred
	m.loaded = true
	m.state = StateAuthenticated
	m.mu.Unlock()

	logging.Debug("Auth", "Credential updated, expires at %s", cred.ExpiresAt().Format(time.RFC3339))
	return cred.AccessToken, nil
}

// forget drops the credential from memory and disk without changing state.
func (m *Manager) forget() {
	m.mu.Lock()
	m.cred = nil
	m.loaded = true
	m.mu.Unlock()
	if err := m.store.Clear(); err != nil {
		logging.Warn("Auth", "Failed to clear stored credential: %v", err)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// loadLocked populates m.cred from the store once. Callers hold m.mu.
func (m *Manager) loadLocked() error {
	if m.loaded {
		return nil
	}
	cred, err := m.store.Load()
	if err != nil {
		return err
	}
	m.cred = cred
	m.loaded = true
	if cred.Usable(m.now()) {
		m.state = StateAuthenticated
	}
	return nil
}

// authorizeURL builds the browser authorization URL for the PKCE flow.
func (m *Manager) authorizeURL(redirectURI, state string, pkce *PKCEChallenge) string {
	q := url.Values{
		"client_id":             {m.cfg.ClientID},
		"response_type":         {"code"},
		"redirect_uri":          {redirectURI},
		"scope":                 {m.cfg.Scopes},
		"state":                 {state},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {pkce.CodeChallengeMethod},
	}
	return m.cfg.AuthorizeEndpoint + "?" + q.Encode()
}

// refreshRejected reports whether a refresh failure means the refresh token
// itself is no longer good. Network and server-side failures are transient
// and must not discard the stored credential.
func refreshRejected(err error) bool {
	return apierr.IsKind(err, apierr.KindAuthentication) || apierr.IsKind(err, apierr.KindValidation)
}
