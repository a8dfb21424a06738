package cmd

import (
	"fmt"
	"os"

	"cordctl/internal/api"
	"cordctl/internal/cache"
	"cordctl/internal/config"
	"cordctl/internal/notify"
	"cordctl/internal/oauth"
	"cordctl/internal/ratelimit"
	"cordctl/pkg/logging"
)

// authRequiredError marks failures caused by missing auth configuration, so
// the root command can exit with ExitCodeAuthRequired.
type authRequiredError struct {
	cause error
}

func (e *authRequiredError) Error() string { return e.cause.Error() }
func (e *authRequiredError) Unwrap() error { return e.cause }

// app holds the wired-up components every command works with. Construction
// is explicit: config first, then each component receives its collaborators.
type app struct {
	cfg      config.Config
	notifier notify.Notifier
	auth     *oauth.Manager
	client   *api.Client
}

// newApp loads configuration and wires the component graph. Commands that
// never touch the API (status, version) use newAppNoAuth instead.
func newApp() (*app, error) {
	a, err := newAppNoAuth()
	if err != nil {
		return nil, err
	}
	if _, err := a.authManager(); err != nil {
		return nil, err
	}

	a.client = api.NewClient(api.Options{
		BaseURL:        a.cfg.BaseURL,
		RequestTimeout: a.cfg.RequestTimeout.Std(),
		QueueDelay:     a.cfg.QueueDelay.Std(),
	}, a.auth, ratelimit.New(), cache.New[[]byte](a.cfg.CacheTTL.Std()))

	return a, nil
}

// newAppNoAuth loads configuration and logging but skips the auth-dependent
// components and their validation.
func newAppNoAuth() (*app, error) {
	cfg, err := config.Load(flagConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	logging.Init(logging.ParseLevel(level), os.Stderr)

	a := &app{cfg: cfg}
	if flagQuiet {
		a.notifier = notify.Noop{}
	} else {
		a.notifier = notify.NewConsole(nil)
	}
	return a, nil
}

// close releases the app's background resources.
func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
}

// authManager builds just the credential store and auth manager, for
// commands that manage the session without calling the API.
func (a *app) authManager() (*oauth.Manager, error) {
	if a.auth != nil {
		return a.auth, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, &authRequiredError{cause: err}
	}
	store, err := oauth.NewCredentialStore(a.cfg.CredentialFile, a.cfg.EncryptionKey, a.cfg.TokenRetention.Std())
	if err != nil {
		return nil, err
	}
	a.auth = oauth.NewManager(oauth.ManagerConfig{
		AuthorizeEndpoint: a.cfg.AuthorizeEndpoint,
		TokenEndpoint:     a.cfg.TokenEndpoint,
		ClientID:          a.cfg.ClientID,
		ClientSecret:      a.cfg.ClientSecret,
		Scopes:            a.cfg.ScopeString(),
		CallbackPort:      a.cfg.CallbackPort,
	}, store)
	return a.auth, nil
}
