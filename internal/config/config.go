// Package config loads the static configuration the tool needs at process
// start: OAuth client credentials, API endpoints, scopes, and the tuning
// knobs for caching, pacing, and timeouts. Configuration is read once and
// immutable for the process lifetime.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// environment variables (a .env file in the working directory is loaded
// first, as a convenience for development).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"cordctl/pkg/logging"
)

const (
	userConfigDir  = ".config/cordctl"
	configFileName = "config.yaml"

	// envPrefix is the prefix for environment overrides, e.g.
	// DISCORD_CLIENT_ID, DISCORD_CLIENT_SECRET, DISCORD_ENCRYPTION_KEY.
	envPrefix = "DISCORD"
)

// Duration wraps time.Duration so config values can be written as "5m" or
// "10s" in both YAML and environment variables.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the static configuration for the whole tool.
// Secrets (client secret, encryption key) are environment-only and are never
// read from or written to the YAML file.
type Config struct {
	// ClientID is the Discord application's OAuth2 client ID.
	ClientID string `yaml:"client_id" envconfig:"CLIENT_ID"`

	// ClientSecret is the Discord application's OAuth2 client secret.
	ClientSecret string `yaml:"-" envconfig:"CLIENT_SECRET"`

	// EncryptionKey is the secret the token store derives its cipher key
	// from. Changing it invalidates any previously persisted credential.
	EncryptionKey string `yaml:"-" envconfig:"ENCRYPTION_KEY"`

	// BaseURL is the versioned REST base, e.g. https://discord.com/api/v10.
	BaseURL string `yaml:"base_url" envconfig:"API_BASE_URL"`

	// AuthorizeEndpoint is the OAuth2 authorization URL opened in the browser.
	AuthorizeEndpoint string `yaml:"authorize_endpoint" envconfig:"AUTHORIZE_ENDPOINT"`

	// TokenEndpoint is the OAuth2 token URL used for code exchange and refresh.
	TokenEndpoint string `yaml:"token_endpoint" envconfig:"TOKEN_ENDPOINT"`

	// Scopes are the OAuth scopes requested during authorization.
	Scopes []string `yaml:"scopes" envconfig:"SCOPES"`

	// CallbackPort is the port for the local OAuth callback server.
	CallbackPort int `yaml:"callback_port" envconfig:"CALLBACK_PORT"`

	// CredentialFile is the path of the encrypted credential blob.
	CredentialFile string `yaml:"credential_file" envconfig:"CREDENTIAL_FILE"`

	// CacheTTL bounds how long idempotent responses are served from cache.
	CacheTTL Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`

	// RequestTimeout bounds each outbound HTTP call.
	RequestTimeout Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	// QueueDelay is the fixed pacing between drained requests.
	QueueDelay Duration `yaml:"queue_delay" envconfig:"QUEUE_DELAY"`

	// TokenRetention bounds how long a persisted credential may be retried,
	// independent of the access token's own expiry.
	TokenRetention Duration `yaml:"token_retention" envconfig:"TOKEN_RETENTION"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		BaseURL:           "https://discord.com/api/v10",
		AuthorizeEndpoint: "https://discord.com/oauth2/authorize",
		TokenEndpoint:     "https://discord.com/api/v10/oauth2/token",
		Scopes:            []string{"identify", "guilds", "messages.read", "email"},
		CallbackPort:      53682,
		CredentialFile:    filepath.Join(DefaultConfigDir(), "credentials.enc"),
		CacheTTL:          Duration(5 * time.Minute),
		RequestTimeout:    Duration(10 * time.Second),
		QueueDelay:        Duration(100 * time.Millisecond),
		TokenRetention:    Duration(7 * 24 * time.Hour),
		LogLevel:          "info",
	}
}

// DefaultConfigDir returns ~/.config/cordctl, falling back to the working
// directory when the home directory cannot be determined.
func DefaultConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return userConfigDir
	}
	return filepath.Join(homeDir, userConfigDir)
}

// Load reads configuration from the given directory (empty means the default
// config dir), then applies .env and environment overrides. A missing config
// file is not an error; defaults apply.
func Load(configDir string) (Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	configFilePath := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("Config", "no config.yaml at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("malformed config at %s: %w", configFilePath, err)
		}
		logging.Debug("Config", "loaded configuration from %s", configFilePath)
	}

	// .env is a development convenience; absence is the normal case.
	_ = godotenv.Load()

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

// ScopeString returns the requested scopes as the space-joined string the
// authorization request expects.
func (c Config) ScopeString() string {
	return strings.Join(c.Scopes, " ")
}

// Validate checks the fields every authenticated command depends on.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("client id is not configured (set DISCORD_CLIENT_ID or client_id in config.yaml)")
	}
	if c.ClientSecret == "" {
		return errors.New("client secret is not configured (set DISCORD_CLIENT_SECRET)")
	}
	if c.EncryptionKey == "" {
		return errors.New("encryption key is not configured (set DISCORD_ENCRYPTION_KEY)")
	}
	if c.BaseURL == "" {
		return errors.New("base URL must not be empty")
	}
	if len(c.Scopes) == 0 {
		return errors.New("at least one OAuth scope is required")
	}
	return nil
}
