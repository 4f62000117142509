package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Backend names accepted by the "backend" setting.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config holds application configuration.
type Config struct {
	// Backend selects the persistence backend for the admin UI, CLI and MCP
	// server: "local" (JSON document under the base dir) or "remote" (REST).
	// Chosen once at startup.
	Backend string `json:"backend"`

	// RemoteURL is the base URL of the REST API, e.g. http://127.0.0.1:8080/api.
	// Empty means the API served by this process.
	RemoteURL string `json:"remote_url,omitempty"`

	// LocalPath overrides the location of the local store document.
	// Defaults to <base dir>/store.json.
	LocalPath string `json:"local_path,omitempty"`

	// APIToken, when set, is required as a bearer token on every /api request
	// and sent by the remote backend.
	APIToken string `json:"api_token,omitempty"`

	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// MaxBodyBytes caps REST and form request bodies. Images travel inline
	// as data URLs, so this is large.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty"`

	AIBaseURL string `json:"ai_base_url,omitempty"`
	AIModel   string `json:"ai_model,omitempty"`

	// AITimeoutSeconds bounds each AI call. 0 keeps the transport default.
	AITimeoutSeconds int `json:"ai_timeout_seconds,omitempty"`

	// MaxImageWidth downscales uploaded photos wider than this. 0 disables.
	MaxImageWidth int `json:"max_image_width,omitempty"`

	// LoginAttemptsPerMinute limits password attempts per browser session.
	LoginAttemptsPerMinute int `json:"login_attempts_per_minute,omitempty"`

	// SessionKey signs the UI session cookie (at least 32 bytes).
	// A random key is generated at startup when empty, which logs everyone
	// out on restart.
	SessionKey string `json:"session_key,omitempty"`

	CookieSecure bool `json:"cookie_secure,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:                BackendRemote,
		Bind:                   "127.0.0.1",
		Port:                   8080,
		MaxBodyBytes:           50 << 20,
		AIBaseURL:              "https://generativelanguage.googleapis.com",
		AIModel:                "gemini-2.5-flash",
		MaxImageWidth:          1600,
		LoginAttemptsPerMinute: 5,
		LogLevel:               "info",
	}
}

// Load loads configuration from baseDir/config.json, then applies
// baseDir/.env and VITRINE_* environment variables on top.
// Returns default config if neither exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.vitrine.
func Load(baseDir string) (*Config, error) {
	file, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	env, err := loadEnv(filepath.Join(baseDir, ".env"))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), file), env)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadEnv reads envFile (if present) into the process environment and
// builds an overlay config from VITRINE_* variables.
// Variables already set in the environment win over the file.
func loadEnv(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Backend:    os.Getenv("VITRINE_BACKEND"),
		RemoteURL:  os.Getenv("VITRINE_REMOTE_URL"),
		LocalPath:  os.Getenv("VITRINE_LOCAL_PATH"),
		APIToken:   os.Getenv("VITRINE_API_TOKEN"),
		Bind:       os.Getenv("VITRINE_BIND"),
		AIBaseURL:  os.Getenv("VITRINE_AI_BASE_URL"),
		AIModel:    os.Getenv("VITRINE_AI_MODEL"),
		SessionKey: os.Getenv("VITRINE_SESSION_KEY"),
		LogLevel:   os.Getenv("VITRINE_LOG_LEVEL"),
	}

	if v := os.Getenv("VITRINE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("VITRINE_PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("VITRINE_COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("VITRINE_COOKIE_SECURE: %w", err)
		}
		cfg.CookieSecure = secure
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.Backend = pickString(overlay.Backend, base.Backend)
	result.RemoteURL = pickString(overlay.RemoteURL, base.RemoteURL)
	result.LocalPath = pickString(overlay.LocalPath, base.LocalPath)
	result.APIToken = pickString(overlay.APIToken, base.APIToken)
	result.Bind = pickString(overlay.Bind, base.Bind)
	result.AIBaseURL = pickString(overlay.AIBaseURL, base.AIBaseURL)
	result.AIModel = pickString(overlay.AIModel, base.AIModel)
	result.SessionKey = pickString(overlay.SessionKey, base.SessionKey)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	result.Port = pickInt(overlay.Port, base.Port)
	result.AITimeoutSeconds = pickInt(overlay.AITimeoutSeconds, base.AITimeoutSeconds)
	result.MaxImageWidth = pickInt(overlay.MaxImageWidth, base.MaxImageWidth)
	result.LoginAttemptsPerMinute = pickInt(overlay.LoginAttemptsPerMinute, base.LoginAttemptsPerMinute)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.MaxBodyBytes = overlay.MaxBodyBytes
	if result.MaxBodyBytes == 0 {
		result.MaxBodyBytes = base.MaxBodyBytes
	}

	// Booleans: overlay wins if true, else base
	result.CookieSecure = base.CookieSecure || overlay.CookieSecure

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Validate checks settings that cannot be repaired by defaults.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendRemote:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendLocal, BackendRemote, c.Backend)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	if c.SessionKey != "" && len(c.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 bytes")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// RemoteBaseURL returns the REST base URL used by the remote backend.
func (c *Config) RemoteBaseURL() string {
	if c.RemoteURL != "" {
		return strings.TrimRight(c.RemoteURL, "/")
	}
	host := c.Bind
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port)) + "/api"
}

// apiTokenFile holds the generated API token under the base directory.
const apiTokenFile = "api_token"

// EnsureAPIToken fills an empty APIToken from baseDir/api_token, creating
// that file with a random token on first use. Processes sharing a base
// directory agree on the token, so the server and its remote backend
// clients need no configuration.
func (c *Config) EnsureAPIToken(baseDir string) error {
	if c.APIToken != "" {
		return nil
	}
	path := filepath.Join(baseDir, apiTokenFile)

	token, err := readToken(path)
	if err != nil {
		return err
	}
	if token == "" {
		if err := os.MkdirAll(baseDir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", baseDir, err)
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate api token: %w", err)
		}
		token = hex.EncodeToString(buf)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		switch {
		case errors.Is(err, os.ErrExist):
			// Another process won the race; use its token.
			if token, err = readToken(path); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("create %s: %w", path, err)
		default:
			_, werr := f.WriteString(token + "\n")
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				return fmt.Errorf("write %s: %w", path, werr)
			}
		}
	}

	c.APIToken = token
	return nil
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// LocalStorePath returns the path of the local store document.
func (c *Config) LocalStorePath(baseDir string) string {
	if c.LocalPath != "" {
		return c.LocalPath
	}
	return filepath.Join(baseDir, "store.json")
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
