package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the xdial server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir  string
	HTTPPort int

	// PublicURL is the externally reachable base URL the telephony provider
	// uses for callbacks (e.g. "https://xdial.example.com"). When empty, the
	// local ngrok agent API is queried at startup for a tunnel URL.
	PublicURL string
	NgrokAPI  string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	OpenAIKey    string
	OpenAIModel  string // chat model for classification and rephrasing
	WhisperModel string // audio transcription model

	// PostgresURL selects the PostgreSQL session backend when set.
	PostgresURL string

	// FirebaseCredentials and FirebaseDBURL select the Firebase Realtime
	// Database session backend when both are set.
	FirebaseCredentials string
	FirebaseDBURL       string

	AdminUser     string
	AdminPassword string
	JWTSecret     string // hex-encoded 32-byte secret for operator JWT signing

	GatherTimeout int // seconds Twilio waits for speech/digits per gather

	// RecordingMaxDays is how long downloaded call recordings are kept on
	// disk. 0 disables retention cleanup.
	RecordingMaxDays int

	LogLevel  string
	LogFormat string // "text" or "json"
}

// defaults
const (
	defaultDataDir       = "./data"
	defaultHTTPPort      = 8080
	defaultNgrokAPI      = "http://127.0.0.1:4040/api/tunnels"
	defaultOpenAIModel   = "gpt-4o"
	defaultWhisperModel  = "whisper-1"
	defaultAdminUser     = "admin"
	defaultGatherTimeout = 90
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// envPrefix is the prefix for all xdial environment variables.
const envPrefix = "XDIAL_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("xdial", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database, recordings, and tree snapshots")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "externally reachable base URL for telephony callbacks")
	fs.StringVar(&cfg.NgrokAPI, "ngrok-api", defaultNgrokAPI, "local ngrok agent API used to discover the public URL when public-url is empty")
	fs.StringVar(&cfg.TwilioAccountSID, "twilio-account-sid", "", "Twilio account SID")
	fs.StringVar(&cfg.TwilioAuthToken, "twilio-auth-token", "", "Twilio auth token")
	fs.StringVar(&cfg.TwilioFromNumber, "twilio-from-number", "", "Twilio caller ID number for outbound call legs")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "OpenAI API key")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", defaultOpenAIModel, "chat model used for IVR classification and query rephrasing")
	fs.StringVar(&cfg.WhisperModel, "whisper-model", defaultWhisperModel, "audio model used for recording transcription")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", "", "PostgreSQL DSN for the session store (SQLite is used when empty)")
	fs.StringVar(&cfg.FirebaseCredentials, "firebase-credentials", "", "path to a Firebase service-account JSON file")
	fs.StringVar(&cfg.FirebaseDBURL, "firebase-db-url", "", "Firebase Realtime Database URL for the session store")
	fs.StringVar(&cfg.AdminUser, "admin-user", defaultAdminUser, "operator API username")
	fs.StringVar(&cfg.AdminPassword, "admin-password", "", "operator API password (login disabled when empty)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for operator JWT signing (auto-generated if empty)")
	fs.IntVar(&cfg.GatherTimeout, "gather-timeout", defaultGatherTimeout, "seconds the telephony provider waits for input per gather")
	fs.IntVar(&cfg.RecordingMaxDays, "recording-max-days", 0, "days to keep downloaded call recordings (0 disables cleanup)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command
	// line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name. The Twilio and OpenAI variables use
	// the names their vendors document rather than the XDIAL_ prefix.
	envMap := map[string]string{
		"data-dir":             envPrefix + "DATA_DIR",
		"http-port":            envPrefix + "HTTP_PORT",
		"public-url":           envPrefix + "PUBLIC_URL",
		"ngrok-api":            envPrefix + "NGROK_API",
		"twilio-account-sid":   "TWILIO_ACCOUNT_SID",
		"twilio-auth-token":    "TWILIO_AUTH_TOKEN",
		"twilio-from-number":   "TWILIO_FROM_NUMBER",
		"openai-key":           "OPENAI_API_KEY",
		"openai-model":         envPrefix + "OPENAI_MODEL",
		"whisper-model":        envPrefix + "WHISPER_MODEL",
		"postgres-url":         envPrefix + "POSTGRES_URL",
		"firebase-credentials": envPrefix + "FIREBASE_CREDENTIALS",
		"firebase-db-url":      envPrefix + "FIREBASE_DB_URL",
		"admin-user":           envPrefix + "ADMIN_USER",
		"admin-password":       envPrefix + "ADMIN_PASSWORD",
		"jwt-secret":           envPrefix + "JWT_SECRET",
		"gather-timeout":       envPrefix + "GATHER_TIMEOUT",
		"recording-max-days":   envPrefix + "RECORDING_MAX_DAYS",
		"log-level":            envPrefix + "LOG_LEVEL",
		"log-format":           envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "public-url":
			cfg.PublicURL = val
		case "ngrok-api":
			cfg.NgrokAPI = val
		case "twilio-account-sid":
			cfg.TwilioAccountSID = val
		case "twilio-auth-token":
			cfg.TwilioAuthToken = val
		case "twilio-from-number":
			cfg.TwilioFromNumber = val
		case "openai-key":
			cfg.OpenAIKey = val
		case "openai-model":
			cfg.OpenAIModel = val
		case "whisper-model":
			cfg.WhisperModel = val
		case "postgres-url":
			cfg.PostgresURL = val
		case "firebase-credentials":
			cfg.FirebaseCredentials = val
		case "firebase-db-url":
			cfg.FirebaseDBURL = val
		case "admin-user":
			cfg.AdminUser = val
		case "admin-password":
			cfg.AdminPassword = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "gather-timeout":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.GatherTimeout = v
			}
		case "recording-max-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RecordingMaxDays = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public-url must be an absolute URL, got %q", c.PublicURL)
		}
		c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	}
	if c.GatherTimeout < 1 || c.GatherTimeout > 600 {
		return fmt.Errorf("gather-timeout must be between 1 and 600 seconds, got %d", c.GatherTimeout)
	}
	if c.RecordingMaxDays < 0 {
		return fmt.Errorf("recording-max-days must not be negative, got %d", c.RecordingMaxDays)
	}

	// Firebase credentials and DB URL must both be set or both be empty.
	if (c.FirebaseCredentials == "") != (c.FirebaseDBURL == "") {
		return fmt.Errorf("firebase-credentials and firebase-db-url must both be provided or both be omitted")
	}
	if c.PostgresURL != "" && c.FirebaseDBURL != "" {
		return fmt.Errorf("postgres-url and firebase-db-url are mutually exclusive session backends")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
