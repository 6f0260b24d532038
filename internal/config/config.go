// Package config provides configuration management for the faucet bot.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLearnWeb3BaseURL is the faucet API root.
	DefaultLearnWeb3BaseURL = "https://learnweb3.io/api/faucet"
	// DefaultListenAddr is where the webhook server listens.
	DefaultListenAddr = ":8080"
	// DefaultSessionTTL keeps conversations until restart. Idle eviction is opt-in.
	DefaultSessionTTL time.Duration = 0
	// DefaultHTTPTimeout bounds each call to the faucet API.
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultLogLevel is the zerolog level name used when nothing is configured.
	DefaultLogLevel = "info"

	dataDirName      = ".faucetbot"
	settingsFileName = "settings.yaml"
	dotEnvFileName   = ".env"
)

// Setting keys. The same names are used in the settings file, in .env and in the environment.
const (
	KeyBotAddress       = "FAUCET_BOT_ADDRESS"
	KeyLearnWeb3APIKey  = "LEARN_WEB3_API_KEY"
	KeyLearnWeb3BaseURL = "LEARN_WEB3_BASE_URL"
	KeyRedisURL         = "REDIS_CONNECTION_STRING"
	KeyFrameBaseURL     = "FRAME_BASE_URL"
	KeyListenAddr       = "FAUCET_LISTEN_ADDR"
	KeySessionTTL       = "FAUCET_SESSION_TTL"
	KeyHTTPTimeout      = "FAUCET_HTTP_TIMEOUT"
	KeyLogLevel         = "FAUCET_LOG_LEVEL"
)

// Config holds all bot configuration.
type Config struct {
	BotAddress       string
	LearnWeb3APIKey  string
	LearnWeb3BaseURL string
	RedisURL         string // empty selects the in-process cache store
	FrameBaseURL     string
	ListenAddr       string
	LogLevel         string
	SessionTTL       time.Duration // 0 disables idle eviction
	HTTPTimeout      time.Duration
}

var (
	global     *Config
	globalOnce sync.Once
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LearnWeb3BaseURL: DefaultLearnWeb3BaseURL,
		ListenAddr:       DefaultListenAddr,
		LogLevel:         DefaultLogLevel,
		SessionTTL:       DefaultSessionTTL,
		HTTPTimeout:      DefaultHTTPTimeout,
	}
}

// DataDir returns the directory holding the settings file.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// SettingsPath returns the path of the YAML settings file.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// Load builds the configuration from defaults, the settings file, .env and the
// environment, in that order of increasing precedence.
// A malformed settings file is logged and ignored.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		var settings map[string]any
		if err := yaml.Unmarshal(data, &settings); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
		} else {
			cfg.apply(mapLookup(settings))
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read settings: %w", err)
	}

	// .env never overrides variables that are already set.
	if err := godotenv.Load(dotEnvFileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg.apply(os.LookupEnv)
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// Validate checks the fields every transport needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotAddress) == "" {
		return fmt.Errorf("%s cannot be empty", KeyBotAddress)
	}
	if c.LearnWeb3BaseURL == "" {
		return fmt.Errorf("%s cannot be empty", KeyLearnWeb3BaseURL)
	}
	if c.FrameBaseURL == "" {
		return fmt.Errorf("%s cannot be empty", KeyFrameBaseURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", KeyHTTPTimeout)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("%s must be >= 0", KeySessionTTL)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) apply(lookup lookupFunc) {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Str("value", v).Msg("Invalid duration, keeping previous value")
			return
		}
		*dst = d
	}

	setString(KeyBotAddress, &c.BotAddress)
	setString(KeyLearnWeb3APIKey, &c.LearnWeb3APIKey)
	setString(KeyLearnWeb3BaseURL, &c.LearnWeb3BaseURL)
	setString(KeyRedisURL, &c.RedisURL)
	setString(KeyFrameBaseURL, &c.FrameBaseURL)
	setString(KeyListenAddr, &c.ListenAddr)
	setString(KeyLogLevel, &c.LogLevel)
	setDuration(KeySessionTTL, &c.SessionTTL)
	setDuration(KeyHTTPTimeout, &c.HTTPTimeout)
}

func mapLookup(settings map[string]any) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := settings[key]
		if !ok || v == nil {
			return "", false
		}
		return fmt.Sprint(v), true
	}
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

const defaultSettings = `# Faucet bot settings. Environment variables with the same names take precedence.
# FAUCET_BOT_ADDRESS: "0x..."
# LEARN_WEB3_API_KEY: ""
# LEARN_WEB3_BASE_URL: "` + DefaultLearnWeb3BaseURL + `"
# REDIS_CONNECTION_STRING: "redis://localhost:6379/0"
# FRAME_BASE_URL: ""
# FAUCET_LISTEN_ADDR: "` + DefaultListenAddr + `"
# FAUCET_SESSION_TTL: "0" (never evict; e.g. "30m" to forget idle conversations)
# FAUCET_HTTP_TIMEOUT: "15s"
# FAUCET_LOG_LEVEL: "info"
`

// EnsureSettings writes a commented settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}
