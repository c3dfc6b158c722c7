// Package config provides configuration management for HearMe.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRelayPort is the default HTTP port for the relay service.
	DefaultRelayPort = 5000

	// DefaultLLMModel is the model used for generated interview replies.
	DefaultLLMModel = "meta-llama/Llama-3.1-8B-Instruct"

	// DefaultAnalysisWindow is how many recent mood entries the analyzer looks at.
	DefaultAnalysisWindow = 30

	// DefaultLogLevel is the zerolog level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultMaintenanceIntervalHours is how often conversation log retention runs.
	DefaultMaintenanceIntervalHours = 24
)

// DefaultBackendURLs are the relay candidates, in priority order.
var DefaultBackendURLs = []string{
	"http://localhost:5000",
	"http://127.0.0.1:5000",
	"http://10.0.2.2:5000",
}

// Config holds the application configuration.
type Config struct {
	// Backend resolution
	BackendURLs    []string `json:"backend_urls"`
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
	LogTimeout     time.Duration

	// Relay settings
	RelayPort      int    `json:"relay_port"`
	DatabaseDSN    string `json:"database_dsn"`
	RedisAddr      string `json:"redis_addr"`
	ConversationDB string `json:"conversation_db"`

	// Conversation log retention; zero days keeps everything
	ConversationRetentionDays int `json:"conversation_retention_days"`
	MaintenanceIntervalHours  int `json:"maintenance_interval_hours"`

	// Generated replies
	LLMBaseURL string `json:"llm_base_url"`
	LLMToken   string `json:"-"`
	LLMModel   string `json:"llm_model"`

	// Mood analysis
	AnalysisWindow int `json:"analysis_window"`

	// Logging
	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.hearme).
func DataDir() string {
	if dir := os.Getenv("HEARME_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hearme")
}

// ConversationDBPath returns the default conversation log database path.
func ConversationDBPath() string {
	return filepath.Join(DataDir(), "conversations.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaultSettings := `{
  "HEARME_BACKEND_URLS": "http://localhost:5000,http://127.0.0.1:5000,http://10.0.2.2:5000",
  "HEARME_PROBE_TIMEOUT_MS": 2000,
  "HEARME_REQUEST_TIMEOUT_MS": 10000,
  "HEARME_LOG_TIMEOUT_MS": 5000,
  "HEARME_RELAY_PORT": 5000,
  "HEARME_ANALYSIS_WINDOW": 30
}
`
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns a Config with default values.
func Default() *Config {
	urls := make([]string, len(DefaultBackendURLs))
	copy(urls, DefaultBackendURLs)
	return &Config{
		BackendURLs:    urls,
		ProbeTimeout:   2 * time.Second,
		RequestTimeout: 10 * time.Second,
		LogTimeout:     5 * time.Second,
		RelayPort:      DefaultRelayPort,
		ConversationDB: ConversationDBPath(),
		LLMModel:       DefaultLLMModel,
		AnalysisWindow: DefaultAnalysisWindow,
		LogLevel:       DefaultLogLevel,

		MaintenanceIntervalHours: DefaultMaintenanceIntervalHours,
	}
}

// Load loads configuration from the settings file, merging with defaults.
// Environment variables override file values.
func Load() (*Config, error) {
	return LoadFrom(SettingsPath())
}

// LoadFrom loads configuration from the given settings file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var settings map[string]interface{}
		if jsonErr := json.Unmarshal(data, &settings); jsonErr == nil {
			applySettings(cfg, settings)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applySettings(cfg *Config, settings map[string]interface{}) {
	switch v := settings["HEARME_BACKEND_URLS"].(type) {
	case string:
		if urls := splitTrim(v); len(urls) > 0 {
			cfg.BackendURLs = urls
		}
	case []interface{}:
		urls := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				urls = append(urls, strings.TrimSpace(s))
			}
		}
		if len(urls) > 0 {
			cfg.BackendURLs = urls
		}
	}
	if v, ok := settings["HEARME_PROBE_TIMEOUT_MS"].(float64); ok && v > 0 {
		cfg.ProbeTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := settings["HEARME_REQUEST_TIMEOUT_MS"].(float64); ok && v > 0 {
		cfg.RequestTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := settings["HEARME_LOG_TIMEOUT_MS"].(float64); ok && v > 0 {
		cfg.LogTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := settings["HEARME_RELAY_PORT"].(float64); ok && v > 0 {
		cfg.RelayPort = int(v)
	}
	if v, ok := settings["HEARME_DATABASE_DSN"].(string); ok {
		cfg.DatabaseDSN = v
	}
	if v, ok := settings["HEARME_REDIS_ADDR"].(string); ok {
		cfg.RedisAddr = v
	}
	if v, ok := settings["HEARME_CONVERSATION_DB"].(string); ok && v != "" {
		cfg.ConversationDB = v
	}
	if v, ok := settings["HEARME_CONVERSATION_RETENTION_DAYS"].(float64); ok && v >= 0 {
		cfg.ConversationRetentionDays = int(v)
	}
	if v, ok := settings["HEARME_MAINTENANCE_INTERVAL_HOURS"].(float64); ok && v > 0 {
		cfg.MaintenanceIntervalHours = int(v)
	}
	if v, ok := settings["HEARME_LLM_BASE_URL"].(string); ok {
		cfg.LLMBaseURL = v
	}
	if v, ok := settings["HEARME_LLM_TOKEN"].(string); ok {
		cfg.LLMToken = v
	}
	if v, ok := settings["HEARME_LLM_MODEL"].(string); ok && v != "" {
		cfg.LLMModel = v
	}
	if v, ok := settings["HEARME_ANALYSIS_WINDOW"].(float64); ok && v > 0 {
		cfg.AnalysisWindow = int(v)
	}
	if v, ok := settings["HEARME_LOG_FILE"].(string); ok {
		cfg.LogFile = v
	}
	if v, ok := settings["HEARME_LOG_LEVEL"].(string); ok && v != "" {
		cfg.LogLevel = v
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HEARME_BACKEND_URLS"); v != "" {
		if urls := splitTrim(v); len(urls) > 0 {
			cfg.BackendURLs = urls
		}
	}
	if d, ok := envMillis("HEARME_PROBE_TIMEOUT_MS"); ok {
		cfg.ProbeTimeout = d
	}
	if d, ok := envMillis("HEARME_REQUEST_TIMEOUT_MS"); ok {
		cfg.RequestTimeout = d
	}
	if d, ok := envMillis("HEARME_LOG_TIMEOUT_MS"); ok {
		cfg.LogTimeout = d
	}
	if n, ok := envInt("HEARME_RELAY_PORT"); ok {
		cfg.RelayPort = n
	}
	if v := os.Getenv("HEARME_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("HEARME_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("HEARME_CONVERSATION_DB"); v != "" {
		cfg.ConversationDB = v
	}
	if n, ok := envInt("HEARME_CONVERSATION_RETENTION_DAYS"); ok {
		cfg.ConversationRetentionDays = n
	}
	if n, ok := envInt("HEARME_MAINTENANCE_INTERVAL_HOURS"); ok {
		cfg.MaintenanceIntervalHours = n
	}
	if v := os.Getenv("HEARME_LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("HEARME_LLM_TOKEN"); v != "" {
		cfg.LLMToken = v
	}
	if v := os.Getenv("HEARME_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if n, ok := envInt("HEARME_ANALYSIS_WINDOW"); ok {
		cfg.AnalysisWindow = n
	}
	if v := os.Getenv("HEARME_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("HEARME_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// envInt reads a positive integer; invalid values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func envMillis(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

// splitTrim splits a comma-separated string and trims whitespace.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// Reload re-reads the settings file and replaces the global configuration.
// On error the previous configuration is kept.
func Reload() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	configOnce.Do(func() {})
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetRelayPort returns the relay port from environment or config.
func GetRelayPort() int {
	if n, ok := envInt("HEARME_RELAY_PORT"); ok {
		return n
	}
	return Get().RelayPort
}
