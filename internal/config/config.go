package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix is prepended to every environment variable the server reads
const EnvPrefix = "WHITEBOARD_"

// Config is the full server configuration
// ARCHITECTURAL DISCOVERY: Each section is owned by one layer. HTTP by the api
// server, WebSocket by the socket handler, Lobby by the registry, Journal by
// the database manager.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Lobby     *LobbyConfig     `json:"lobby"`
	Journal   *JournalConfig   `json:"journal"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	StaticDir    string        `json:"static_dir"`
}

// WebSocketConfig tunes heartbeat, outbound buffering and inbound throttling
// FUNCTIONAL DISCOVERY: A joining peer receives the whole canvas as a single
// queued batch, so BufferSize counts batches rather than frames.
type WebSocketConfig struct {
	PingInterval      time.Duration `json:"ping_interval"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	BufferSize        int           `json:"buffer_size"`
	MaxMessageSize    int64         `json:"max_message_size"`
	MessagesPerSecond float64       `json:"messages_per_second"`
	Burst             int           `json:"burst"`
}

type LobbyConfig struct {
	BroadcastUndo bool `json:"broadcast_undo"`
	BcryptCost    int  `json:"bcrypt_cost"`
}

// JournalConfig controls the optional SQLite activity journal
type JournalConfig struct {
	Enabled bool          `json:"enabled"`
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns settings suitable for a single local instance.
// The journal is off; MessagesPerSecond 0 disables inbound throttling.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:         8000,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:      30 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Second,
			BufferSize:        256,
			MaxMessageSize:    1 << 20,
			MessagesPerSecond: 0,
			Burst:             100,
		},
		Lobby: &LobbyConfig{
			BroadcastUndo: false,
			BcryptCost:    0,
		},
		Journal: &JournalConfig{
			Enabled: false,
			Path:    "./whiteboard.db",
			Timeout: 30 * time.Second,
		},
	}
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize < 0 {
		return fmt.Errorf("WebSocket max message size cannot be negative")
	}
	if c.WebSocket.MessagesPerSecond < 0 {
		return fmt.Errorf("WebSocket message rate cannot be negative")
	}
	if c.WebSocket.MessagesPerSecond > 0 && c.WebSocket.Burst <= 0 {
		return fmt.Errorf("WebSocket burst must be positive when rate limiting is enabled")
	}

	if c.Lobby == nil {
		return fmt.Errorf("lobby configuration is required")
	}
	if c.Lobby.BcryptCost != 0 && (c.Lobby.BcryptCost < 4 || c.Lobby.BcryptCost > 31) {
		return fmt.Errorf("bcrypt cost must be 0 (default) or between 4 and 31")
	}

	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}
	if c.Journal.Enabled {
		if c.Journal.Path == "" {
			return fmt.Errorf("journal path cannot be empty")
		}
		if c.Journal.Timeout <= 0 {
			return fmt.Errorf("journal timeout must be positive")
		}
	}

	return nil
}

// LoadFromEnv applies WHITEBOARD_* variables over the defaults.
// Unparseable values are ignored and the default kept.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envString("HTTP_STATIC_DIR", &config.HTTP.StaticDir)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	envInt64("WEBSOCKET_MAX_MESSAGE_SIZE", &config.WebSocket.MaxMessageSize)
	envFloat("WEBSOCKET_MESSAGES_PER_SECOND", &config.WebSocket.MessagesPerSecond)
	envInt("WEBSOCKET_BURST", &config.WebSocket.Burst)

	envBool("LOBBY_BROADCAST_UNDO", &config.Lobby.BroadcastUndo)
	envInt("LOBBY_BCRYPT_COST", &config.Lobby.BcryptCost)

	envBool("JOURNAL_ENABLED", &config.Journal.Enabled)
	envString("JOURNAL_PATH", &config.Journal.Path)
	envDuration("JOURNAL_TIMEOUT", &config.Journal.Timeout)
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile is the on-disk JSON shape. Durations are strings such as "30s".
// Pointer fields distinguish "absent" from a zero value.
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Lobby     *LobbyConfigFile     `json:"lobby"`
	Journal   *JournalConfigFile   `json:"journal"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	StaticDir    string `json:"static_dir"`
}

type WebSocketConfigFile struct {
	PingInterval      string   `json:"ping_interval"`
	ReadTimeout       string   `json:"read_timeout"`
	WriteTimeout      string   `json:"write_timeout"`
	BufferSize        int      `json:"buffer_size"`
	MaxMessageSize    *int64   `json:"max_message_size"`
	MessagesPerSecond *float64 `json:"messages_per_second"`
	Burst             int      `json:"burst"`
}

type LobbyConfigFile struct {
	BroadcastUndo *bool `json:"broadcast_undo"`
	BcryptCost    *int  `json:"bcrypt_cost"`
}

type JournalConfigFile struct {
	Enabled *bool  `json:"enabled"`
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

// LoadFromFile reads a JSON config file over the defaults and validates it
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if h := file.HTTP; h != nil {
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		if h.Host != "" {
			config.HTTP.Host = h.Host
		}
		if h.StaticDir != "" {
			config.HTTP.StaticDir = h.StaticDir
		}
		if err := parseDuration(h.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return fmt.Errorf("http.read_timeout: %w", err)
		}
		if err := parseDuration(h.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return fmt.Errorf("http.write_timeout: %w", err)
		}
	}

	if ws := file.WebSocket; ws != nil {
		if ws.BufferSize > 0 {
			config.WebSocket.BufferSize = ws.BufferSize
		}
		if ws.Burst > 0 {
			config.WebSocket.Burst = ws.Burst
		}
		if ws.MaxMessageSize != nil {
			config.WebSocket.MaxMessageSize = *ws.MaxMessageSize
		}
		if ws.MessagesPerSecond != nil {
			config.WebSocket.MessagesPerSecond = *ws.MessagesPerSecond
		}
		if err := parseDuration(ws.PingInterval, &config.WebSocket.PingInterval); err != nil {
			return fmt.Errorf("websocket.ping_interval: %w", err)
		}
		if err := parseDuration(ws.ReadTimeout, &config.WebSocket.ReadTimeout); err != nil {
			return fmt.Errorf("websocket.read_timeout: %w", err)
		}
		if err := parseDuration(ws.WriteTimeout, &config.WebSocket.WriteTimeout); err != nil {
			return fmt.Errorf("websocket.write_timeout: %w", err)
		}
	}

	if l := file.Lobby; l != nil {
		if l.BroadcastUndo != nil {
			config.Lobby.BroadcastUndo = *l.BroadcastUndo
		}
		if l.BcryptCost != nil {
			config.Lobby.BcryptCost = *l.BcryptCost
		}
	}

	if j := file.Journal; j != nil {
		if j.Enabled != nil {
			config.Journal.Enabled = *j.Enabled
		}
		if j.Path != "" {
			config.Journal.Path = j.Path
		}
		if err := parseDuration(j.Timeout, &config.Journal.Timeout); err != nil {
			return fmt.Errorf("journal.timeout: %w", err)
		}
	}

	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence layers file over environment over defaults.
// An unreadable or invalid file is reported and the env/default layers are kept.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := LoadFromEnv()

	if filepath != "" {
		layered := LoadFromEnv()
		if err := applyFile(layered, filepath); err != nil {
			return config, err
		}
		if err := layered.Validate(); err != nil {
			return config, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
		}
		config = layered
	}

	return config, nil
}
