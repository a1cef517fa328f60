package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API           APIConfig          `toml:"api"`
	Realtime      RealtimeConfig     `toml:"realtime"`
	Routes        RoutesConfig       `toml:"routes"`
	Notifications NotificationConfig `toml:"notifications"`
	Database      DatabaseConfig     `toml:"database"`
	Log           LogConfig          `toml:"log"`
}

// APIConfig describes the backend the request pipeline talks to.
type APIConfig struct {
	BaseURL           string   `toml:"base_url"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	SignInPath        string   `toml:"sign_in_path"`
	RefreshPath       string   `toml:"refresh_path"`
	RealtimeTokenPath string   `toml:"realtime_token_path"`
	RefreshExempt     []string `toml:"refresh_exempt"`
	SearchPath        string   `toml:"search_path"`
	ArtistPath        string   `toml:"artist_path"`
	AlbumPath         string   `toml:"album_path"`
	SongPath          string   `toml:"song_path"`
	PlaylistPath      string   `toml:"playlist_path"`
}

// Timeout returns the per-request timeout of the base executor's transport.
func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RealtimeConfig contains the Centrifugo connection settings.
type RealtimeConfig struct {
	Endpoint      string `toml:"endpoint"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// RoutesConfig names the navigation targets used by the interceptor and session gating.
type RoutesConfig struct {
	Home         string `toml:"home"`
	SignIn       string `toml:"sign_in"`
	Unauthorized string `toml:"unauthorized"`
	NotFound     string `toml:"not_found"`
}

// NotificationConfig bounds how many error toasts are shown.
type NotificationConfig struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports configuration that would leave the pipeline unusable.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	}
	if c.API.RefreshPath == "" {
		return fmt.Errorf("%w: api.refresh_path is required", ErrInvalidConfig)
	}
	if c.Notifications.Burst < 0 || c.Notifications.PerSecond < 0 {
		return fmt.Errorf("%w: notification limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REPERTOIRE_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("REPERTOIRE_REALTIME_URL"); v != "" {
		c.Realtime.Endpoint = v
	}
	if v := os.Getenv("REPERTOIRE_DB"); v != "" {
		c.Database.Path = v
	}
}
