package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	API         API         `yaml:"api"`
	Defaults    Defaults    `yaml:"defaults"`
	Coordinates BoundingBox `yaml:"coordinates"`
	Store       Store       `yaml:"store"`
	Publish     Publish     `yaml:"publish"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
}

// API configures the Open311 endpoint and its pagination limits.
type API struct {
	BaseURL          string `yaml:"base_url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	PageSize         int    `yaml:"page_size"`
	MaxPages         int    `yaml:"max_pages"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	RateLimitDelayMS int    `yaml:"rate_limit_delay_ms"`
}

// Defaults holds the sync parameters used when no flags are given.
type Defaults struct {
	DaysBack int    `yaml:"days_back"`
	Status   string `yaml:"status"`
}

// BoundingBox is the advisory coordinate validity range for the city.
// Coordinates outside it are logged but not rejected.
type BoundingBox struct {
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`
}

// Contains reports whether (x, y) falls inside the bounding box.
func (b BoundingBox) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

type Store struct {
	Path string `yaml:"path"`
}

// Publish configures the hosted feature-service target.
type Publish struct {
	Enabled      bool   `yaml:"enabled"`
	PortalURL    string `yaml:"portal_url"`
	TokenEnv     string `yaml:"token_env"`
	ServiceName  string `yaml:"service_name"`
	Folder       string `yaml:"folder"`
	UpdateMethod string `yaml:"update_method"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for stl311.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "stl311")
}

// DataDir returns the XDG data directory for stl311.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "stl311")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/stl311/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'stl311 init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		API: API{
			BaseURL:          "https://www.stlouis-mo.gov/powernap/stlouis/api.cfm",
			APIKeyEnv:        "STL311_API_KEY",
			PageSize:         1000,
			MaxPages:         10,
			TimeoutSeconds:   30,
			RateLimitDelayMS: 1000,
		},
		Defaults: Defaults{
			DaysBack: 1,
			Status:   "open",
		},
		Coordinates: BoundingBox{
			MinX: -90.4,
			MaxX: -90.1,
			MinY: 38.5,
			MaxY: 38.8,
		},
		Publish: Publish{
			PortalURL:    "https://www.arcgis.com",
			TokenEnv:     "STL311_PORTAL_TOKEN",
			ServiceName:  "StLouis311_ServiceRequests",
			UpdateMethod: "replace",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// StorePath returns the effective store path from config or the XDG default.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(DataDir(), "stl311.db")
}

// APIKey reads the Open311 API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.API.APIKeyEnv)
}

// PortalToken reads the publish portal token from the configured environment variable.
func (c *Config) PortalToken() string {
	return os.Getenv(c.Publish.TokenEnv)
}

// RateLimitDelay returns the delay to sleep between API pages.
func (c *Config) RateLimitDelay() time.Duration {
	return time.Duration(c.API.RateLimitDelayMS) * time.Millisecond
}

// RequestTimeout returns the HTTP timeout for API requests.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
