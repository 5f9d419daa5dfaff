// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendModeLocal  = "local"
	BackendModeRemote = "remote"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// BackendConfig selects where dashboard RPCs are executed. In local mode the
// procedures run in-process against the configured database; in remote mode
// they are sent to URL.
type BackendConfig struct {
	Mode   string `yaml:"mode"`
	URL    string `yaml:"url,omitempty"`
	APIKey string `yaml:"-"` // Loaded from environment
}

type DashboardConfig struct {
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	RefreshTimeout      time.Duration `yaml:"refresh_timeout"`
	BookingAnalyticsTTL time.Duration `yaml:"booking_analytics_ttl"`
	UserAnalyticsTTL    time.Duration `yaml:"user_analytics_ttl"`
	OverviewTTL         time.Duration `yaml:"overview_ttl"`
	SearchLimit         int           `yaml:"search_limit"`
	CurrencySymbol      string        `yaml:"currency_symbol"`
	Locale              string        `yaml:"locale"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Backend   BackendConfig   `yaml:"backend"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	Admin struct {
		Username     string `yaml:"username"`
		PasswordHash string `yaml:"-"` // Loaded from environment
	} `yaml:"admin"`

	Phone struct {
		DefaultRegion string `yaml:"default_region"`
	} `yaml:"phone"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		TrustProxy        bool    `yaml:"trust_proxy"`
	} `yaml:"rate_limit"`
}

// DefaultDashboard returns the refresh and cache policy used when the config
// file leaves the dashboard section empty.
func DefaultDashboard() DashboardConfig {
	return DashboardConfig{
		RefreshInterval:     30 * time.Second,
		RefreshTimeout:      20 * time.Second,
		BookingAnalyticsTTL: 5 * time.Minute,
		UserAnalyticsTTL:    10 * time.Minute,
		OverviewTTL:         2 * time.Minute,
		SearchLimit:         50,
		CurrencySymbol:      "£",
		Locale:              "en-GB",
	}
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Admin.PasswordHash = os.Getenv("ADMIN_PASSWORD_HASH")
	cfg.Backend.APIKey = os.Getenv("BACKEND_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML into a Config and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Dashboard: DefaultDashboard()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultDashboard()
	if c.Dashboard.RefreshInterval <= 0 {
		c.Dashboard.RefreshInterval = defaults.RefreshInterval
	}
	if c.Dashboard.RefreshTimeout <= 0 {
		c.Dashboard.RefreshTimeout = defaults.RefreshTimeout
	}
	if c.Dashboard.SearchLimit <= 0 {
		c.Dashboard.SearchLimit = defaults.SearchLimit
	}
	if c.Dashboard.CurrencySymbol == "" {
		c.Dashboard.CurrencySymbol = defaults.CurrencySymbol
	}
	if c.Dashboard.Locale == "" {
		c.Dashboard.Locale = defaults.Locale
	}
	if c.Backend.Mode == "" {
		c.Backend.Mode = BackendModeLocal
	}
	if c.Phone.DefaultRegion == "" {
		c.Phone.DefaultRegion = "GB"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 40
	}
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.Environment, "development")
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}

	switch c.Backend.Mode {
	case BackendModeLocal:
		if c.Database.Driver == "" {
			return fmt.Errorf("database driver is required")
		}
		switch c.Database.Driver {
		case "sqlite":
			if c.Database.Filename == "" {
				return fmt.Errorf("database filename is required for sqlite")
			}
		default:
			return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
		}
	case BackendModeRemote:
		if c.Backend.URL == "" {
			return fmt.Errorf("backend url is required in remote mode")
		}
		if c.Backend.APIKey == "" {
			return fmt.Errorf("backend api key is required in remote mode")
		}
	default:
		return fmt.Errorf("unsupported backend mode: %s", c.Backend.Mode)
	}

	if c.Dashboard.BookingAnalyticsTTL < 0 || c.Dashboard.UserAnalyticsTTL < 0 || c.Dashboard.OverviewTTL < 0 {
		return fmt.Errorf("dashboard cache ttls must not be negative")
	}
	if !c.IsDevelopment() && c.Admin.PasswordHash == "" {
		return fmt.Errorf("admin password hash is required outside development")
	}

	return nil
}
