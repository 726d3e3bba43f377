package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Archive   ArchiveConfig  `mapstructure:"archive"`
	Loan      LoanConfig     `mapstructure:"loan"`
	Downloads DownloadConfig `mapstructure:"downloads"`
	Network   NetworkConfig  `mapstructure:"network"`
	PDF       PDFConfig      `mapstructure:"pdf"`
	Log       LogConfig      `mapstructure:"log"`
}

// ArchiveConfig holds lending service settings
type ArchiveConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Email   string `mapstructure:"email"`
}

// LoanConfig holds loan renewal settings
type LoanConfig struct {
	RenewInterval time.Duration `mapstructure:"renew_interval"`
	RenewTimeout  time.Duration `mapstructure:"renew_timeout"`
}

// DownloadConfig holds page download settings
type DownloadConfig struct {
	Path          string        `mapstructure:"path"`
	Scale         int           `mapstructure:"scale"` // 0 is full resolution
	Delay         time.Duration `mapstructure:"delay"` // pause between pages
	Notifications bool          `mapstructure:"notifications"`
}

// NetworkConfig holds network settings
type NetworkConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// PDFConfig holds stitching settings
type PDFConfig struct {
	Enabled bool `mapstructure:"enabled"` // stitch automatically after a complete rip
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var cfg *Config

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "archivedl")
}

// GetDBPath returns the database file path
func GetDBPath() string {
	return filepath.Join(GetConfigDir(), "archivedl.db")
}

// GetConfigPath returns the config file path
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Init initializes the configuration
func Init(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(GetConfigDir())
	}

	// Environment variable overrides
	viper.SetEnvPrefix("ARCHIVEDL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	cfg = nil
	return nil
}

func setDefaults() {
	viper.SetDefault("archive.base_url", "https://archive.org")
	viper.SetDefault("archive.email", "")
	viper.SetDefault("loan.renew_interval", 120*time.Second)
	viper.SetDefault("loan.renew_timeout", 30*time.Second)
	viper.SetDefault("downloads.path", "~/Downloads/archive")
	viper.SetDefault("downloads.scale", 0)
	viper.SetDefault("downloads.delay", time.Second)
	viper.SetDefault("downloads.notifications", false)
	viper.SetDefault("network.timeout", 30*time.Second)
	viper.SetDefault("network.retry_attempts", 3)
	viper.SetDefault("network.retry_base_delay", 2*time.Second)
	viper.SetDefault("network.retry_max_delay", 30*time.Second)
	viper.SetDefault("network.retry_multiplier", 2.0)
	viper.SetDefault("network.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	viper.SetDefault("pdf.enabled", false)
	viper.SetDefault("log.level", "info")
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		cfg = &Config{}
		viper.Unmarshal(cfg)
		cfg.Downloads.Path = ExpandPath(cfg.Downloads.Path)
	}
	return cfg
}

// Set sets a configuration value
func Set(key, value string) error {
	viper.Set(key, value)

	// Ensure config directory exists
	configDir := GetConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// Reset cached config
	cfg = nil

	return viper.WriteConfigAs(GetConfigPath())
}

// GetValue retrieves a configuration value
func GetValue(key string) interface{} {
	return viper.Get(key)
}

// Password returns the account password from the environment, if set.
// It is never read from or written to the config file.
func Password() string {
	return os.Getenv("ARCHIVEDL_PASSWORD")
}

// ExpandPath replaces a leading ~/ with the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
