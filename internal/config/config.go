// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Lock screen configuration
	Lock LockConfig `mapstructure:"lock"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// LockConfig contains lock-screen settings
type LockConfig struct {
	ShaderPath string `mapstructure:"shader_path"` // Fragment shader file, or a directory to pick from at random
	IconPath   string `mapstructure:"icon_path"`   // Icon overlaid on every output
	SkipAuth   bool   `mapstructure:"skip_auth"`   // Unlock on enter without consulting the backend (testing only)
	PamService string `mapstructure:"pam_service"` // PAM service name used by the authenticator

	// PollTimeout bounds the reactor's wait for compositor data. A timeout is
	// a liveness heartbeat, not an error.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`

	// FreezeAfter stops the background animation after this much inactivity;
	// FadeBefore is the fade-out window leading up to the freeze.
	FreezeAfter time.Duration `mapstructure:"freeze_after"`
	FadeBefore  time.Duration `mapstructure:"fade_before"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Lock: LockConfig{
			ShaderPath:  "",
			IconPath:    "",
			SkipAuth:    false,
			PamService:  "shaderlock",
			PollTimeout: time.Second,
			FreezeAfter: 10 * time.Second,
			FadeBefore:  5 * time.Second,
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("shaderlock")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/shaderlock")
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "shaderlock"))
		}
		viper.AddConfigPath(".")
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("lock.shader_path", DefaultConfig.Lock.ShaderPath)
	viper.SetDefault("lock.icon_path", DefaultConfig.Lock.IconPath)
	viper.SetDefault("lock.skip_auth", DefaultConfig.Lock.SkipAuth)
	viper.SetDefault("lock.pam_service", DefaultConfig.Lock.PamService)
	viper.SetDefault("lock.poll_timeout", DefaultConfig.Lock.PollTimeout)
	viper.SetDefault("lock.freeze_after", DefaultConfig.Lock.FreezeAfter)
	viper.SetDefault("lock.fade_before", DefaultConfig.Lock.FadeBefore)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration, initializing it if necessary
func Get() *Config {
	if cfg == nil {
		if err := Init(); err != nil {
			cfg = &DefaultConfig
		}
	}
	return cfg
}

// ResolveShader returns the shader file to use. When the configured path is a
// directory, one .frag file is picked at random.
func (c *Config) ResolveShader() (string, error) {
	path := c.Lock.ShaderPath
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("shader path %q: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.frag"))
	if err != nil {
		return "", fmt.Errorf("globbing shader dir %q: %w", path, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no .frag shaders in %q", path)
	}
	return matches[rand.Intn(len(matches))], nil
}

// Validate checks settings that would otherwise fail deep inside the lock flow
func (c *Config) Validate() error {
	if c.Lock.PollTimeout <= 0 {
		return fmt.Errorf("lock.poll_timeout must be positive, got %s", c.Lock.PollTimeout)
	}
	if c.Lock.PamService == "" {
		return fmt.Errorf("lock.pam_service must not be empty")
	}
	if c.Lock.IconPath != "" {
		if _, err := os.Stat(c.Lock.IconPath); err != nil {
			return fmt.Errorf("icon path: %w", err)
		}
	}
	return nil
}
