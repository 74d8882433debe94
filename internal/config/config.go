// The application's root configuration.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Consent   ConsentConfig   `mapstructure:"consent"`
	Detection DetectionConfig `mapstructure:"detection"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
// This is the single source of truth for this struct.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// ServerConfig holds settings for the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// PostgresConfig holds settings for the database connection. An empty URL
// selects the in-memory rule store.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds settings for the preference store backend. An empty
// Addr selects the in-memory session store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ConsentConfig holds the consent engine tunables.
type ConsentConfig struct {
	// SessionSecret keys the session pseudo-identity and anti-forgery
	// tokens. Required.
	SessionSecret string `mapstructure:"session_secret"`
	// SessionTTL is the lifetime of a stored preference record.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// SweepInterval is the client deletion-sweep safety net.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// RecheckInterval is the gate's safety-net re-evaluation period.
	RecheckInterval time.Duration `mapstructure:"recheck_interval"`
}

// DetectionConfig holds the detection subsystem tunables.
type DetectionConfig struct {
	AutoAssign          bool          `mapstructure:"auto_assign"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	RetentionDays       int           `mapstructure:"retention_days"`
	JanitorInterval     time.Duration `mapstructure:"janitor_interval"`
}

// SetDefaults registers the default values on a viper instance. Called
// before binding flags so explicit settings always win.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "consentgate")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("consent.session_ttl", 24*time.Hour)
	v.SetDefault("consent.sweep_interval", time.Minute)
	v.SetDefault("consent.recheck_interval", time.Minute)
	v.SetDefault("detection.confidence_threshold", 0.6)
	v.SetDefault("detection.retention_days", 90)
	v.SetDefault("detection.janitor_interval", time.Hour)
}

// Validate rejects configurations the server cannot safely run with.
func (c *Config) Validate() error {
	if c.Consent.SessionSecret == "" {
		return fmt.Errorf("consent.session_secret is required")
	}
	if len(c.Consent.SessionSecret) < 16 {
		return fmt.Errorf("consent.session_secret must be at least 16 bytes")
	}
	if c.Consent.SessionTTL <= 0 {
		return fmt.Errorf("consent.session_ttl must be positive")
	}
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("detection.confidence_threshold must be within [0,1]")
	}
	if c.Detection.RetentionDays <= 0 {
		return fmt.Errorf("detection.retention_days must be positive")
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = err
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
