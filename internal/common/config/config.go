// Package config provides configuration management for the node supervisor.
// It supports loading configuration from environment variables, a config
// file, and built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	NATS       NATSConfig       `mapstructure:"nats"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
	ShutdownGrace int   `mapstructure:"shutdownGrace"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// SupervisorConfig holds the node-supervision domain's own knobs.
type SupervisorConfig struct {
	// RosDistro names the ROS distribution setup script to source before
	// every launch (/opt/ros/<distro>/setup.sh).
	RosDistro string `mapstructure:"rosDistro"`

	// LaunchTimeoutSeconds bounds initial child-discovery polling during launch.
	LaunchTimeoutSeconds int `mapstructure:"launchTimeoutSeconds"`

	// MonitorIntervalSeconds is the sleep between Tree Monitor sweeps.
	MonitorIntervalSeconds int `mapstructure:"monitorIntervalSeconds"`

	// GraceTimeoutSeconds bounds the SIGINT-to-SIGKILL escalation window.
	GraceTimeoutSeconds int `mapstructure:"graceTimeoutSeconds"`

	// EventQueueCapacity is the per-node bounded event queue size.
	EventQueueCapacity int `mapstructure:"eventQueueCapacity"`

	// VerboseCapture controls whether output capture starts by default.
	VerboseCapture bool `mapstructure:"verboseCapture"`
}

// NATSConfig holds the optional lifecycle event bus configuration.
// An empty URL disables NATS publishing entirely; nothing about the
// supervisor's own behavior depends on it.
type NATSConfig struct {
	URL      string `mapstructure:"url"`
	ClientID string `mapstructure:"clientId"`
	Subject  string `mapstructure:"subject"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ShutdownGraceDuration returns the shutdown grace period as a time.Duration.
func (s *ServerConfig) ShutdownGraceDuration() time.Duration {
	return time.Duration(s.ShutdownGrace) * time.Second
}

// LaunchTimeout returns the launch child-discovery timeout as a time.Duration.
func (sc *SupervisorConfig) LaunchTimeout() time.Duration {
	return time.Duration(sc.LaunchTimeoutSeconds) * time.Second
}

// MonitorInterval returns the monitor sweep interval as a time.Duration.
func (sc *SupervisorConfig) MonitorInterval() time.Duration {
	return time.Duration(sc.MonitorIntervalSeconds) * time.Second
}

// GraceTimeout returns the terminate grace window as a time.Duration.
func (sc *SupervisorConfig) GraceTimeout() time.Duration {
	return time.Duration(sc.GraceTimeoutSeconds) * time.Second
}

// detectDefaultLogFormat returns "json" under Kubernetes or an explicit
// production environment marker, "text" otherwise.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("ROSSUP_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.shutdownGrace", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("supervisor.rosDistro", "humble")
	v.SetDefault("supervisor.launchTimeoutSeconds", 5)
	v.SetDefault("supervisor.monitorIntervalSeconds", 3)
	v.SetDefault("supervisor.graceTimeoutSeconds", 5)
	v.SetDefault("supervisor.eventQueueCapacity", 1024)
	v.SetDefault("supervisor.verboseCapture", true)

	// NATS defaults - empty URL disables the event bus entirely.
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "ros-node-supervisor")
	v.SetDefault("nats.subject", "rossup.nodes")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix ROSSUP_ and the upper-cased key with
// "." replaced by "_" (e.g. ROSSUP_SERVER_PORT, ROSSUP_SUPERVISOR_ROSDISTRO).
// Config file should be named config.yaml, in the current directory or /etc/ros-node-supervisor/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ROSSUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "ROSSUP_LOG_LEVEL")
	_ = v.BindEnv("supervisor.rosDistro", "ROS_DISTRO")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ros-node-supervisor/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that configuration values are in sane ranges.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Supervisor.RosDistro == "" {
		errs = append(errs, "supervisor.rosDistro must not be empty")
	}
	if cfg.Supervisor.LaunchTimeoutSeconds < 0 {
		errs = append(errs, "supervisor.launchTimeoutSeconds must not be negative")
	}
	if cfg.Supervisor.MonitorIntervalSeconds <= 0 {
		errs = append(errs, "supervisor.monitorIntervalSeconds must be positive")
	}
	if cfg.Supervisor.GraceTimeoutSeconds <= 0 {
		errs = append(errs, "supervisor.graceTimeoutSeconds must be positive")
	}
	if cfg.Supervisor.EventQueueCapacity <= 0 {
		errs = append(errs, "supervisor.eventQueueCapacity must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
