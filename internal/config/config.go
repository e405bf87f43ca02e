// Package config provides Viper-based configuration loading for the chat relay.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// MinDatagram is the smallest receive buffer that can hold a full frame.
const MinDatagram = 516

// MaxCapacity is the largest session id the wire protocol assigns.
const MaxCapacity = 10

// RelayConfig holds the UDP relay settings.
type RelayConfig struct {
	// Host is the bind address for the UDP socket.
	Host string `mapstructure:"host"`
	// Port is the UDP port clients send frames to. Zero binds an ephemeral port.
	Port int `mapstructure:"port"`
	// Debug traces every inbound and outbound frame.
	Debug bool `mapstructure:"debug"`
	// MaxDatagram is the receive buffer size; bytes past the frame are ignored.
	MaxDatagram int `mapstructure:"max_datagram"`
	// Capacity is the number of session ids, assigned from 1.
	Capacity int `mapstructure:"capacity"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// AdminConfig holds the gRPC health endpoint settings.
type AdminConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the health service; zero disables it.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Enabled reports whether the health endpoint should be served.
func (a AdminConfig) Enabled() bool {
	return a.GRPCPort != 0
}

// Addr returns the "host:port" gRPC address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.GRPCHost, a.GRPCPort)
}

// Config is the top-level application configuration.
type Config struct {
	Relay   RelayConfig   `mapstructure:"relay"`
	Logging LoggingConfig `mapstructure:"logging"`
	Admin   AdminConfig   `mapstructure:"admin"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAdmin(c.Admin); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	if r.Port < 0 || r.Port > 65535 {
		errs = append(errs, fmt.Sprintf("relay.port must be 0-65535, got %d", r.Port))
	}
	if r.MaxDatagram < MinDatagram {
		errs = append(errs, fmt.Sprintf("relay.max_datagram must be >= %d, got %d", MinDatagram, r.MaxDatagram))
	}
	if r.Capacity < 1 || r.Capacity > MaxCapacity {
		errs = append(errs, fmt.Sprintf("relay.capacity must be 1-%d, got %d", MaxCapacity, r.Capacity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	if !a.Enabled() {
		return nil
	}
	var errs []string
	if a.GRPCHost == "" {
		errs = append(errs, "admin.grpc_host must not be empty")
	}
	if a.GRPCPort < 0 || a.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("admin.grpc_port must be 0-65535, got %d", a.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// New returns a Viper instance with defaults and CHATRELAY_ environment
// overrides applied. When path is non-empty the file is read as well.
//
// Postcondition: Returns a configured Viper or an error if the file cannot be read.
func New(path string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix("CHATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return v, nil
}

// Load reads configuration from the given file path (which may be empty),
// applies environment variable overrides, and validates the result.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v, err := New(path)
	if err != nil {
		return Config{}, err
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay.host", "0.0.0.0")
	v.SetDefault("relay.port", 5000)
	v.SetDefault("relay.debug", false)
	v.SetDefault("relay.max_datagram", 1024)
	v.SetDefault("relay.capacity", MaxCapacity)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("admin.grpc_host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 0)
}
