package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Relay: RelayConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			MaxDatagram: 1024,
			Capacity:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admin: AdminConfig{
			GRPCHost: "127.0.0.1",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestRelayAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:5000", cfg.Relay.Addr())
}

func TestAdminEnabled(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.Admin.Enabled())
	cfg.Admin.GRPCPort = 50051
	assert.True(t, cfg.Admin.Enabled())
	assert.Equal(t, "127.0.0.1:50051", cfg.Admin.Addr())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Relay.Port)
	assert.False(t, cfg.Relay.Debug)
	assert.Equal(t, 1024, cfg.Relay.MaxDatagram)
	assert.Equal(t, 10, cfg.Relay.Capacity)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Admin.Enabled())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	err := os.WriteFile(path, []byte(`
relay:
  host: 127.0.0.1
  port: 6001
  debug: true
  max_datagram: 2048
logging:
  level: debug
  format: console
admin:
  grpc_port: 50052
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Relay.Host)
	assert.Equal(t, 6001, cfg.Relay.Port)
	assert.True(t, cfg.Relay.Debug)
	assert.Equal(t, 2048, cfg.Relay.MaxDatagram)
	assert.Equal(t, 10, cfg.Relay.Capacity)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 50052, cfg.Admin.GRPCPort)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHATRELAY_RELAY_PORT", "7007")
	t.Setenv("CHATRELAY_RELAY_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7007, cfg.Relay.Port)
	assert.True(t, cfg.Relay.Debug)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relay:
  port: 70000
  max_datagram: 100
`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.port")
	assert.Contains(t, err.Error(), "relay.max_datagram")
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateCapacity(t *testing.T) {
	for _, c := range []int{0, 11, -1} {
		cfg := validConfig()
		cfg.Relay.Capacity = c
		assert.Error(t, cfg.Validate(), "capacity %d", c)
	}
}

func TestValidateAdminHost(t *testing.T) {
	cfg := validConfig()
	cfg.Admin.GRPCPort = 50051
	cfg.Admin.GRPCHost = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.Port = -1
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.port")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestPropertyRelayPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(-100000, 100000).Draw(t, "port")
		cfg := validConfig()
		cfg.Relay.Port = port
		err := cfg.Validate()
		if port >= 0 && port <= 65535 {
			if err != nil {
				t.Fatalf("port %d should be valid: %v", port, err)
			}
		} else if err == nil {
			t.Fatalf("port %d should be invalid", port)
		}
	})
}
