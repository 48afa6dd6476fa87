package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  address: ":9090"
  shutdownTimeout: "5s"
pool:
  maxConnections: 50
  maxIdlePerEndpoint: 4
circuitBreaker:
  failureThreshold: 3
  recoveryTimeout: "10s"
  callTimeout: "2s"
balancer:
  strategy: random
logging:
  level: debug
  format: console
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 50, cfg.Pool.MaxConnections)
	assert.Equal(t, 4, cfg.Pool.MaxIdlePerEndpoint)
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.CircuitBreaker.RecoveryTimeout.Duration())
	assert.Equal(t, "random", cfg.Balancer.Strategy)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Omitted sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Duration())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfigFile(t, "server: [not: a: mapping"))
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfigFile(t, "balancer:\n  strategy: quantum\n"))
	assert.Error(t, err)
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("ROUTE_ADDR", ":7070")

	cfg, err := LoadFromReader(strings.NewReader("server:\n  address: \"${ROUTE_ADDR}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
}

func TestSubstituteEnvVars_Default(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("server:\n  address: \"${UNSET_ROUTE_ADDR:-:6060}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Address)
}

func TestSubstituteEnvVars_EscapedDollar(t *testing.T) {
	out := substituteEnvVars("password: $${literal}")
	assert.Equal(t, "password: ${literal}", out)
}
