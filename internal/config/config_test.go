package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const basicConfig = `
[Gateway]
  URL = "https://gateway.example.com"
  APIKey = "secret"
  Delivery = "sse"
  PollInterval = 250

[Routing]
  ProgramID = "bounty"
  ClusterID = "cluster-1"

[Session]
  KeyRetries = 5
  KeyRetryDelay = 100
  Timeout = 30000

[Logging]
  Level = "DEBUG"

[Journal]
  Path = "/var/lib/mxe/sessions.db"

[Metrics]
  Address = "127.0.0.1:9464"
`

func TestLoad(t *testing.T) {
	require := require.New(t)
	t.Setenv(EnvGatewayURL, "")
	t.Setenv(EnvAPIKey, "")

	cfg, err := Load([]byte(basicConfig))
	require.NoError(err)
	require.Equal("https://gateway.example.com", cfg.Gateway.URL)
	require.Equal("secret", cfg.Gateway.APIKey)
	require.Equal("sse", cfg.Gateway.Delivery)
	require.Equal("bounty", cfg.Routing.ProgramID)
	require.Equal(5, cfg.Session.KeyRetries)
	require.Equal(100*time.Millisecond, cfg.Session.KeyRetryDelayDuration())
	require.Equal(30*time.Second, cfg.Session.TimeoutDuration())
	require.Equal("compute_bounty", cfg.Session.Circuit)
	require.Equal(2, cfg.Session.InputArity)
	require.Equal(1, cfg.Session.OutputArity)
	require.Equal("DEBUG", cfg.Logging.Level)
	require.Equal("/var/lib/mxe/sessions.db", cfg.Journal.Path)
	require.Equal("127.0.0.1:9464", cfg.Metrics.Address)
	require.Equal("127.0.0.1:8080", cfg.Simulator.Address)
}

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)
	t.Setenv(EnvGatewayURL, "")
	t.Setenv(EnvAPIKey, "")

	cfg, err := Load(nil)
	require.NoError(err)
	require.Equal("auto", cfg.Gateway.Delivery)
	require.Empty(cfg.Gateway.URL)
	require.Equal(10, cfg.Session.KeyRetries)
	require.Equal(500*time.Millisecond, cfg.Session.KeyRetryDelayDuration())
	require.Equal(2*time.Minute, cfg.Session.TimeoutDuration())
	require.Equal("NOTICE", cfg.Logging.Level)
	require.Empty(cfg.Journal.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	require := require.New(t)
	t.Setenv(EnvGatewayURL, "http://127.0.0.1:9000")
	t.Setenv(EnvAPIKey, "from-env")

	cfg, err := Load([]byte(basicConfig))
	require.NoError(err)
	require.Equal("http://127.0.0.1:9000", cfg.Gateway.URL)
	require.Equal("from-env", cfg.Gateway.APIKey)
}

func TestLoadRejects(t *testing.T) {
	t.Setenv(EnvGatewayURL, "")
	t.Setenv(EnvAPIKey, "")

	tests := []struct {
		name string
		body string
	}{
		{"undecoded key", "[Gateway]\nURL = \"http://gw\"\nColour = \"blue\"\n"},
		{"bad url", "[Gateway]\nURL = \"gateway\"\n"},
		{"bad delivery", "[Gateway]\nDelivery = \"carrier\"\n"},
		{"negative retries", "[Session]\nKeyRetries = -1\n"},
		{"bad arity", "[Session]\nInputArity = 2\nOutputArity = -1\n"},
		{"bad level", "[Logging]\nLevel = \"LOUD\"\n"},
		{"syntax", "[Gateway\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvGatewayURL, "")
	t.Setenv(EnvAPIKey, "")

	path := filepath.Join(t.TempDir(), "mxe.toml")
	require.NoError(t, os.WriteFile(path, []byte(basicConfig), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "cluster-1", cfg.Routing.ClusterID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
