package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pg-bridge/pgbridge/pkg/config"
	"github.com/stretchr/testify/assert"
)

func reset() {
	*config.BridgeConfig() = config.Defaults()
}

func TestDefaults(t *testing.T) {
	assert := assert.New(t)
	reset()

	cfg := config.BridgeConfig()
	assert.Equal("127.0.0.1", cfg.Host)
	assert.Equal(5432, cfg.Port)
	assert.Equal(100, cfg.MaxConnections)
	assert.Equal(8080, cfg.HealthPort)
	assert.True(cfg.EnableHealth)
	assert.Equal("info", cfg.LogLevel)
	assert.Contains(cfg.ServerVersion, "PostgreSQL")
}

func TestLoadFile(t *testing.T) {
	assert := assert.New(t)
	reset()

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	assert.NoError(os.WriteFile(path, []byte(`
host: 0.0.0.0
port: 6432
resource_arn: arn:aws:rds:us-east-1:1:cluster:c
secret_arn: arn:aws:secretsmanager:us-east-1:1:secret:s
database: appdb
max_connections: 10
`), 0o644))

	assert.NoError(config.LoadBridgeCfg(path))
	cfg := config.BridgeConfig()
	assert.Equal("0.0.0.0", cfg.Host)
	assert.Equal(6432, cfg.Port)
	assert.Equal("appdb", cfg.Database)
	assert.Equal(10, cfg.MaxConnections)
	// Untouched fields keep their defaults.
	assert.Equal(8080, cfg.HealthPort)
	assert.NoError(config.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	reset()
	assert.Error(t, config.LoadBridgeCfg("/does/not/exist.yaml"))
}

func TestEnvOverrides(t *testing.T) {
	assert := assert.New(t)
	reset()

	t.Setenv("PGBRIDGE_RESOURCE_ARN", "arn:r")
	t.Setenv("PGBRIDGE_SECRET_ARN", "arn:s")
	t.Setenv("PGBRIDGE_DATABASE", "envdb")
	t.Setenv("PGBRIDGE_PORT", "7000")
	t.Setenv("AWS_REGION", "eu-west-1")

	config.LoadEnv()
	cfg := config.BridgeConfig()
	assert.Equal("arn:r", cfg.ResourceArn)
	assert.Equal("envdb", cfg.Database)
	assert.Equal(7000, cfg.Port)
	assert.Equal("eu-west-1", cfg.Region)
	assert.NoError(config.Validate())
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)
	reset()

	assert.ErrorContains(config.Validate(), "resource_arn")

	cfg := config.BridgeConfig()
	cfg.ResourceArn = "arn:r"
	assert.ErrorContains(config.Validate(), "secret_arn")
	cfg.SecretArn = "arn:s"
	assert.ErrorContains(config.Validate(), "database")
	cfg.Database = "appdb"
	assert.NoError(config.Validate())

	cfg.Port = 0
	assert.ErrorContains(config.Validate(), "port")
	cfg.Port = 5432
	cfg.MaxConnections = 0
	assert.ErrorContains(config.Validate(), "max_connections")
}

func TestPrettyMasksSecret(t *testing.T) {
	assert := assert.New(t)
	reset()

	cfg := config.BridgeConfig()
	cfg.SecretAccessKey = "supersecret"
	out := config.Pretty()
	assert.NotContains(out, "supersecret")
	assert.Contains(out, "***")
}
