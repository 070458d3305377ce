package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// BridgeCfg is the complete gateway configuration. Every field can be
// set from the YAML file; the connection coordinates can also come
// from the environment so deployments work without a file at all.
type BridgeCfg struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	ResourceArn     string `json:"resource_arn" yaml:"resource_arn"`
	SecretArn       string `json:"secret_arn" yaml:"secret_arn"`
	Database        string `json:"database" yaml:"database"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`

	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
	ServerVersion  string `json:"server_version" yaml:"server_version"`

	HealthPort   int    `json:"health_port" yaml:"health_port"`
	EnableHealth bool   `json:"enable_health" yaml:"enable_health"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	PrettyLog    bool   `json:"pretty_log" yaml:"pretty_log"`
}

var cfgBridge = Defaults()

// Defaults returns the configuration used when nothing overrides it.
func Defaults() BridgeCfg {
	return BridgeCfg{
		Host:           "127.0.0.1",
		Port:           5432,
		MaxConnections: 100,
		ServerVersion:  "PostgreSQL 14.9 on x86_64-pc-linux-gnu, compiled by gcc, 64-bit",
		HealthPort:     8080,
		EnableHealth:   true,
		LogLevel:       "info",
	}
}

// LoadBridgeCfg reads the YAML file at cfgPath over the defaults.
func LoadBridgeCfg(cfgPath string) error {
	file, err := os.Open(cfgPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfgBridge); err != nil {
		return fmt.Errorf("decode config %s: %w", cfgPath, err)
	}
	return nil
}

// envOverrides maps environment variables onto string fields.
var envOverrides = []struct {
	env string
	dst func(c *BridgeCfg) *string
}{
	{"PGBRIDGE_RESOURCE_ARN", func(c *BridgeCfg) *string { return &c.ResourceArn }},
	{"PGBRIDGE_SECRET_ARN", func(c *BridgeCfg) *string { return &c.SecretArn }},
	{"PGBRIDGE_DATABASE", func(c *BridgeCfg) *string { return &c.Database }},
	{"PGBRIDGE_HOST", func(c *BridgeCfg) *string { return &c.Host }},
	{"PGBRIDGE_LOG_LEVEL", func(c *BridgeCfg) *string { return &c.LogLevel }},
	{"AWS_REGION", func(c *BridgeCfg) *string { return &c.Region }},
	{"AWS_ACCESS_KEY_ID", func(c *BridgeCfg) *string { return &c.AccessKeyID }},
	{"AWS_SECRET_ACCESS_KEY", func(c *BridgeCfg) *string { return &c.SecretAccessKey }},
}

// LoadEnv applies environment overrides on top of whatever the file
// provided. Unset variables leave fields alone.
func LoadEnv() {
	for _, ov := range envOverrides {
		if v, ok := os.LookupEnv(ov.env); ok && v != "" {
			*ov.dst(&cfgBridge) = v
		}
	}
	if v, ok := os.LookupEnv("PGBRIDGE_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			cfgBridge.Port = p
		}
	}
}

// Validate rejects configurations that cannot reach a backend.
func Validate() error {
	switch {
	case cfgBridge.ResourceArn == "":
		return fmt.Errorf("resource_arn is required")
	case cfgBridge.SecretArn == "":
		return fmt.Errorf("secret_arn is required")
	case cfgBridge.Database == "":
		return fmt.Errorf("database is required")
	}
	if cfgBridge.Port <= 0 || cfgBridge.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfgBridge.Port)
	}
	if cfgBridge.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}
	return nil
}

func BridgeConfig() *BridgeCfg {
	return &cfgBridge
}

// Pretty renders the running configuration with secrets masked.
func Pretty() string {
	shown := cfgBridge
	if shown.SecretAccessKey != "" {
		shown.SecretAccessKey = "***"
	}
	b, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(b)
}
