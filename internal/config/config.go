// Package config loads the gateway's startup configuration, layering
// defaults, an optional YAML file, environment variables, and CLI flags
// in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's fully resolved startup configuration.
type Config struct {
	// ListenAddr is the host:port the inbound MCP endpoint binds to.
	ListenAddr string `yaml:"listen_addr"`
	// DatabasePath is the SQLite database file. Empty means
	// internal/store.DefaultDatabaseFile().
	DatabasePath string `yaml:"database_path"`
	// LogsRoot is the root directory internal/serverlog writes
	// per-(tenant,server) log files under.
	LogsRoot string `yaml:"logs_root"`
	// RegistryURL is the discovery endpoint internal/collab.DiscoveryService
	// implementations fetch the server catalog from. Overridden by
	// MCPMUX_REGISTRY_URL or --registry-url.
	RegistryURL string `yaml:"registry_url"`
	// Hidden hints the desktop shell to start minimized; the gateway
	// process itself only threads the flag through to the collaborator
	// that owns tray/window behavior.
	Hidden bool `yaml:"hidden"`
	// EncryptionKeyPath points at the file holding the AES-256 key used
	// by internal/crypto.Sealer.
	EncryptionKeyPath string `yaml:"encryption_key_path"`
	// LogLevel is one of debug/info/warn/error, passed to zap.
	LogLevel string `yaml:"log_level"`
	// SecretBackend selects where internal/collab.SecretProvider material
	// (the field-encryption key, the JWT signing key) is read from: "file"
	// (default) or "aws" for AWS Secrets Manager.
	SecretBackend string `yaml:"secret_backend"`
	// AWSRoleARN, when set, is assumed via STS for every AWS Secrets
	// Manager call instead of using the ambient credential chain. Only
	// consulted when SecretBackend is "aws".
	AWSRoleARN string `yaml:"aws_role_arn"`
}

// Defaults returns the configuration used when nothing else overrides it.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".mcpmux")
	return Config{
		ListenAddr:        "127.0.0.1:7337",
		DatabasePath:      filepath.Join(base, "gateway.db"),
		LogsRoot:          filepath.Join(base, "logs"),
		RegistryURL:       "https://registry.mcpmux.dev",
		Hidden:            false,
		EncryptionKeyPath: filepath.Join(base, "gateway.key"),
		LogLevel:          "info",
		SecretBackend:     "file",
	}
}

// Load resolves a Config by layering a YAML file (if path is non-empty and
// exists), environment variables, and CLI flags over Defaults(). flags may
// be nil to skip the CLI-flag layer (used by tests).
func Load(yamlPath string, flags *pflag.FlagSet) (Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		if err := applyYAML(&cfg, yamlPath); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if flags != nil {
		applyFlags(&cfg, flags)
	}

	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MCPMUX_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MCPMUX_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("MCPMUX_LOGS_ROOT"); v != "" {
		cfg.LogsRoot = v
	}
	if v := os.Getenv("MCPMUX_REGISTRY_URL"); v != "" {
		cfg.RegistryURL = v
	}
	if v := os.Getenv("MCPMUX_ENCRYPTION_KEY_PATH"); v != "" {
		cfg.EncryptionKeyPath = v
	}
	if v := os.Getenv("MCPMUX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MCPMUX_SECRET_BACKEND"); v != "" {
		cfg.SecretBackend = v
	}
	if v := os.Getenv("MCPMUX_AWS_ROLE_ARN"); v != "" {
		cfg.AWSRoleARN = v
	}
}

// RegisterFlags binds the CLI flag layer onto a FlagSet, to be read back
// by applyFlags after Parse.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("listen-addr", "", "address the inbound MCP endpoint binds to")
	flags.String("database-path", "", "path to the gateway's SQLite database file")
	flags.String("logs-root", "", "root directory for per-server log files")
	flags.String("registry-url", "", "discovery endpoint for the server catalog")
	flags.Bool("hidden", false, "hint the desktop shell to start minimized")
	flags.String("encryption-key-path", "", "path to the field-encryption key file")
	flags.String("log-level", "", "debug, info, warn, or error")
	flags.String("secret-backend", "", `where key material is read from: "file" or "aws"`)
	flags.String("aws-role-arn", "", "IAM role to assume for AWS Secrets Manager calls (secret-backend=aws only)")
}

func applyFlags(cfg *Config, flags *pflag.FlagSet) {
	if v, err := flags.GetString("listen-addr"); err == nil && v != "" {
		cfg.ListenAddr = v
	}
	if v, err := flags.GetString("database-path"); err == nil && v != "" {
		cfg.DatabasePath = v
	}
	if v, err := flags.GetString("logs-root"); err == nil && v != "" {
		cfg.LogsRoot = v
	}
	if v, err := flags.GetString("registry-url"); err == nil && v != "" {
		cfg.RegistryURL = v
	}
	if flags.Changed("hidden") {
		if v, err := flags.GetBool("hidden"); err == nil {
			cfg.Hidden = v
		}
	}
	if v, err := flags.GetString("encryption-key-path"); err == nil && v != "" {
		cfg.EncryptionKeyPath = v
	}
	if v, err := flags.GetString("log-level"); err == nil && v != "" {
		cfg.LogLevel = v
	}
	if v, err := flags.GetString("secret-backend"); err == nil && v != "" {
		cfg.SecretBackend = v
	}
	if v, err := flags.GetString("aws-role-arn"); err == nil && v != "" {
		cfg.AWSRoleARN = v
	}
}
