package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/flarebyte/almsync/internal/paths"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerPort = 53052
	DefaultLogLevel   = "info"
	DefaultBackend    = "keychain"

	// EnvPassword overrides every configured password source but the --password flag.
	EnvPassword = "ALMSYNC_PASSWORD"
)

type ALMConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	// Password in clear text; prefer PasswordSecret.
	Password           string        `yaml:"password"`
	PasswordSecret     string        `yaml:"password_secret"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
}

type TargetConfig struct {
	Domain              string `yaml:"domain"`
	Project             string `yaml:"project"`
	PlanFolder          string `yaml:"plan_folder"`
	LabFolder           string `yaml:"lab_folder"`
	UserDefinedFields   string `yaml:"user_defined_fields"`
	FailOnNoTestResults bool   `yaml:"fail_on_no_test_results"`
}

type VaultConfig struct {
	Backend string `yaml:"backend"` // keychain or env
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	ALM    ALMConfig    `yaml:"alm"`
	Target TargetConfig `yaml:"target"`
	Vault  VaultConfig  `yaml:"vault"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

func Defaults() Config {
	return Config{
		ALM:    ALMConfig{PasswordSecret: "alm"},
		Target: TargetConfig{FailOnNoTestResults: true},
		Vault:  VaultConfig{Backend: DefaultBackend},
		Server: ServerConfig{Port: DefaultServerPort},
		Log:    LogConfig{Level: DefaultLogLevel},
	}
}

// Path returns the expected path to the config.yaml file.
func Path() string {
	return filepath.Join(paths.Home(), "config.yaml")
}

// Load reads configuration from config.yaml if it exists.
// Missing file is not an error; defaults are returned.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile reads p over the defaults: keys present in the file win, absent keys keep their default.
func LoadFile(p string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse config: %w", err)
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Vault.Backend == "" {
		cfg.Vault.Backend = DefaultBackend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	return cfg, nil
}

// Save writes cfg to p, creating the parent directory.
func Save(p string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Problems lists what prevents a synchronization from running with cfg.
func (c Config) Problems() []string {
	var problems []string
	if c.ALM.URL == "" {
		problems = append(problems, "alm.url is required")
	} else if u, err := url.Parse(c.ALM.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, "alm.url must be an http(s) URL with a host")
	}
	if c.ALM.Username == "" {
		problems = append(problems, "alm.username is required")
	}
	if c.ALM.Password == "" && c.ALM.PasswordSecret == "" && os.Getenv(EnvPassword) == "" {
		problems = append(problems, "no password source: set alm.password_secret, alm.password or "+EnvPassword)
	}
	if c.ALM.Timeout < 0 {
		problems = append(problems, "alm.timeout must not be negative")
	}
	if c.Target.Domain == "" {
		problems = append(problems, "target.domain is required")
	}
	if c.Target.Project == "" {
		problems = append(problems, "target.project is required")
	}
	if c.Target.PlanFolder == "" {
		problems = append(problems, "target.plan_folder is required")
	}
	if c.Target.LabFolder == "" {
		problems = append(problems, "target.lab_folder is required")
	}
	switch c.Vault.Backend {
	case "keychain", "env":
	default:
		problems = append(problems, fmt.Sprintf("vault.backend %q is not one of keychain, env", c.Vault.Backend))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	return problems
}

// SecretFunc fetches a named secret from the vault.
type SecretFunc func(ctx context.Context, name string) ([]byte, error)

// ResolvePassword picks the account password: flag, then $ALMSYNC_PASSWORD,
// then alm.password, then the vault entry alm.password_secret.
func (c Config) ResolvePassword(ctx context.Context, flag string, secret SecretFunc) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv(EnvPassword); v != "" {
		return v, nil
	}
	if c.ALM.Password != "" {
		return c.ALM.Password, nil
	}
	if c.ALM.PasswordSecret == "" || secret == nil {
		return "", errors.New("no ALM password configured")
	}
	b, err := secret(ctx, c.ALM.PasswordSecret)
	if err != nil {
		return "", fmt.Errorf("read password from vault entry %q: %w", c.ALM.PasswordSecret, err)
	}
	return string(b), nil
}
