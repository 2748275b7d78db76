// Package config handles configuration parsing for train-wizard.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acolita/train-wizard/internal/ports"
)

// Training execution modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// DefaultMarker is the line that starts the evaluation part of a training transcript.
const DefaultMarker = "评估指标"

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/train-wizard/config.yaml or ~/.config/train-wizard/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "train-wizard", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Remote     RemoteConfig     `yaml:"remote"`
	Training   TrainingConfig   `yaml:"training"`
	Results    ResultsConfig    `yaml:"results"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConnectionConfig pre-fills the connection form and bounds the connect attempt.
type ConnectionConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	User              string        `yaml:"user"`
	PasswordEnv       string        `yaml:"password_env"` // env var containing the SSH password
	Timeout           time.Duration `yaml:"timeout"`
	KnownHostsPath    string        `yaml:"known_hosts"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// RemoteConfig describes the layout on the accelerator host.
type RemoteConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// TrainingConfig controls how the training script is run.
type TrainingConfig struct {
	Mode        string `yaml:"mode"`        // "local" or "remote"
	Interpreter string `yaml:"interpreter"` // e.g. python3
	ScriptDir   string `yaml:"script_dir"`  // where the script picker starts
	Marker      string `yaml:"marker"`      // evaluation marker in the transcript
}

// ResultsConfig controls the result cache.
type ResultsConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

// SecurityConfig defines credential handling.
type SecurityConfig struct {
	UseKeyring bool `yaml:"use_keyring"` // remember the SSH password in the OS keyring
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Format   string `yaml:"format"`   // "json" or "text"
	Sanitize bool   `yaml:"sanitize"` // redact credentials from logs
	File     string `yaml:"file"`     // append logs here instead of stderr
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Port:              22,
			Timeout:           15 * time.Second,
			KeepaliveInterval: 30 * time.Second,
		},
		Remote: RemoteConfig{
			BaseDir: "/home/HwHiAiUser/Desktop/2t",
		},
		Training: TrainingConfig{
			Mode:        ModeLocal,
			Interpreter: "python3",
			ScriptDir:   "/home",
			Marker:      DefaultMarker,
		},
		Results: ResultsConfig{
			CacheDir: os.TempDir(),
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sanitize: true,
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.Connection.Port == 0 {
		c.Connection.Port = def.Connection.Port
	}
	if c.Connection.Port < 1 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port %d out of range", c.Connection.Port)
	}
	if c.Connection.Timeout <= 0 {
		c.Connection.Timeout = def.Connection.Timeout
	}
	if c.Connection.KeepaliveInterval <= 0 {
		c.Connection.KeepaliveInterval = def.Connection.KeepaliveInterval
	}

	if c.Remote.BaseDir == "" {
		c.Remote.BaseDir = def.Remote.BaseDir
	}
	if !path.IsAbs(c.Remote.BaseDir) {
		return fmt.Errorf("remote.base_dir %q must be absolute", c.Remote.BaseDir)
	}

	switch strings.ToLower(c.Training.Mode) {
	case "":
		c.Training.Mode = ModeLocal
	case ModeLocal, ModeRemote:
		c.Training.Mode = strings.ToLower(c.Training.Mode)
	default:
		return fmt.Errorf("training.mode %q: want %q or %q", c.Training.Mode, ModeLocal, ModeRemote)
	}
	if strings.TrimSpace(c.Training.Interpreter) == "" {
		c.Training.Interpreter = def.Training.Interpreter
	}
	if c.Training.Marker == "" {
		c.Training.Marker = DefaultMarker
	}

	if c.Results.CacheDir == "" {
		c.Results.CacheDir = def.Results.CacheDir
	}

	return nil
}

// Password resolves the SSH password from the configured environment variable.
// It returns "" when no variable is configured or it is unset.
func (c *Config) Password(fsys ports.FileSystem) string {
	if c.Connection.PasswordEnv == "" {
		return ""
	}
	if fsys != nil {
		return fsys.Getenv(c.Connection.PasswordEnv)
	}
	return os.Getenv(c.Connection.PasswordEnv)
}

// Save writes the configuration to a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		if err := fsys[0].MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		return fsys[0].WriteFile(path, data, 0600)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
