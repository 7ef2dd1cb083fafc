package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	Version     string            `mapstructure:"version"`
	Interpreter InterpreterConfig `mapstructure:"interpreter"`
	Session     SessionConfig     `mapstructure:"session"`
	Log         LogConfig         `mapstructure:"log"`
}

type InterpreterConfig struct {
	// Command is the interpreter executable; Args are prepended before the
	// bootstrap program.
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

type SessionConfig struct {
	// Mode selects local or cluster execution for the compute session.
	Mode string `mapstructure:"mode"`

	// Conf is the driver-side configuration handle, e.g. bridge.python.exec
	// to override the interpreter executable exported to workers.
	Conf map[string]string `mapstructure:"conf"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LoadOptions struct {
	ConfigFile string
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".pybridge", "config.yaml")
	}
	return filepath.Join(home, ".pybridge", "config.yaml")
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PYBRIDGE")
	v.AutomaticEnv()

	path := opts.ConfigFile
	if path == "" {
		path = DefaultConfigPath()
	}
	v.SetConfigFile(path)

	v.SetDefault("interpreter.command", "python3")
	v.SetDefault("session.mode", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Interpreter.Command == "" {
		return errors.New("interpreter.command is required")
	}
	switch c.Session.Mode {
	case "local", "cluster":
	default:
		return fmt.Errorf("session.mode must be local or cluster, got %q", c.Session.Mode)
	}
	return nil
}

// ApplyFile installs srcPath as the config at dstPath atomically.
func ApplyFile(srcPath string, dstPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o700); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	tmpPath := dstPath + ".tmp"
	dstFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp dest: %w", err)
	}
	defer func() { _ = dstFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy config: %w", err)
	}

	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("close temp dest: %w", err)
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
