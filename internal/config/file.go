package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional yaml overlay. Zero values leave the compiled
// defaults untouched.
type FileConfig struct {
	SocketPath      string   `yaml:"socket_path"`
	DBPath          string   `yaml:"db_path"`
	PollInterval    string   `yaml:"poll_interval"`
	CommandTimeout  string   `yaml:"command_timeout"`
	HistoryLimit    int      `yaml:"history_limit"`
	ExcludeCommands []string `yaml:"exclude_commands"`
}

func LoadFile(path string) (FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var fc FileConfig
	if err := decoder.Decode(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("%s: decode: %w", path, err)
	}
	return fc, nil
}

// Apply overlays a FileConfig onto c and returns the result.
func (c Config) Apply(fc FileConfig) (Config, error) {
	if fc.SocketPath != "" {
		c.SocketPath = fc.SocketPath
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return c, fmt.Errorf("poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if fc.CommandTimeout != "" {
		d, err := time.ParseDuration(fc.CommandTimeout)
		if err != nil {
			return c, fmt.Errorf("command_timeout: %w", err)
		}
		c.CommandTimeout = d
	}
	if fc.HistoryLimit > 0 {
		c.HistoryLimit = fc.HistoryLimit
	}
	if len(fc.ExcludeCommands) > 0 {
		c.ExcludeCommands = fc.ExcludeCommands
	}
	return c, nil
}
