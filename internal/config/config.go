package config

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	SocketPath      string
	DBPath          string
	PollInterval    time.Duration
	CommandTimeout  time.Duration
	RetryBackoff    []time.Duration
	HistoryLimit    int
	ExcludeCommands []string
}

func DefaultConfig() Config {
	return Config{
		SocketPath:     defaultSocketPath(),
		DBPath:         defaultDBPath(),
		PollInterval:   2 * time.Second,
		CommandTimeout: 5 * time.Second,
		RetryBackoff:   []time.Duration{250 * time.Millisecond, 1 * time.Second},
		HistoryLimit:   200,
	}
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "panenap", "panenapd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".panenapd.sock"
	}
	return filepath.Join(home, ".local", "state", "panenap", "panenapd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "panenap.db"
	}
	return filepath.Join(home, ".local", "state", "panenap", "panenap.db")
}
