package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// mococoDir is the state directory name under the user's home.
const mococoDir = ".mococo"

// Paths holds all resolved mococo state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Home       string // ~/.mococo or MOCOCO_HOME
	PIDPath    string // mococo.pid or MOCOCO_PID_PATH
	EventsDB   string // events.db or MOCOCO_DB_PATH
	RosterPath string // workers.yaml or MOCOCO_ROSTER_PATH
	TuningPath string // mococo.toml or MOCOCO_TUNING_PATH
	MemoryDir  string // memory/ (respects MOCOCO_HOME)
}

// ResolvePaths returns all mococo paths, respecting env var overrides.
// Environment variables:
//   - MOCOCO_HOME: base directory for all mococo state (default: ~/.mococo)
//   - MOCOCO_PID_PATH: scheduler PID file (default: $MOCOCO_HOME/mococo.pid)
//   - MOCOCO_DB_PATH: event log database (default: $MOCOCO_HOME/events.db)
//   - MOCOCO_ROSTER_PATH: worker roster (default: $MOCOCO_HOME/workers.yaml)
//   - MOCOCO_TUNING_PATH: tuning file (default: $MOCOCO_HOME/mococo.toml)
//
// If MOCOCO_HOME is set, it becomes the base for all default paths.
// Specific env vars override both the default and the MOCOCO_HOME base.
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}

	paths := &Paths{
		Home:       home,
		PIDPath:    resolvePathWithEnv("MOCOCO_PID_PATH", home, "mococo.pid"),
		EventsDB:   resolvePathWithEnv("MOCOCO_DB_PATH", home, "events.db"),
		RosterPath: resolvePathWithEnv("MOCOCO_ROSTER_PATH", home, "workers.yaml"),
		TuningPath: resolvePathWithEnv("MOCOCO_TUNING_PATH", home, "mococo.toml"),
		MemoryDir:  filepath.Join(home, "memory"),
	}

	return paths, nil
}

// resolveHome returns the state directory from MOCOCO_HOME or ~/.mococo.
func resolveHome() (string, error) {
	if v := os.Getenv("MOCOCO_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, mococoDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
