package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Settings holds the resolved driftstore configuration.
type Settings struct {
	// DataDir is the directory holding primary/backup document slots.
	DataDir string

	// JournalPath is the SQLite transition journal. Empty disables the
	// journal.
	JournalPath string

	// FileMode is applied to primary and backup files.
	FileMode os.FileMode

	// SweepOnOpen deletes orphaned temp files during preflight.
	SweepOnOpen bool

	// FreshWithin and WarmWithin grade checkpoint staleness: younger
	// than FreshWithin is fresh, younger than WarmWithin warrants
	// review, older is stale.
	FreshWithin time.Duration
	WarmWithin  time.Duration
}

// Default returns the settings used when no config file is given:
// data under ~/.driftstore, journal enabled, sweep on, 2h/12h staleness.
func Default() Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".driftstore")
	return Settings{
		DataDir:     dataDir,
		JournalPath: filepath.Join(dataDir, "journal.db"),
		FileMode:    0o600,
		SweepOnOpen: true,
		FreshWithin: 2 * time.Hour,
		WarmWithin:  12 * time.Hour,
	}
}

// Load reads settings from a yaml or json file, filling unset fields with
// defaults. Recognized keys: data_dir, journal_path, file_mode (octal
// string), sweep_on_open, fresh_within, warm_within.
func Load(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return FromConfig(c)
}

// FromConfig resolves settings from a parsed Config.
func FromConfig(c Config) (Settings, error) {
	defaults := Default()

	s := Settings{
		DataDir:     c.String("data_dir", defaults.DataDir),
		JournalPath: c.String("journal_path", defaults.JournalPath),
		FileMode:    defaults.FileMode,
		SweepOnOpen: c.Bool("sweep_on_open", defaults.SweepOnOpen),
		FreshWithin: c.Duration("fresh_within", defaults.FreshWithin),
		WarmWithin:  c.Duration("warm_within", defaults.WarmWithin),
	}

	if raw := c.String("file_mode", ""); raw != "" {
		mode, err := strconv.ParseUint(raw, 8, 32)
		if err != nil {
			return Settings{}, fmt.Errorf("parse file_mode %q: %w", raw, err)
		}
		s.FileMode = os.FileMode(mode)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings that cannot back a store.
func (s Settings) Validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if s.FreshWithin <= 0 || s.WarmWithin <= 0 {
		return fmt.Errorf("staleness thresholds must be positive")
	}
	if s.WarmWithin < s.FreshWithin {
		return fmt.Errorf("warm_within must not be shorter than fresh_within")
	}
	return nil
}
