// Package config holds the options used to open databases and to run the
// colstore command line tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"colstore/pkg/logging"
)

// Durability selects how commits reach the disk.
type Durability string

const (
	// DurabilityFull syncs the file before and after the header flip.
	DurabilityFull Durability = "full"
	// DurabilityAsync writes commits without syncing.
	DurabilityAsync Durability = "async"
	// DurabilityMemOnly never syncs and removes the file when the last session closes.
	DurabilityMemOnly Durability = "mem_only"
)

// Options configures a SharedGroup session.
type Options struct {
	Durability Durability `yaml:"durability"`

	// NoCreate makes Open fail if the database file does not exist.
	NoCreate bool `yaml:"no_create"`

	// AllowFileFormatUpgrade permits opening files in an older format.
	AllowFileFormatUpgrade bool `yaml:"allow_file_format_upgrade"`

	// History attaches the changeset history store, which is required for
	// advance, promote and rollback-and-continue.
	History bool `yaml:"history"`

	// HistoryDir overrides the default "<db>.history" directory.
	HistoryDir string `yaml:"history_dir"`

	// RingBufferEntries is the initial number of reader slots in a new lock file.
	RingBufferEntries int `yaml:"ring_buffer_entries"`

	// Metrics enables prometheus instrumentation of transactions.
	Metrics bool `yaml:"metrics"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		Durability:        DurabilityFull,
		History:           true,
		RingBufferEntries: 32,
		Metrics:           true,
		Logging: logging.Config{
			Level:  logging.LevelWarn,
			Format: "text",
		},
	}
}

// Load reads options from a YAML file. Fields missing from the file keep
// their default values.
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Save writes the options as YAML, creating parent directories as needed.
func (o Options) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks option values that YAML decoding cannot.
func (o Options) Validate() error {
	switch o.Durability {
	case DurabilityFull, DurabilityAsync, DurabilityMemOnly:
	default:
		return fmt.Errorf("invalid durability %q", o.Durability)
	}
	if o.RingBufferEntries < 2 {
		return fmt.Errorf("ring_buffer_entries must be at least 2, got %d", o.RingBufferEntries)
	}
	return nil
}

// HistoryPath returns the history directory for the database at dbPath.
func (o Options) HistoryPath(dbPath string) string {
	if o.HistoryDir != "" {
		return o.HistoryDir
	}
	return dbPath + ".history"
}
