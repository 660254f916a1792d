package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ouros-lang/ouros/vm"
)

// Config is the session manager's on-disk configuration: resource-limit
// defaults applied to every session that doesn't override them, and the
// directory save_session/load_session read and write (spec §6 "Persisted
// state layout"), grounded on chazu-maggie's own `toml.Unmarshal`-based
// manifest.toml loader.
type Config struct {
	Limits  LimitsConfig `toml:"limits"`
	Storage StorageConfig `toml:"storage"`
	History HistoryConfig `toml:"history"`
}

// LimitsConfig mirrors vm.Limits with TOML tags; zero fields stay
// unbounded exactly as vm.Limits documents.
type LimitsConfig struct {
	MaxAllocations    int64   `toml:"max_allocations"`
	MaxMemoryBytes    int64   `toml:"max_memory_bytes"`
	MaxDurationSecs   float64 `toml:"max_duration_secs"`
	MaxRecursionDepth int     `toml:"max_recursion_depth"`
	GCIntervalSecs    int     `toml:"gc_interval_secs"`
}

// StorageConfig configures save_session/load_session's target directory.
type StorageConfig struct {
	Dir     string `toml:"dir"`
	Compress bool  `toml:"compress"`
}

// HistoryConfig configures the per-session rewind ring buffer (spec
// §4.8's "default depth 20, configurable").
type HistoryConfig struct {
	Depth int `toml:"depth"`
}

// DefaultConfig mirrors spec §4.5's stated recursion-depth default and
// §4.8's stated history depth; storage defaults to a relative directory
// under the process's working directory.
func DefaultConfig() Config {
	return Config{
		Limits:  LimitsConfig{MaxRecursionDepth: 1000},
		Storage: StorageConfig{Dir: "ouros-sessions", Compress: true},
		History: HistoryConfig{Depth: 20},
	}
}

// LoadConfig reads and parses a TOML config file, filling in
// DefaultConfig for anything the file leaves zero-valued.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("session: read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("session: parse config %s: %w", path, err)
	}
	if cfg.Limits.MaxRecursionDepth == 0 {
		cfg.Limits.MaxRecursionDepth = 1000
	}
	if cfg.History.Depth == 0 {
		cfg.History.Depth = 20
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "ouros-sessions"
	}
	return cfg, nil
}

func (c LimitsConfig) toVMLimits() vm.Limits {
	return vm.Limits{
		MaxAllocations:    c.MaxAllocations,
		MaxMemoryBytes:    c.MaxMemoryBytes,
		MaxDurationSecs:   c.MaxDurationSecs,
		MaxRecursionDepth: c.MaxRecursionDepth,
		GCInterval:        time.Duration(c.GCIntervalSecs) * time.Second,
	}
}

func (c StorageConfig) path(name string) string {
	return filepath.Join(c.Dir, name+".ourossession")
}
