package mergesort

import (
	"runtime"

	"github.com/spf13/viper"
)

func loadConfig() {
	viper.SetConfigName("spmsortrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.spmsort")

	setupDefaults()

	viper.ReadInConfig()

	viper.SetEnvPrefix("spm")
	viper.AutomaticEnv()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"scratchdir":       ".",                // Root for per-worker scratch directories
		"threads":          runtime.NumCPU(),   // Sorter task pool size
		"threadbind":       "close,cores",      // Placement hint, not a contract
		"fanin":            10,                 // Runs merged per k-way merge
		"memorylimit":      int64(30) << 30,    // Resident record bytes per worker
		"transferchunk":    int64(128) << 20,   // Max bytes per inter-worker transfer message
		"mergeconcurrency": 4,                  // Concurrent group merges in a hierarchical round
		"verbose":          false,
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose":     "v",
		"scratch_dir": "scratchdir",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}

// Config configures a Coordinator.
type Config struct {
	ScratchDir       string
	Threads          int
	ThreadBind       string
	FanIn            int
	MemoryLimit      int64
	TransferChunk    int64
	MergeConcurrency int
	Verbose          bool
}

// NewConfig loads settings from config file(s), environment and defaults.
func NewConfig() *Config {
	loadConfig()

	return &Config{
		ScratchDir:       viper.GetString("scratchdir"),
		Threads:          viper.GetInt("threads"),
		ThreadBind:       viper.GetString("threadbind"),
		FanIn:            viper.GetInt("fanin"),
		MemoryLimit:      viper.GetInt64("memorylimit"),
		TransferChunk:    viper.GetInt64("transferchunk"),
		MergeConcurrency: viper.GetInt("mergeconcurrency"),
		Verbose:          viper.GetBool("verbose"),
	}
}

// Option allows configuration of a Coordinator.
type Option func(*Config)

// WithThreads sets the sorter task pool size.
func WithThreads(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Threads = n
		}
	}
}

// WithScratchDir sets the root directory for per-worker scratch space.
func WithScratchDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.ScratchDir = dir
		}
	}
}

// WithFanIn sets how many runs a single k-way merge consumes.
func WithFanIn(k int) Option {
	return func(c *Config) {
		if k > 1 {
			c.FanIn = k
		}
	}
}

// WithMemoryLimit sets the record-byte budget for one in-memory chunk; a
// chunk stops growing once it reaches the budget, so it can exceed it by at
// most one record.
func WithMemoryLimit(bytes int64) Option {
	return func(c *Config) {
		if bytes > 0 {
			c.MemoryLimit = bytes
		}
	}
}
