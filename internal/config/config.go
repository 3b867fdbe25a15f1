// Package config defines the explicit configuration struct threaded
// through the emulator core, replacing the thread-local "current
// emulator" global the original implementation relied on for logging
// and skip-unimplemented behavior (spec.md §9).
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is passed by reference into emu.NewCore and the stub registry;
// nothing in this module keeps an implicit package-level global.
type Config struct {
	Debug bool `yaml:"debug"`

	// SkipUnimplemented makes unmapped-memory dereferences synthesize a
	// banzai_<addr> region instead of raising a fault: BadAddressDereferencing
	// for a write, the width-specific Byte/Word/DWord/QWordDereferencing
	// kind for a read (spec.md §4.2).
	SkipUnimplemented bool `yaml:"skip_unimplemented"`

	// MaxInfiniteLoopRepeat bounds the infinite-loop heuristic
	// (SPEC_FULL.md §4.5, supplemented); 0 disables the check.
	MaxInfiniteLoopRepeat int `yaml:"max_infinite_loop_repeat"`

	Is32Bit bool `yaml:"is_32bit"`
	Linux   bool `yaml:"linux"`

	TraceFile string `yaml:"trace_file"`
	TraceMem  bool   `yaml:"trace_mem"`
}

// Default returns the configuration the CLI starts from before flags
// and an optional YAML file are applied.
func Default() *Config {
	return &Config{
		MaxInfiniteLoopRepeat: 1_000_000,
	}
}

// Load merges a YAML file's contents onto a copy of the default config.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
