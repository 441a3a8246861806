// Package config handles waforthc.toml compiler configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked for by Find.
const FileName = "waforthc.toml"

// Config represents a waforthc.toml file.
type Config struct {
	Core   Core   `toml:"core"`
	Native Native `toml:"native"`

	// Dir is the directory relative paths are resolved against (set at load time).
	Dir string `toml:"-"`
}

// Core describes the core module and the exports it provides.
type Core struct {
	Path       string `toml:"path"`
	Name       string `toml:"name"`
	HostModule string `toml:"host-module"`
	RunArg     *int32 `toml:"run-arg"`

	Run    string `toml:"run"`
	Error  string `toml:"error"`
	Here   string `toml:"here"`
	Latest string `toml:"latest"`
}

// Native configures the native build toolchain.
type Native struct {
	Wasm2C      string   `toml:"wasm2c"`
	CC          string   `toml:"cc"`
	IncludeDirs []string `toml:"include-dirs"`
	LibDirs     []string `toml:"lib-dirs"`
	Libs        []string `toml:"libs"`
	CFlags      []string `toml:"cflags"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

func (cfg *Config) setDefaults() {
	def := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}
	def(&cfg.Core.Path, "waforth.wasm")
	def(&cfg.Core.Name, "waforth")
	def(&cfg.Core.HostModule, "shell")
	def(&cfg.Core.Run, "run")
	def(&cfg.Core.Error, "error")
	def(&cfg.Core.Here, "here")
	def(&cfg.Core.Latest, "latest")
	if cfg.Core.RunArg == nil {
		arg := int32(1)
		cfg.Core.RunArg = &arg
	}
	def(&cfg.Native.Wasm2C, "wasm2c")
	def(&cfg.Native.CC, "cc")
	if cfg.Native.Libs == nil {
		cfg.Native.Libs = []string{"wasm-rt-impl", "m"}
	}
}

// Load parses the named configuration file.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return cfg, fmt.Errorf("unknown key %q in %s", undec[0].String(), path)
	}
	cfg.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return cfg, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// Find loads FileName from dir if it exists, returning the defaults,
// relative to dir, otherwise.
func Find(dir string) (Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	cfg := Default()
	abs, err := filepath.Abs(dir)
	if err != nil {
		return cfg, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	cfg.Dir = abs
	return cfg, nil
}

// Resolve returns path relative to the configuration's directory.
func (cfg Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || cfg.Dir == "" {
		return path
	}
	return filepath.Join(cfg.Dir, path)
}

// CorePath returns the resolved core module path.
func (cfg Config) CorePath() string { return cfg.Resolve(cfg.Core.Path) }
