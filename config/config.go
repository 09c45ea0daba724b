// Package config handles moonc.toml project configuration.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file looked up by Load and
// FindAndLoad.
const FileName = "moonc.toml"

//go:embed schema.cue
var schemaSource string

// Config represents a moonc.toml project configuration.
type Config struct {
	Compiler Compiler `toml:"compiler" json:"compiler"`
	Output   Output   `toml:"output" json:"output"`
	Cache    Cache    `toml:"cache" json:"cache"`
	Server   Server   `toml:"server" json:"server"`

	// Dir is the directory containing the moonc.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Compiler configures code generation.
type Compiler struct {
	Debug        bool `toml:"debug" json:"debug"`
	MaxRegisters int  `toml:"max-registers" json:"max-registers"`
}

// Output configures what the CLI writes for each compiled chunk.
type Output struct {
	Dir     string `toml:"dir" json:"dir"`
	Listing bool   `toml:"listing" json:"listing"`
	Format  string `toml:"format" json:"format"` // "cbor" or "none"
}

// Cache configures the compile cache.
type Cache struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// Server configures the compile service.
type Server struct {
	Addr string `toml:"addr" json:"addr"`
}

// Default returns the configuration used when no moonc.toml exists.
func Default() *Config {
	return &Config{
		Compiler: Compiler{MaxRegisters: 250},
		Output:   Output{Format: "cbor"},
		Cache:    Cache{Path: filepath.Join(".moonc", "cache.db")},
		Server:   Server{Addr: "localhost:7070"},
		Dir:      ".",
	}
}

// Load parses a moonc.toml file from the given directory. Keys absent from
// the file keep their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a moonc.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename(FileName))
	if err := value.Err(); err != nil {
		return err
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// CachePath returns the absolute path of the cache database.
func (c *Config) CachePath() string {
	return c.resolve(c.Cache.Path)
}

// OutputDir returns the directory for compiled output, or "" to write next
// to each source file.
func (c *Config) OutputDir() string {
	if c.Output.Dir == "" {
		return ""
	}
	return c.resolve(c.Output.Dir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
