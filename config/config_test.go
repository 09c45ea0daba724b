package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[compiler]
debug = true
max-registers = 64

[output]
dir = "build"
listing = true
format = "none"

[cache]
enabled = true
path = "/var/cache/moonc.db"

[server]
addr = ":9000"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !c.Compiler.Debug {
		t.Error("compiler debug = false, want true")
	}
	if c.Compiler.MaxRegisters != 64 {
		t.Errorf("max-registers = %d, want 64", c.Compiler.MaxRegisters)
	}
	if !c.Output.Listing || c.Output.Format != "none" {
		t.Errorf("output = %+v", c.Output)
	}
	if want := filepath.Join(c.Dir, "build"); c.OutputDir() != want {
		t.Errorf("OutputDir = %q, want %q", c.OutputDir(), want)
	}
	if !c.Cache.Enabled || c.CachePath() != "/var/cache/moonc.db" {
		t.Errorf("cache = %+v, path %q", c.Cache, c.CachePath())
	}
	if c.Server.Addr != ":9000" {
		t.Errorf("server addr = %q, want :9000", c.Server.Addr)
	}
	if !filepath.IsAbs(c.Dir) {
		t.Errorf("Dir = %q, want absolute", c.Dir)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[compiler]\ndebug = true\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Compiler.MaxRegisters != 250 {
		t.Errorf("max-registers = %d, want 250", c.Compiler.MaxRegisters)
	}
	if c.Output.Format != "cbor" {
		t.Errorf("output format = %q, want cbor", c.Output.Format)
	}
	if c.OutputDir() != "" {
		t.Errorf("OutputDir = %q, want empty", c.OutputDir())
	}
	if want := filepath.Join(c.Dir, ".moonc", "cache.db"); c.CachePath() != want {
		t.Errorf("CachePath = %q, want %q", c.CachePath(), want)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "[compiler]\noptimize = true\n", "unknown keys: compiler.optimize"},
		{"unknown section", "[linker]\nflags = 1\n", "unknown keys"},
		{"zero registers", "[compiler]\nmax-registers = 0\n", "invalid configuration"},
		{"too many registers", "[compiler]\nmax-registers = 300\n", "invalid configuration"},
		{"bad format", "[output]\nformat = \"json\"\n", "invalid configuration"},
		{"empty addr", "[server]\naddr = \"\"\n", "invalid configuration"},
		{"wrong type", "[compiler]\nmax-registers = \"many\"\n", "parse error"},
		{"bad toml", "[compiler\n", "parse error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tc.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing moonc.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[compiler]\nmax-registers = 100\n")
	nested := filepath.Join(root, "src", "lib")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Compiler.MaxRegisters != 100 {
		t.Errorf("max-registers = %d, want 100", c.Compiler.MaxRegisters)
	}
	if abs, _ := filepath.Abs(root); c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Errorf("FindAndLoad = %+v, want nil", c)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}
