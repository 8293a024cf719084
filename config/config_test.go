package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Assemble.Base != 0x08000000 {
		t.Errorf("expected default base 0x08000000, got %#x", cfg.Assemble.Base)
	}
	if cfg.Output.Extension != ".gba" {
		t.Errorf("expected .gba extension, got %q", cfg.Output.Extension)
	}
	if cfg.Output.BytesPerLine != 16 {
		t.Errorf("expected 16 bytes per line, got %d", cfg.Output.BytesPerLine)
	}
}

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Assemble.Base != 0x08000000 {
		t.Errorf("missing file should give defaults, got base %#x", cfg.Assemble.Base)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Assemble.Base = 0x02000000
	cfg.Assemble.Defines = map[string]string{"DEBUG": "1"}
	cfg.Output.Listing = true

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Assemble.Base != 0x02000000 {
		t.Errorf("expected saved base, got %#x", loaded.Assemble.Base)
	}
	if loaded.Assemble.Defines["DEBUG"] != "1" {
		t.Errorf("expected DEBUG define, got %v", loaded.Assemble.Defines)
	}
	if !loaded.Output.Listing {
		t.Error("expected listing flag to survive the round trip")
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected an error for malformed TOML")
	}
}
