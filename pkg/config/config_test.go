package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestConfig(t *testing.T) (*Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Failed to load fresh config: %v", err)
	}
	return cfg, path
}

func TestLoadCreatesDefaults(t *testing.T) {
	cfg, path := newTestConfig(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if !cfg.IsKeySet(KeyDeviceID) {
		t.Error("fresh config has no device ID")
	}
	if cfg.GetString(KeyDeviceID) == "" {
		t.Error("device ID is empty")
	}
	if cfg.IsKeySet(KeyWifiConfigured) {
		t.Error("fresh config claims to be wifi-configured")
	}
}

func TestSetSaveLoadRoundtrip(t *testing.T) {
	cfg, path := newTestConfig(t)

	cfg.Set(KeyWifiEssid, "home-net")
	cfg.Set(KeyWifiPassword, "hunter22")
	cfg.Set(KeyWifiConfigured, "true")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := reloaded.GetString(KeyWifiEssid); got != "home-net" {
		t.Errorf("essid = %q, want %q", got, "home-net")
	}
	if got := reloaded.GetString(KeyWifiConfigured); got != "true" {
		t.Errorf("configured = %q, want %q", got, "true")
	}
}

func TestGetStringMissingKey(t *testing.T) {
	cfg, _ := newTestConfig(t)
	if got := cfg.GetString("neverSet"); got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}
	if cfg.IsKeySet("neverSet") {
		t.Error("IsKeySet true for missing key")
	}
}

func TestIsKeySetWithEmptyValue(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.Set(KeyDeviceName, "")
	if !cfg.IsKeySet(KeyDeviceName) {
		t.Error("IsKeySet false for a key set to empty string")
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	cfg, _ := newTestConfig(t)
	originalID := cfg.GetString(KeyDeviceID)

	cfg.Set(KeyWifiEssid, "home-net")
	cfg.Set(KeyWifiConfigured, "true")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := cfg.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if cfg.IsKeySet(KeyWifiEssid) {
		t.Error("essid survived reset")
	}
	if cfg.GetString(KeyDeviceID) == originalID {
		t.Error("device ID was not re-minted on reset")
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := New(path)
	if err := cfg.Load(); err == nil {
		t.Fatal("Load succeeded on corrupt file, want error")
	}
}
