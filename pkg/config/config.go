package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"outpost-firmware/pkg/globals"

	"github.com/gofrs/uuid"
)

// Keys owned by the bootstrap core. Values are stored as strings so the
// file stays editable by hand and survives partial writes from older
// firmware revisions.
const (
	KeyDeviceName        = "deviceName"
	KeyWifiEssid         = "wifiEssid"
	KeyWifiPassword      = "wifiPassword"
	KeyWifiConfigured    = "wifiConfigured"
	KeyAccessPointSecret = "accessPointSecret"
	KeyDeviceID          = "id"
	KeyFirmwareVersion   = "firmwareVersion"
)

type Config struct {
	mu   sync.RWMutex
	path string
	data map[string]string
}

var instance *Config
var once sync.Once

// Init initializes the config system and creates the config file if it
// doesn't exist yet
func Init() error {
	var err error
	once.Do(func() {
		instance = New(globals.ConfigPath)
		err = instance.Load()
	})
	return err
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		panic("config not initialized - call Init() first")
	}
	return instance
}

// New creates a store bound to path without loading it. Used directly in
// tests; production code goes through Init/Get.
func New(path string) *Config {
	return &Config{path: path, data: make(map[string]string)}
}

// Load reads the file into memory, creating it with defaults if absent.
// A present but unreadable or unparsable file is an error; callers decide
// whether to Reset.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return c.writeDefaults()
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	parsed := make(map[string]string)
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.data = parsed
	return nil
}

// Reset discards everything and restores factory defaults on disk. The
// device ID is re-minted.
func (c *Config) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeDefaults()
}

func (c *Config) writeDefaults() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("failed to generate device ID: %w", err)
	}

	c.data = map[string]string{
		KeyDeviceID:        id.String(),
		KeyFirmwareVersion: globals.FirmwareVersion,
	}

	return c.save()
}

// Save persists the current state to disk
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save()
}

func (c *Config) save() error {
	data, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Set updates a value in memory. Call Save to persist.
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// GetString returns the value for key, or "" if the key is not set
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key]
}

// IsKeySet reports whether key exists, regardless of its value
func (c *Config) IsKeySet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[key]
	return ok
}
