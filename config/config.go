package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zhubert/plural-client/paths"
)

const (
	defaultTransferTimeoutSec = 120
	maxRecentPlans            = 20
)

// Config holds the client configuration
type Config struct {
	ServerURL          string   `json:"server_url,omitempty"`           // Plan server base URL
	Profile            string   `json:"profile,omitempty"`              // Active server profile name (overrides ServerURL)
	TransferTimeoutSec int      `json:"transfer_timeout_sec,omitempty"` // Timeout for plan file transfers (default 120)
	Debug              bool     `json:"debug,omitempty"`                // Verbose protocol logging
	RecentPlans        []string `json:"recent_plans,omitempty"`         // Most-recently-opened plan ids, newest first

	mu       sync.RWMutex
	filePath string
}

// Load reads the config from disk, or creates a new one if it doesn't exist
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RecentPlans: []string{},
		filePath:    path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.ensureInitialized()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ensureInitialized ensures slices are initialized (not nil) after
// unmarshaling. Only called from Load() before the Config is shared.
func (c *Config) ensureInitialized() {
	if c.RecentPlans == nil {
		c.RecentPlans = []string{}
	}
}

// Validate checks that the config is internally consistent
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid server URL: %s", c.ServerURL)
		}
	}
	if c.TransferTimeoutSec < 0 {
		return fmt.Errorf("transfer timeout must not be negative")
	}

	seen := make(map[string]bool)
	for _, id := range c.RecentPlans {
		if id == "" {
			return fmt.Errorf("empty plan id in recent plans")
		}
		if seen[id] {
			return fmt.Errorf("duplicate plan id in recent plans: %s", id)
		}
		seen[id] = true
	}

	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// GetServerURL returns the configured server URL
func (c *Config) GetServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerURL
}

// SetServerURL sets the server URL
func (c *Config) SetServerURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerURL = u
}

// GetProfile returns the active profile name, empty when none is selected
func (c *Config) GetProfile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Profile
}

// SetProfile selects a named server profile
func (c *Config) SetProfile(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Profile = name
}

// GetDebug returns whether verbose protocol logging is enabled
func (c *Config) GetDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debug
}

// SetDebug sets whether verbose protocol logging is enabled
func (c *Config) SetDebug(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Debug = enabled
}

// TransferTimeout returns the file transfer timeout, defaulting to 120s.
// Feed it to mcp.WithTransferTimeout when constructing a client.
func (c *Config) TransferTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sec := c.TransferTimeoutSec
	if sec <= 0 {
		sec = defaultTransferTimeoutSec
	}
	return time.Duration(sec) * time.Second
}

// SetTransferTimeoutSec sets the file transfer timeout in seconds
func (c *Config) SetTransferTimeoutSec(sec int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TransferTimeoutSec = sec
}

// TouchRecentPlan moves a plan id to the front of the recent list, adding
// it if absent. The list is capped; the oldest entry falls off.
func (c *Config) TouchRecentPlan(id string) {
	if id == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, r := range c.RecentPlans {
		if r == id {
			c.RecentPlans = append(c.RecentPlans[:i], c.RecentPlans[i+1:]...)
			break
		}
	}
	c.RecentPlans = append([]string{id}, c.RecentPlans...)
	if len(c.RecentPlans) > maxRecentPlans {
		c.RecentPlans = c.RecentPlans[:maxRecentPlans]
	}
}

// RemoveRecentPlan removes a plan id from the recent list.
// Returns true if the id was found and removed, false otherwise.
func (c *Config) RemoveRecentPlan(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, r := range c.RecentPlans {
		if r == id {
			c.RecentPlans = append(c.RecentPlans[:i], c.RecentPlans[i+1:]...)
			return true
		}
	}
	return false
}

// GetRecentPlans returns a copy of the recent plan ids, newest first
func (c *Config) GetRecentPlans() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	recent := make([]string, len(c.RecentPlans))
	copy(recent, c.RecentPlans)
	return recent
}
