package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// EscalationConfig is the optional resource that can force GPU rendering.
type EscalationConfig struct {
	ForceGPU bool `yaml:"force_gpu" json:"force_gpu"`
}

// LoadEscalationConfig reads path. An empty path or a missing file yields
// the zero config.
func LoadEscalationConfig(path string) (EscalationConfig, error) {
	var cfg EscalationConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read escalation config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse escalation config %s: %w", path, err)
	}
	return cfg, nil
}

// EscalationCache reads the escalation config once per session and serves
// the cached value afterwards.
type EscalationCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]EscalationConfig
	load    func(string) (EscalationConfig, error)
}

// NewEscalationCache creates a cache backed by the file at path.
func NewEscalationCache(path string) *EscalationCache {
	return &EscalationCache{path: path, entries: make(map[string]EscalationConfig), load: LoadEscalationConfig}
}

// Get returns the config for sessionID, loading it on first use. A read
// failure is returned and nothing is cached, so the next mount retries.
func (c *EscalationCache) Get(sessionID string) (EscalationConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg, ok := c.entries[sessionID]; ok {
		return cfg, nil
	}
	cfg, err := c.load(c.path)
	if err != nil {
		return EscalationConfig{}, err
	}
	c.entries[sessionID] = cfg
	return cfg, nil
}

// Forget drops the cached value for sessionID.
func (c *EscalationCache) Forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}
