// Package manifest handles datex.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "datex.toml"

// Manifest represents a datex.toml project configuration.
type Manifest struct {
	Endpoint Endpoint `toml:"endpoint" json:"endpoint"`
	Routing  Routing  `toml:"routing" json:"routing"`
	Security Security `toml:"security" json:"security"`
	Store    Store    `toml:"store" json:"store"`

	// Dir is the directory containing the datex.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Endpoint configures the sender identity.
type Endpoint struct {
	ID     string `toml:"id" json:"id"`
	Device int    `toml:"device" json:"device"`
}

// Routing configures block headers.
type Routing struct {
	// Type is the protocol type name: request, response, data, local-request.
	Type         string   `toml:"type" json:"type"`
	TTL          int      `toml:"ttl" json:"ttl"`
	Prio         int      `toml:"prio" json:"prio"`
	MaxBlockSize int      `toml:"max-block-size" json:"max-block-size"`
	Receivers    []string `toml:"receivers" json:"receivers"`
	Flood        bool     `toml:"flood" json:"flood"`
}

// Security configures signing and encryption.
type Security struct {
	Sign    bool `toml:"sign" json:"sign"`
	Encrypt bool `toml:"encrypt" json:"encrypt"`
	SendKey bool `toml:"send-key" json:"send-key"`
}

// Store configures the template database.
type Store struct {
	Path string `toml:"path" json:"path"`
}

// Load parses a datex.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest text.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}

	// Defaults
	if m.Routing.Type == "" {
		m.Routing.Type = "request"
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a datex.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
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
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// StorePath returns the template database path, resolved against the
// manifest directory. Empty if no store is configured.
func (m *Manifest) StorePath() string {
	if m.Store.Path == "" {
		return ""
	}
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}
