// Package vendorconfig implements a per-vendor enable/disable registry: a
// JSON file administrators can edit without a code change, fail-open
// (absent file or unknown vendor both default to enabled). Uses only
// encoding/json and os; the concern is too small (one file, one reload, one
// map lookup) to warrant pulling in a configuration-management library.
package vendorconfig

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// Entry is one vendor's stored configuration.
type Entry struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// Manager holds the loaded per-vendor configuration, reloadable from disk.
type Manager struct {
	path string

	mu      sync.RWMutex
	entries map[domain.Vendor]Entry
}

// NewManager builds a manager and performs the initial load.
func NewManager(path string) *Manager {
	m := &Manager{path: path}
	m.Reload()
	return m
}

// Reload re-reads the configuration file. A missing file, or one that
// fails to parse, falls back to every known vendor enabled (fail-open).
func (m *Manager) Reload() {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("vendor config read failed, defaulting to all enabled", slog.String("path", m.path), slog.Any("error", err))
		} else {
			slog.Warn("vendor config file not found, defaulting to all enabled", slog.String("path", m.path))
		}
		m.loadDefault()
		return
	}

	var parsed map[string]Entry
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Error("vendor config parse failed, defaulting to all enabled", slog.String("path", m.path), slog.Any("error", err))
		m.loadDefault()
		return
	}

	entries := make(map[domain.Vendor]Entry, len(parsed))
	for key, entry := range parsed {
		entries[domain.CanonicalVendor(key)] = entry
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	slog.Info("loaded vendor configuration", slog.Int("count", len(entries)))
}

func (m *Manager) loadDefault() {
	entries := make(map[domain.Vendor]Entry, len(domain.KnownVendors()))
	for _, v := range domain.KnownVendors() {
		entries[v] = Entry{Enabled: true}
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
}

// IsEnabled reports whether vendor is enabled. A vendor absent from the
// loaded configuration defaults to enabled.
func (m *Manager) IsEnabled(vendor domain.Vendor) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[vendor]
	if !ok {
		return true
	}
	return entry.Enabled
}

// Get returns the stored entry for vendor, or a default-enabled entry if
// none is configured.
func (m *Manager) Get(vendor domain.Vendor) Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if entry, ok := m.entries[vendor]; ok {
		return entry
	}
	return Entry{Enabled: true}
}

// All returns a copy of every loaded entry: every known vendor when the
// defaults are in force, otherwise only the vendors the file lists.
func (m *Manager) All() map[domain.Vendor]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.Vendor]Entry, len(m.entries))
	for v, e := range m.entries {
		out[v] = e
	}
	return out
}

// WatchReload polls the configuration file on interval until stop is closed,
// calling Reload whenever the poll fires, so operators can edit the file
// in place without restarting the process.
func (m *Manager) WatchReload(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Reload()
		case <-stop:
			return
		}
	}
}
