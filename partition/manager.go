package partition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FetchFunc retrieves one bootstrap asset during install.
type FetchFunc func(ctx context.Context, rawURL string) (*Entry, error)

// Manager owns the current version set of partitions under one root
// directory and drives the install/activate lifecycle.
type Manager struct {
	root    string
	version string
	log     zerolog.Logger
	parts   map[Kind]*Partition
}

// NewManager creates a manager for the given cache root and version tag.
func NewManager(root, version string, log zerolog.Logger) *Manager {
	return &Manager{
		root:    root,
		version: version,
		log:     log,
		parts:   make(map[Kind]*Partition),
	}
}

// PartitionName is the versioned bucket name for a kind.
func (m *Manager) PartitionName(kind Kind) string {
	return fmt.Sprintf("%s-%s", kind, m.version)
}

// Get returns the current partition for kind, opening it on first use.
func (m *Manager) Get(kind Kind) (*Partition, error) {
	if p, ok := m.parts[kind]; ok {
		return p, nil
	}
	p, err := open(m.root, m.PartitionName(kind))
	if err != nil {
		return nil, err
	}
	m.parts[kind] = p
	return p, nil
}

// Install opens the static partition for the current version and writes
// the bootstrap assets into it. Any single failed asset fails the whole
// install so a future attempt retries; a half-populated static partition
// cannot guarantee the offline fallback. Install does not wait for an
// older version to retire (skip-waiting semantics).
func (m *Manager) Install(ctx context.Context, fetch FetchFunc, assets []string) error {
	static, err := m.Get(Static)
	if err != nil {
		return err
	}

	for _, asset := range assets {
		entry, err := fetch(ctx, asset)
		if err != nil {
			return fmt.Errorf("install asset %s: %w", asset, err)
		}
		if entry.Status != 200 {
			return fmt.Errorf("install asset %s: unexpected status %d", asset, entry.Status)
		}
		if err := static.Put(entry.Key, entry); err != nil {
			return fmt.Errorf("install asset %s: %w", asset, err)
		}
	}

	m.log.Info().Str("partition", static.Name()).Int("assets", len(assets)).
		Msg("static partition installed")
	return nil
}

// Activate enumerates existing partitions and deletes every one whose
// name is outside the current version set, then opens the full set
// (claim semantics: the new version controls all traffic immediately).
func (m *Manager) Activate(ctx context.Context) error {
	current := make(map[string]bool, len(Kinds))
	for _, kind := range Kinds {
		current[m.PartitionName(kind)] = true
	}

	entries, err := os.ReadDir(m.root)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("enumerate partitions: %w", err)
	}
	for _, dirEntry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !dirEntry.IsDir() || current[dirEntry.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, dirEntry.Name())); err != nil {
			return fmt.Errorf("delete stale partition %s: %w", dirEntry.Name(), err)
		}
		m.log.Info().Str("partition", dirEntry.Name()).Msg("stale partition deleted")
	}

	for _, kind := range Kinds {
		if _, err := m.Get(kind); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of all partitions on disk, current or not.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
