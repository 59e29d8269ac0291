package partition

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"vidgate/cache"
)

// Kind identifies the role of a partition. Exactly one partition per
// kind is current at any time.
type Kind string

const (
	Static  Kind = "static"
	Runtime Kind = "runtime"
	API     Kind = "api"
	Image   Kind = "image"
)

// Kinds lists every partition kind in the current version set.
var Kinds = []Kind{Static, Runtime, API, Image}

// Partition is a named on-disk bucket of cached responses, one JSON
// file per entry. Writes go to a temp file first and are renamed into
// place, so the newest successful write always wins.
type Partition struct {
	name string
	dir  string
}

func open(root, name string) (*Partition, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create partition %s: %w", name, err)
	}
	return &Partition{name: name, dir: dir}, nil
}

// Name returns the versioned partition name, e.g. "static-v4".
func (p *Partition) Name() string { return p.name }

// Match returns the cached entry for key, if any.
func (p *Partition) Match(key string) (*Entry, bool) {
	data, err := os.ReadFile(p.path(key))
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

// Put stores entry under key, overwriting any previous entry.
func (p *Partition) Put(key string, entry *Entry) error {
	entry.Key = key
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	path := p.path(key)
	tmp := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return os.Rename(tmp, path)
}

// Delete removes the entry for key if present.
func (p *Partition) Delete(key string) error {
	err := os.Remove(p.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (p *Partition) path(key string) string {
	name := cache.SanitizeKey(key)
	if len(name) > 200 {
		name = fmt.Sprintf("long_%x", md5.Sum([]byte(key)))
	}
	return filepath.Join(p.dir, name+".json")
}
