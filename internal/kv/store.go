// Package kv implements the namespaced, file-backed key/value store that
// underlies History, Grimoire, and telemetry. Each collection is one JSON file, replaced atomically
// on every write.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/floegence/forge/internal/lockfile"
)

// Store is a directory of collections, each a JSON file of key -> raw value.
type Store struct {
	dir string

	mu          sync.Mutex
	collections map[string]*collection
}

type collection struct {
	mu   sync.RWMutex
	path string
}

func Open(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("kv: missing directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("kv: create dir: %w", err)
	}
	return &Store{dir: dir, collections: map[string]*collection{}}, nil
}

func (s *Store) collectionFor(name string) (*collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("kv: missing collection name")
	}
	if strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("kv: invalid collection name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &collection{path: filepath.Join(s.dir, name+".json")}
		s.collections[name] = c
	}
	return c, nil
}

// readAllLocked loads the collection file, tolerating a missing or
// truncated file by returning an empty map.
func readAllLocked(path string) (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		// A crash mid-write can leave a truncated tail; treat it as empty
		// rather than failing every subsequent read.
		return map[string]json.RawMessage{}, nil
	}
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	return out, nil
}

func writeAllLocked(path string, data map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	lock, err := lockfile.AcquireWait(path+".lock", 2*time.Second)
	if err != nil {
		return fmt.Errorf("kv: acquire lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get decodes the value for key into out. It reports whether the key existed.
func (s *Store) Get(collectionName, key string, out any) (bool, error) {
	c, err := s.collectionFor(collectionName)
	if err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	all, err := readAllLocked(c.path)
	if err != nil {
		return false, err
	}
	raw, ok := all[key]
	if !ok {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Set stores value under key, replacing any prior value.
func (s *Store) Set(collectionName, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("kv: missing key")
	}
	c, err := s.collectionFor(collectionName)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := readAllLocked(c.path)
	if err != nil {
		return err
	}
	all[key] = raw
	return writeAllLocked(c.path, all)
}

// Delete removes key, reporting whether it was present.
func (s *Store) Delete(collectionName, key string) (bool, error) {
	c, err := s.collectionFor(collectionName)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := readAllLocked(c.path)
	if err != nil {
		return false, err
	}
	if _, ok := all[key]; !ok {
		return false, nil
	}
	delete(all, key)
	if err := writeAllLocked(c.path, all); err != nil {
		return false, err
	}
	return true, nil
}

// Keys returns every key in the collection, sorted.
func (s *Store) Keys(collectionName string) ([]string, error) {
	c, err := s.collectionFor(collectionName)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	all, err := readAllLocked(c.path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for k := range all {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// All decodes every value in the collection into the map pointed to by out,
// which must be a *map[string]T.
func (s *Store) All(collectionName string, out any) error {
	c, err := s.collectionFor(collectionName)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	all, err := readAllLocked(c.path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Query reads every value and keeps the ones for which match returns true.
// match receives the stored value undecoded, as json.RawMessage, so callers can use
// gjson for cheap path filters without a full unmarshal.
func (s *Store) Query(collectionName string, match func(key string, raw json.RawMessage) bool) (map[string]json.RawMessage, error) {
	c, err := s.collectionFor(collectionName)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	all, err := readAllLocked(c.path)
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	for k, v := range all {
		if match == nil || match(k, v) {
			out[k] = v
		}
	}
	return out, nil
}

// Collections lists the names of collections with a file on disk.
func (s *Store) Collections() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			out = append(out, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Drop deletes an entire collection file.
func (s *Store) Drop(collectionName string) error {
	c, err := s.collectionFor(collectionName)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
