package kv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSetGetDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Set("widgets", "a", widget{Name: "a", Count: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got widget
	ok, err := s.Get("widgets", "a", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got.Name != "a" || got.Count != 1 {
		t.Fatalf("Get returned %+v, ok=%v", got, ok)
	}

	deleted, err := s.Delete("widgets", "a")
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}

	ok, err = s.Get("widgets", "a", &got)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected absent key after delete")
	}
}

func TestMissingFileReadsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir)

	keys, err := s.Keys("does-not-exist")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestQueryFilter(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir)

	_ = s.Set("widgets", "a", widget{Name: "a", Count: 1})
	_ = s.Set("widgets", "b", widget{Name: "b", Count: 5})

	matches, err := s.Query("widgets", func(key string, raw json.RawMessage) bool {
		var w widget
		if err := json.Unmarshal(raw, &w); err != nil {
			return false
		}
		return w.Count > 2
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if _, ok := matches["b"]; !ok {
		t.Fatalf("expected key b in matches")
	}
}

func TestCollectionsAndDrop(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir)

	_ = s.Set("alpha", "k", widget{Name: "alpha"})
	_ = s.Set("beta", "k", widget{Name: "beta"})

	cols, err := s.Collections()
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	if len(cols) != 2 || cols[0] != "alpha" || cols[1] != "beta" {
		t.Fatalf("unexpected collections: %v", cols)
	}

	if err := s.Drop("alpha"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alpha.json")); !os.IsNotExist(err) {
		t.Fatalf("expected alpha.json to be removed, stat err=%v", err)
	}
}
