package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "secrets.json"))
}

func TestSetThenGetProviderAPIKeyRoundTrips(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetProviderAPIKey("anthropic-direct", "sk-test-123"); err != nil {
		t.Fatalf("SetProviderAPIKey() error = %v", err)
	}
	key, ok, err := s.GetProviderAPIKey("anthropic-direct")
	if err != nil {
		t.Fatalf("GetProviderAPIKey() error = %v", err)
	}
	if !ok || key != "sk-test-123" {
		t.Fatalf("GetProviderAPIKey() = (%q, %v), want (sk-test-123, true)", key, ok)
	}
}

func TestGetProviderAPIKeyOnMissingProviderReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetProviderAPIKey("missing")
	if err != nil {
		t.Fatalf("GetProviderAPIKey() error = %v", err)
	}
	if ok {
		t.Fatalf("expected ok = false for a provider with no stored key")
	}
}

func TestSetProviderAPIKeyRejectsEmptyValues(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetProviderAPIKey("", "sk-test"); err == nil {
		t.Fatalf("expected an error for an empty provider id")
	}
	if err := s.SetProviderAPIKey("anthropic-direct", ""); err == nil {
		t.Fatalf("expected an error for an empty api key")
	}
}

func TestClearProviderAPIKeyRemovesIt(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetProviderAPIKey("gemini", "key-1"); err != nil {
		t.Fatalf("SetProviderAPIKey() error = %v", err)
	}
	if err := s.ClearProviderAPIKey("gemini"); err != nil {
		t.Fatalf("ClearProviderAPIKey() error = %v", err)
	}
	_, ok, err := s.GetProviderAPIKey("gemini")
	if err != nil {
		t.Fatalf("GetProviderAPIKey() error = %v", err)
	}
	if ok {
		t.Fatalf("expected the key to have been cleared")
	}
}

func TestProviderAPIKeySetReportsStatusWithoutLeakingValues(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetProviderAPIKey("gemini", "key-1"); err != nil {
		t.Fatalf("SetProviderAPIKey() error = %v", err)
	}
	status, err := s.ProviderAPIKeySet([]string{"gemini", "openai-compatible"})
	if err != nil {
		t.Fatalf("ProviderAPIKeySet() error = %v", err)
	}
	if !status["gemini"] || status["openai-compatible"] {
		t.Fatalf("status = %+v, want gemini=true openai-compatible=false", status)
	}
}

func TestSavedFileHasRestrictivePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	s := NewStore(path)
	if err := s.SetProviderAPIKey("anthropic-direct", "sk-test"); err != nil {
		t.Fatalf("SetProviderAPIKey() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode = %v, want 0600", perm)
	}
}

func TestApplyProviderAPIKeyPatchesAppliesMultipleAtomically(t *testing.T) {
	s := newTestStore(t)
	keyA, keyB := "key-a", "key-b"
	err := s.ApplyProviderAPIKeyPatches([]APIKeyPatch{
		{ProviderID: "a", APIKey: &keyA},
		{ProviderID: "b", APIKey: &keyB},
	})
	if err != nil {
		t.Fatalf("ApplyProviderAPIKeyPatches() error = %v", err)
	}
	status, err := s.ProviderAPIKeySet([]string{"a", "b"})
	if err != nil {
		t.Fatalf("ProviderAPIKeySet() error = %v", err)
	}
	if !status["a"] || !status["b"] {
		t.Fatalf("status = %+v, want both true", status)
	}
}
