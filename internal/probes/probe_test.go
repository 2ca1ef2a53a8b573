package probes

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProbe struct {
	name string
	ttl  time.Duration
	hint string
	err  error
	hits int
}

func (f *fakeProbe) Name() string        { return f.name }
func (f *fakeProbe) TTL() time.Duration  { return f.ttl }
func (f *fakeProbe) Hint(ctx context.Context) (string, error) {
	f.hits++
	return f.hint, f.err
}

type memCache struct {
	data map[string]any
}

func newMemCache() *memCache { return &memCache{data: map[string]any{}} }

func (m *memCache) Get(key string) (any, bool) {
	v, ok := m.data[key]
	return v, ok
}
func (m *memCache) Set(key string, value any, ttl time.Duration) { m.data[key] = value }

func TestGatherJoinsNonEmptyHintsInOrder(t *testing.T) {
	reg := NewRegistry(newMemCache())
	reg.Register(&fakeProbe{name: "b", ttl: time.Minute, hint: "second"})
	reg.Register(&fakeProbe{name: "a", ttl: time.Minute, hint: "first"})
	reg.Register(&fakeProbe{name: "c", ttl: time.Minute, hint: ""})

	bundle := reg.Gather(context.Background())
	got := bundle.String()
	want := "second\nfirst"
	if got != want {
		t.Fatalf("bundle = %q, want %q", got, want)
	}
}

func TestFailingProbeContributesNothing(t *testing.T) {
	reg := NewRegistry(newMemCache())
	reg.Register(&fakeProbe{name: "broken", ttl: time.Minute, err: errors.New("boom")})
	reg.Register(&fakeProbe{name: "ok", ttl: time.Minute, hint: "fine"})

	bundle := reg.Gather(context.Background())
	if bundle.String() != "fine" {
		t.Fatalf("bundle = %q, want %q", bundle.String(), "fine")
	}
}

func TestProbeResultIsCachedPerProbe(t *testing.T) {
	c := newMemCache()
	reg := NewRegistry(c)
	p := &fakeProbe{name: "cached", ttl: time.Minute, hint: "hi"}
	reg.Register(p)

	reg.Gather(context.Background())
	reg.Gather(context.Background())

	if p.hits != 1 {
		t.Fatalf("probe called %d times, want 1 (second call should hit cache)", p.hits)
	}
}
