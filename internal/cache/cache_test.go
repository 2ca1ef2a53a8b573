package cache

import (
	"testing"
	"time"
)

func TestSetGetWithinTTL(t *testing.T) {
	c := New(10)
	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("Get = %v, %v", v, ok)
	}
}

func TestExpiredEntryIsAbsent(t *testing.T) {
	c := New(10)
	c.Set("a", 1, -time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to be absent")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	// touch a so it is more recently used than b
	c.Get("a")
	c.Set("c", 3, time.Minute) // should evict b, the LRU entry

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("expected c to be present")
	}
}

func TestHitRate(t *testing.T) {
	c := New(10)
	c.Set("a", 1, time.Minute)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.HitRate() != 0.5 {
		t.Fatalf("HitRate = %v, want 0.5", stats.HitRate())
	}
}

func TestPruneRemovesExpired(t *testing.T) {
	c := New(10)
	c.Set("a", 1, -time.Second)
	c.Set("b", 2, time.Minute)

	removed := c.Prune()
	if removed != 1 {
		t.Fatalf("Prune removed %d, want 1", removed)
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b to survive prune")
	}
}

func TestNamespacePrefixesKeys(t *testing.T) {
	c := New(10)
	ns1 := c.Namespace("n1", time.Minute)
	ns2 := c.Namespace("n2", time.Minute)

	ns1.Set("k", "from-ns1")
	ns2.Set("k", "from-ns2")

	v1, _ := ns1.Get("k")
	v2, _ := ns2.Get("k")
	if v1 != "from-ns1" || v2 != "from-ns2" {
		t.Fatalf("namespace collision: %v, %v", v1, v2)
	}
}
