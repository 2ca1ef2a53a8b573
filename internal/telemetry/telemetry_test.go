package telemetry

import (
	"testing"
	"time"

	"github.com/floegence/forge/internal/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kv.Open() error = %v", err)
	}
	return New(store)
}

func TestRecordCapsWindowAtMaxRecordsDroppingOldest(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < maxRecords+10; i++ {
		rec := Record{At: base.Add(time.Duration(i) * time.Minute), Model: "fake/model", Success: true}
		if err := s.Record(rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	records, err := s.all()
	if err != nil {
		t.Fatalf("all() error = %v", err)
	}
	if len(records) != maxRecords {
		t.Fatalf("len(records) = %d, want %d", len(records), maxRecords)
	}
	if records[0].At.Equal(base) {
		t.Fatalf("expected the oldest record to have been dropped")
	}
	wantOldest := base.Add(10 * time.Minute)
	if !records[0].At.Equal(wantOldest) {
		t.Fatalf("records[0].At = %v, want %v", records[0].At, wantOldest)
	}
}

func TestRecordDefaultsAtWhenZero(t *testing.T) {
	s := newTestStore(t)
	if err := s.Record(Record{Model: "fake/model"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	records, err := s.all()
	if err != nil {
		t.Fatalf("all() error = %v", err)
	}
	if len(records) != 1 || records[0].At.IsZero() {
		t.Fatalf("records = %+v, want one record with a non-zero At", records)
	}
}

func TestRollupsAggregatesByUTCCalendarDayOldestFirst(t *testing.T) {
	s := newTestStore(t)
	day1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 5, 0, 0, 0, time.UTC)

	records := []Record{
		{At: day1, Model: "a", InTokens: 10, OutTokens: 5, CostEst: 0.1, DurationMs: 100, Success: true},
		{At: day1.Add(2 * time.Hour), Model: "a", InTokens: 20, OutTokens: 10, CostEst: 0.2, DurationMs: 200, Success: false},
		{At: day2, Model: "b", InTokens: 30, OutTokens: 15, CostEst: 0.3, DurationMs: 300, Success: true},
	}
	for _, r := range records {
		if err := s.Record(r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	rollups, err := s.Rollups()
	if err != nil {
		t.Fatalf("Rollups() error = %v", err)
	}
	if len(rollups) != 2 {
		t.Fatalf("len(rollups) = %d, want 2", len(rollups))
	}
	if rollups[0].Date != "2026-01-01" || rollups[1].Date != "2026-01-02" {
		t.Fatalf("rollups = %+v, want ordered 2026-01-01 then 2026-01-02", rollups)
	}
	if rollups[0].Calls != 2 || rollups[0].Successes != 1 {
		t.Fatalf("rollups[0] = %+v, want Calls=2 Successes=1", rollups[0])
	}
	if rollups[0].InTokens != 30 || rollups[0].OutTokens != 15 {
		t.Fatalf("rollups[0] token totals = %+v, want InTokens=30 OutTokens=15", rollups[0])
	}
	if rollups[1].Calls != 1 || rollups[1].Successes != 1 {
		t.Fatalf("rollups[1] = %+v, want Calls=1 Successes=1", rollups[1])
	}
}

func TestRollupsOnEmptyStoreReturnsNoDays(t *testing.T) {
	s := newTestStore(t)
	rollups, err := s.Rollups()
	if err != nil {
		t.Fatalf("Rollups() error = %v", err)
	}
	if len(rollups) != 0 {
		t.Fatalf("len(rollups) = %d, want 0", len(rollups))
	}
}
