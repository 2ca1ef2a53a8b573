// Package telemetry records a rolling window of provider call outcomes
// and rolls them up into per-day summaries. It never blocks a pipeline
// run on a write failure; callers log and move on.
package telemetry

import (
	"sort"
	"time"

	"github.com/floegence/forge/internal/kv"
)

const (
	collection = "telemetry"
	recordsKey = "records"
	maxRecords = 1000
)

// Record is one provider call's outcome.
type Record struct {
	At         time.Time `json:"at"`
	Model      string    `json:"model"`
	InTokens   int       `json:"inTokens"`
	OutTokens  int       `json:"outTokens"`
	CostEst    float64   `json:"costEst"`
	DurationMs int64     `json:"durationMs"`
	Success    bool      `json:"success"`
}

// Store is the Telemetry component.
type Store struct {
	kv *kv.Store
}

func New(kvStore *kv.Store) *Store {
	return &Store{kv: kvStore}
}

// Record appends rec, capping the stored window at the last maxRecords
// entries by dropping the oldest.
func (s *Store) Record(rec Record) error {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	records, err := s.all()
	if err != nil {
		return err
	}
	records = append(records, rec)
	if len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}
	return s.kv.Set(collection, recordsKey, records)
}

func (s *Store) all() ([]Record, error) {
	var records []Record
	found, err := s.kv.Get(collection, recordsKey, &records)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return records, nil
}

// DayRollup aggregates every call recorded on one UTC calendar day.
type DayRollup struct {
	Date       string
	Calls      int
	Successes  int
	InTokens   int
	OutTokens  int
	CostEst    float64
	DurationMs int64
}

// Rollups returns per-day aggregates, oldest day first.
func (s *Store) Rollups() ([]DayRollup, error) {
	records, err := s.all()
	if err != nil {
		return nil, err
	}

	byDay := map[string]*DayRollup{}
	for _, r := range records {
		day := r.At.Format("2006-01-02")
		roll, ok := byDay[day]
		if !ok {
			roll = &DayRollup{Date: day}
			byDay[day] = roll
		}
		roll.Calls++
		if r.Success {
			roll.Successes++
		}
		roll.InTokens += r.InTokens
		roll.OutTokens += r.OutTokens
		roll.CostEst += r.CostEst
		roll.DurationMs += r.DurationMs
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]DayRollup, 0, len(days))
	for _, d := range days {
		out = append(out, *byDay[d])
	}
	return out, nil
}
