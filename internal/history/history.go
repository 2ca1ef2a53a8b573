// Package history persists every generation run's metadata and
// artifact, keeping the two in two independent KV collections keyed by
// the same opaque id.
package history

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floegence/forge/internal/kv"
	"github.com/floegence/forge/internal/searchindex"
	"github.com/floegence/forge/internal/validator"
)

const (
	metaCollection = "history_meta"
	codeCollection = "history_code"
	indexKind      = "history"
)

// Entry is one history record's metadata (the HTML lives separately).
type Entry struct {
	ID                 string          `json:"id"`
	Prompt             string          `json:"prompt"`
	EnhancedPromptHash string          `json:"enhancedPromptHash"`
	Model              string          `json:"model"`
	Provider           string          `json:"provider"`
	Score              validator.Score `json:"score"`
	Grade              string          `json:"grade"`
	CodeLength         int             `json:"codeLength"`
	Style              string          `json:"style"`
	Tags               []string        `json:"tags"`
	At                 time.Time       `json:"at"`
}

type codeRecord struct {
	HTML string `json:"html"`
}

// Store is the History component.
type Store struct {
	kv    *kv.Store
	index *searchindex.Index
}

func New(kvStore *kv.Store) *Store {
	return &Store{kv: kvStore}
}

// SetIndex attaches a Search Index that Record/Delete keep in sync and
// Search queries in preference to the in-memory scan. A nil index
// restores the plain linear-scan behavior.
func (s *Store) SetIndex(idx *searchindex.Index) {
	s.index = idx
}

// IndexRows returns every entry flattened to Search Index rows, for a
// full Reindex.
func (s *Store) IndexRows() ([]searchindex.Row, error) {
	all, err := s.allEntries()
	if err != nil {
		return nil, err
	}
	rows := make([]searchindex.Row, 0, len(all))
	for _, e := range all {
		rows = append(rows, entryIndexRow(e))
	}
	return rows, nil
}

func entryIndexRow(e Entry) searchindex.Row {
	return searchindex.Row{Kind: indexKind, ID: e.ID, Text: e.Prompt, Tags: e.Tags, At: e.At}
}

// Record appends a new entry and its artifact, returning the opaque id
// assigned to both.
func (s *Store) Record(entry Entry, html string) (string, error) {
	id := entry.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	entry.ID = id
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	entry.Grade = entry.Score.Grade
	entry.CodeLength = len(html)

	if err := s.kv.Set(metaCollection, id, entry); err != nil {
		return "", err
	}
	if err := s.kv.Set(codeCollection, id, codeRecord{HTML: html}); err != nil {
		return "", err
	}
	if s.index != nil {
		// Best-effort: the Search Index is derived and rebuildable, so a
		// failed write here never fails the record itself.
		_ = s.index.Upsert(entryIndexRow(entry))
	}
	return id, nil
}

// ListOptions filters List.
type ListOptions struct {
	Provider string
	MinGrade string
	Limit    int
}

var gradeRank = map[string]int{"S": 5, "A": 4, "B": 3, "C": 2, "D": 1}

// List returns entries newest-first, applying the given filters.
func (s *Store) List(opts ListOptions) ([]Entry, error) {
	all, err := s.allEntries()
	if err != nil {
		return nil, err
	}

	minRank := 0
	if opts.MinGrade != "" {
		minRank = gradeRank[strings.ToUpper(opts.MinGrade)]
	}

	filtered := make([]Entry, 0, len(all))
	for _, e := range all {
		if opts.Provider != "" && e.Provider != opts.Provider {
			continue
		}
		if minRank > 0 && gradeRank[e.Grade] < minRank {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].At.After(filtered[j].At) })

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// Search matches against prompt text and tags, using the Search Index
// when one is attached and falling back to a case-insensitive linear
// scan otherwise.
func (s *Store) Search(query string) ([]Entry, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	if s.index != nil {
		if rows, err := s.index.Search(indexKind, q, 0); err == nil && rows != nil {
			out := make([]Entry, 0, len(rows))
			for _, r := range rows {
				if e, found, err := s.Get(r.ID); err == nil && found {
					out = append(out, e)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
			return out, nil
		}
	}

	all, err := s.allEntries()
	if err != nil {
		return nil, err
	}
	ql := strings.ToLower(q)

	var out []Entry
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.Prompt), ql) {
			out = append(out, e)
			continue
		}
		for _, tag := range e.Tags {
			if strings.Contains(strings.ToLower(tag), ql) {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

// Stats aggregates totals by provider and grade, plus mean axis scores.
type Stats struct {
	Total         int
	ByProvider    map[string]int
	ByGrade       map[string]int
	MeanConatus   float64
	MeanRatio     float64
	MeanLaetitia  float64
	MeanNatura    float64
}

func (s *Store) Stats() (Stats, error) {
	all, err := s.allEntries()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByProvider: map[string]int{}, ByGrade: map[string]int{}}
	var sumC, sumR, sumL, sumN float64
	for _, e := range all {
		stats.Total++
		stats.ByProvider[e.Provider]++
		stats.ByGrade[e.Grade]++
		sumC += e.Score.Conatus
		sumR += e.Score.Ratio
		sumL += e.Score.Laetitia
		sumN += e.Score.Natura
	}
	if stats.Total > 0 {
		n := float64(stats.Total)
		stats.MeanConatus = sumC / n
		stats.MeanRatio = sumR / n
		stats.MeanLaetitia = sumL / n
		stats.MeanNatura = sumN / n
	}
	return stats, nil
}

// Get returns metadata for id.
func (s *Store) Get(id string) (Entry, bool, error) {
	var e Entry
	found, err := s.kv.Get(metaCollection, id, &e)
	return e, found, err
}

// GetCode returns the stored HTML artifact for id.
func (s *Store) GetCode(id string) (string, bool, error) {
	var rec codeRecord
	found, err := s.kv.Get(codeCollection, id, &rec)
	return rec.HTML, found, err
}

// Delete removes both the metadata and artifact side for id.
func (s *Store) Delete(id string) error {
	if _, err := s.kv.Delete(metaCollection, id); err != nil {
		return err
	}
	if _, err := s.kv.Delete(codeCollection, id); err != nil {
		return err
	}
	if s.index != nil {
		_ = s.index.Delete(indexKind, id)
	}
	return nil
}

func (s *Store) allEntries() ([]Entry, error) {
	raw := map[string]Entry{}
	if err := s.kv.All(metaCollection, &raw); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		out = append(out, e)
	}
	return out, nil
}
