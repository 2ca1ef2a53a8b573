// Package grimoire implements the curated prompt library: inscribe,
// search, favorite, usage count, and score, all stored in one KV
// collection and always listed in favorite/score/usage order.
package grimoire

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floegence/forge/internal/forgeerr"
	"github.com/floegence/forge/internal/kv"
	"github.com/floegence/forge/internal/searchindex"
)

const (
	collection = "grimoire"
	indexKind  = "grimoire"
)

// Entry is one Grimoire spell.
type Entry struct {
	ID        string         `json:"id"`
	Prompt    string         `json:"prompt"`
	Tags      []string       `json:"tags"`
	Category  string         `json:"category"`
	Favorite  bool           `json:"favorite"`
	Score     *float64       `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UsedCount int            `json:"usedCount"`
}

// Store is the Grimoire component.
type Store struct {
	kv    *kv.Store
	index *searchindex.Index
}

func New(kvStore *kv.Store) *Store {
	return &Store{kv: kvStore}
}

// SetIndex attaches a Search Index that Inscribe/mutate/Delete keep in
// sync and Search queries in preference to the in-memory scan.
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
	text := e.Prompt
	if e.Category != "" {
		text += " " + e.Category
	}
	return searchindex.Row{Kind: indexKind, ID: e.ID, Text: text, Tags: e.Tags, At: e.CreatedAt}
}

// Inscribe creates a new entry with a freshly minted, permanent id.
func (s *Store) Inscribe(prompt string, tags []string, category string, metadata map[string]any) (Entry, error) {
	entry := Entry{
		ID:        uuid.NewString(),
		Prompt:    strings.TrimSpace(prompt),
		Tags:      append([]string(nil), tags...),
		Category:  strings.TrimSpace(category),
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.kv.Set(collection, entry.ID, entry); err != nil {
		return Entry{}, err
	}
	if s.index != nil {
		_ = s.index.Upsert(entryIndexRow(entry))
	}
	return entry, nil
}

// Get fetches one entry by id.
func (s *Store) Get(id string) (Entry, bool, error) {
	var e Entry
	found, err := s.kv.Get(collection, id, &e)
	return e, found, err
}

// SearchOptions filters Search/List.
type SearchOptions struct {
	Query    string
	Tag      string
	Category string
	Favorite *bool
	Limit    int
}

// Search returns entries matching the given filters, sorted
// favorite DESC, score DESC, usedCount DESC. The free-text query runs
// through the Search Index when one is attached; tag/category/favorite
// filters always run as an in-memory pass since they're cheap and the
// index only carries free text.
func (s *Store) Search(opts SearchOptions) ([]Entry, error) {
	q := strings.ToLower(strings.TrimSpace(opts.Query))
	tag := strings.ToLower(strings.TrimSpace(opts.Tag))
	category := strings.ToLower(strings.TrimSpace(opts.Category))

	candidates, err := s.queryCandidates(opts.Query)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range candidates {
		if category != "" && strings.ToLower(e.Category) != category {
			continue
		}
		if opts.Favorite != nil && e.Favorite != *opts.Favorite {
			continue
		}
		if tag != "" && !hasTag(e.Tags, tag) {
			continue
		}
		if q != "" && s.index == nil && !matchesQuery(e, q) {
			continue
		}
		out = append(out, e)
	}

	sortEntries(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// queryCandidates resolves the free-text query against the Search
// Index when one is attached, falling back to every entry otherwise
// (the caller's own matchesQuery pass then narrows it).
func (s *Store) queryCandidates(query string) ([]Entry, error) {
	q := strings.TrimSpace(query)
	if q != "" && s.index != nil {
		if rows, err := s.index.Search(indexKind, q, 0); err == nil && rows != nil {
			out := make([]Entry, 0, len(rows))
			for _, r := range rows {
				if e, found, err := s.Get(r.ID); err == nil && found {
					out = append(out, e)
				}
			}
			return out, nil
		}
	}
	return s.allEntries()
}

func matchesQuery(e Entry, q string) bool {
	if strings.Contains(strings.ToLower(e.Prompt), q) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Category), q) {
		return true
	}
	return hasTag(e.Tags, q)
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), want) {
			return true
		}
	}
	return false
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Favorite != entries[j].Favorite {
			return entries[i].Favorite
		}
		si, sj := scoreOrZero(entries[i]), scoreOrZero(entries[j])
		if si != sj {
			return si > sj
		}
		return entries[i].UsedCount > entries[j].UsedCount
	})
}

func scoreOrZero(e Entry) float64 {
	if e.Score == nil {
		return 0
	}
	return *e.Score
}

// ToggleFavorite flips the favorite flag on id.
func (s *Store) ToggleFavorite(id string) (Entry, error) {
	return s.mutate(id, func(e *Entry) { e.Favorite = !e.Favorite })
}

// RecordUse increments the usage counter on id.
func (s *Store) RecordUse(id string) (Entry, error) {
	return s.mutate(id, func(e *Entry) { e.UsedCount++ })
}

// UpdateScore sets the score on id.
func (s *Store) UpdateScore(id string, score float64) (Entry, error) {
	return s.mutate(id, func(e *Entry) { e.Score = &score })
}

func (s *Store) mutate(id string, fn func(*Entry)) (Entry, error) {
	var e Entry
	found, err := s.kv.Get(collection, id, &e)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, forgeerr.ErrNotFound
	}
	fn(&e)
	if err := s.kv.Set(collection, id, e); err != nil {
		return Entry{}, err
	}
	if s.index != nil {
		_ = s.index.Upsert(entryIndexRow(e))
	}
	return e, nil
}

// Delete removes an entry permanently. Ids are never reused afterward by
// the caller's convention, but nothing here prevents a new Inscribe from
// minting a colliding uuid in practice that never happens.
func (s *Store) Delete(id string) error {
	_, err := s.kv.Delete(collection, id)
	if err != nil {
		return err
	}
	if s.index != nil {
		_ = s.index.Delete(indexKind, id)
	}
	return nil
}

// Stats summarizes the Grimoire's contents.
type Stats struct {
	Total      int
	ByTag      map[string]int
	ByCategory map[string]int
	MeanScore  float64
	TopUsed    []Entry
}

func (s *Store) Stats() (Stats, error) {
	all, err := s.allEntries()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByTag: map[string]int{}, ByCategory: map[string]int{}}
	var sumScore float64
	var scored int
	for _, e := range all {
		stats.Total++
		if e.Category != "" {
			stats.ByCategory[e.Category]++
		}
		for _, t := range e.Tags {
			stats.ByTag[t]++
		}
		if e.Score != nil {
			sumScore += *e.Score
			scored++
		}
	}
	if scored > 0 {
		stats.MeanScore = sumScore / float64(scored)
	}

	top := append([]Entry(nil), all...)
	sort.Slice(top, func(i, j int) bool { return top[i].UsedCount > top[j].UsedCount })
	if len(top) > 5 {
		top = top[:5]
	}
	stats.TopUsed = top

	return stats, nil
}

func (s *Store) allEntries() ([]Entry, error) {
	raw := map[string]Entry{}
	if err := s.kv.All(collection, &raw); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		out = append(out, e)
	}
	return out, nil
}
