package grimoire

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/floegence/forge/internal/forgeerr"
	"github.com/floegence/forge/internal/kv"
	"github.com/floegence/forge/internal/searchindex"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kv.Open() error = %v", err)
	}
	return New(store)
}

func TestInscribeAssignsIDAndTrimsFields(t *testing.T) {
	g := newStore(t)
	e, err := g.Inscribe("  build a timer  ", []string{"timer", "utility"}, "  productivity  ", nil)
	if err != nil {
		t.Fatalf("Inscribe() error = %v", err)
	}
	if e.ID == "" {
		t.Fatalf("expected a non-empty id")
	}
	if e.Prompt != "build a timer" {
		t.Fatalf("Prompt = %q, want trimmed", e.Prompt)
	}
	if e.Category != "productivity" {
		t.Fatalf("Category = %q, want trimmed", e.Category)
	}

	got, found, err := g.Get(e.ID)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v, want found", found, err)
	}
	if got.Prompt != e.Prompt {
		t.Fatalf("Get() prompt = %q, want %q", got.Prompt, e.Prompt)
	}
}

func TestSearchSortsFavoriteThenScoreThenUsage(t *testing.T) {
	g := newStore(t)
	low, _ := g.Inscribe("low score entry", nil, "", nil)
	mid, _ := g.Inscribe("mid score entry", nil, "", nil)
	fav, _ := g.Inscribe("favorite entry", nil, "", nil)

	if _, err := g.UpdateScore(low.ID, 0.2); err != nil {
		t.Fatalf("UpdateScore() error = %v", err)
	}
	if _, err := g.UpdateScore(mid.ID, 0.9); err != nil {
		t.Fatalf("UpdateScore() error = %v", err)
	}
	if _, err := g.UpdateScore(fav.ID, 0.1); err != nil {
		t.Fatalf("UpdateScore() error = %v", err)
	}
	if _, err := g.ToggleFavorite(fav.ID); err != nil {
		t.Fatalf("ToggleFavorite() error = %v", err)
	}

	results, err := g.Search(SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].ID != fav.ID {
		t.Fatalf("results[0] = %q, want favorite entry first regardless of score", results[0].ID)
	}
	if results[1].ID != mid.ID || results[2].ID != low.ID {
		t.Fatalf("non-favorite entries not sorted by score descending: %+v", results)
	}
}

func TestSearchFiltersByQueryTagCategoryAndFavorite(t *testing.T) {
	g := newStore(t)
	a, _ := g.Inscribe("build a pomodoro timer", []string{"timer", "focus"}, "productivity", nil)
	_, _ = g.Inscribe("build a recipe book", []string{"cooking"}, "lifestyle", nil)

	byQuery, err := g.Search(SearchOptions{Query: "pomodoro"})
	if err != nil || len(byQuery) != 1 || byQuery[0].ID != a.ID {
		t.Fatalf("Search(query) = %+v, %v, want just %q", byQuery, err, a.ID)
	}

	byTag, err := g.Search(SearchOptions{Tag: "focus"})
	if err != nil || len(byTag) != 1 || byTag[0].ID != a.ID {
		t.Fatalf("Search(tag) = %+v, %v, want just %q", byTag, err, a.ID)
	}

	byCategory, err := g.Search(SearchOptions{Category: "lifestyle"})
	if err != nil || len(byCategory) != 1 {
		t.Fatalf("Search(category) = %+v, %v, want 1 result", byCategory, err)
	}

	favTrue := true
	byFav, err := g.Search(SearchOptions{Favorite: &favTrue})
	if err != nil || len(byFav) != 0 {
		t.Fatalf("Search(favorite=true) = %+v, %v, want none yet", byFav, err)
	}
}

func TestSearchQueryUsesAttachedIndexAndStaysInSyncOnDelete(t *testing.T) {
	g := newStore(t)
	idx, err := searchindex.Open(filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("searchindex.Open() error = %v", err)
	}
	defer func() { _ = idx.Close() }()
	g.SetIndex(idx)

	a, err := g.Inscribe("a cyberpunk inventory tracker", []string{"inventory"}, "tools", nil)
	if err != nil {
		t.Fatalf("Inscribe() error = %v", err)
	}

	found, err := g.Search(SearchOptions{Query: "cyberpunk"})
	if err != nil || len(found) != 1 || found[0].ID != a.ID {
		t.Fatalf("Search() = %+v, %v, want just %q", found, err, a.ID)
	}

	if err := g.Delete(a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	afterDelete, err := g.Search(SearchOptions{Query: "cyberpunk"})
	if err != nil || len(afterDelete) != 0 {
		t.Fatalf("Search() after delete = %+v, %v, want empty", afterDelete, err)
	}
}

func TestToggleFavoriteFlipsState(t *testing.T) {
	g := newStore(t)
	e, _ := g.Inscribe("x", nil, "", nil)
	if e.Favorite {
		t.Fatalf("new entry should not start as favorite")
	}
	after, err := g.ToggleFavorite(e.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite() error = %v", err)
	}
	if !after.Favorite {
		t.Fatalf("expected favorite after first toggle")
	}
	back, err := g.ToggleFavorite(e.ID)
	if err != nil || back.Favorite {
		t.Fatalf("expected favorite to flip back off, got %v, %v", back.Favorite, err)
	}
}

func TestMutateOnMissingIDReturnsErrNotFound(t *testing.T) {
	g := newStore(t)
	_, err := g.ToggleFavorite("does-not-exist")
	if !errors.Is(err, forgeerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordUseIncrementsCounter(t *testing.T) {
	g := newStore(t)
	e, _ := g.Inscribe("x", nil, "", nil)
	for i := 0; i < 3; i++ {
		if _, err := g.RecordUse(e.ID); err != nil {
			t.Fatalf("RecordUse() error = %v", err)
		}
	}
	got, _, _ := g.Get(e.ID)
	if got.UsedCount != 3 {
		t.Fatalf("UsedCount = %d, want 3", got.UsedCount)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	g := newStore(t)
	e, _ := g.Inscribe("x", nil, "", nil)
	if err := g.Delete(e.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, found, err := g.Get(e.ID)
	if err != nil || found {
		t.Fatalf("Get() after delete = found=%v, err=%v, want not found", found, err)
	}
}

func TestStatsAggregatesTagsCategoriesAndMeanScore(t *testing.T) {
	g := newStore(t)
	a, _ := g.Inscribe("a", []string{"timer"}, "productivity", nil)
	b, _ := g.Inscribe("b", []string{"timer", "cooking"}, "lifestyle", nil)
	if _, err := g.UpdateScore(a.ID, 0.5); err != nil {
		t.Fatalf("UpdateScore() error = %v", err)
	}
	if _, err := g.UpdateScore(b.ID, 1.0); err != nil {
		t.Fatalf("UpdateScore() error = %v", err)
	}
	if _, err := g.RecordUse(b.ID); err != nil {
		t.Fatalf("RecordUse() error = %v", err)
	}

	stats, err := g.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("Total = %d, want 2", stats.Total)
	}
	if stats.ByTag["timer"] != 2 {
		t.Fatalf("ByTag[timer] = %d, want 2", stats.ByTag["timer"])
	}
	if stats.ByCategory["productivity"] != 1 || stats.ByCategory["lifestyle"] != 1 {
		t.Fatalf("ByCategory = %+v, want one each", stats.ByCategory)
	}
	if stats.MeanScore != 0.75 {
		t.Fatalf("MeanScore = %v, want 0.75", stats.MeanScore)
	}
	if len(stats.TopUsed) == 0 || stats.TopUsed[0].ID != b.ID {
		t.Fatalf("TopUsed[0] = %+v, want entry b first", stats.TopUsed)
	}
}
