package migrations

import (
	"context"
	"encoding/json"

	"github.com/floegence/forge/internal/kv"
)

// Builtin returns forge's own migration set in version order. Each
// migration works directly against KV Store collections rather than
// through History/Grimoire's typed API, the same way the teacher's
// threadstore migrations ALTER TABLE below any service layer — a
// migration exists precisely to repair records a typed API assumes
// are already well-formed.
func Builtin() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "backfill missing style on history entries to \"minimal\"",
			Up:          backfillHistoryStyle,
		},
		{
			Version:     2,
			Description: "backfill missing tags array on history and grimoire entries",
			Up:          backfillTagsArrays,
		},
	}
}

const (
	historyMetaCollection = "history_meta"
	grimoireCollection    = "grimoire"
)

func backfillHistoryStyle(ctx context.Context, store *kv.Store) error {
	return rewriteCollection(store, historyMetaCollection, func(entry map[string]any) bool {
		style, _ := entry["style"].(string)
		if style != "" {
			return false
		}
		entry["style"] = "minimal"
		return true
	})
}

func backfillTagsArrays(ctx context.Context, store *kv.Store) error {
	for _, collection := range []string{historyMetaCollection, grimoireCollection} {
		if err := rewriteCollection(store, collection, func(entry map[string]any) bool {
			if _, ok := entry["tags"].([]any); ok {
				return false
			}
			entry["tags"] = []any{}
			return true
		}); err != nil {
			return err
		}
	}
	return nil
}

// rewriteCollection decodes every value in collection as a generic
// object, applies fix to each, and writes back only the ones fix
// reports it changed. Values are round-tripped as map[string]any
// rather than a concrete struct so a migration never needs to import
// every domain package whose records it might touch.
func rewriteCollection(store *kv.Store, collection string, fix func(map[string]any) bool) error {
	keys, err := store.Keys(collection)
	if err != nil {
		return err
	}
	for _, key := range keys {
		var raw json.RawMessage
		found, err := store.Get(collection, key, &raw)
		if err != nil || !found {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if !fix(entry) {
			continue
		}
		if err := store.Set(collection, key, entry); err != nil {
			return err
		}
	}
	return nil
}
