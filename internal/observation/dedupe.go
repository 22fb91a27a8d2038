package observation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

// InconsistencyError reports checklists that occur more than once with
// differing content. Which occurrence is correct cannot be decided here.
type InconsistencyError struct {
	ChecklistIDs []string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%d checklist(s) stored more than once with different content: %s",
		len(e.ChecklistIDs), strings.Join(e.ChecklistIDs, ", "))
}

// ErrorCategory lets the enhanced error builder pick up the category.
func (e *InconsistencyError) ErrorCategory() errors.ErrorCategory { return errors.CategoryConflict }

// Deduplicate keeps the first occurrence of every checklist in order and
// drops later occurrences that are identical to it. If any later
// occurrence differs, nothing is returned and the error lists the ids.
func Deduplicate(records []SightingRecord) ([]SightingRecord, error) {
	entries := make([]entry, len(records))
	for i := range records {
		entries[i] = entry{record: records[i]}
	}
	kept, err := dedupeEntries(entries)
	if err != nil {
		return nil, err
	}
	out := make([]SightingRecord, len(kept))
	for i := range kept {
		out[i] = kept[i].record
	}
	return out, nil
}

func dedupeEntries(entries []entry) ([]entry, error) {
	first := make(map[string]int, len(entries))
	kept := make([]entry, 0, len(entries))
	var conflicting []string
	for i := range entries {
		id := entries[i].record.ChecklistID
		at, seen := first[id]
		if !seen {
			first[id] = len(kept)
			kept = append(kept, entries[i])
			continue
		}
		if !kept[at].equal(entries[i]) && !slices.Contains(conflicting, id) {
			conflicting = append(conflicting, id)
		}
	}
	if len(conflicting) > 0 {
		return nil, &InconsistencyError{ChecklistIDs: conflicting}
	}
	return kept, nil
}

// Deduplicate returns the store's records with repeated checklists removed.
// A loaded store is already unique, so this only fails on a corrupted index.
func (s *Store) Deduplicate() ([]SightingRecord, error) {
	kept, err := dedupeEntries(s.index.snapshot())
	if err != nil {
		return nil, err
	}
	out := make([]SightingRecord, len(kept))
	for i := range kept {
		out[i] = kept[i].record
	}
	return out, nil
}

// RepairResult describes a Repair run.
type RepairResult struct {
	Before  int
	After   int
	Written bool
}

// Repair removes identical repeated checklists from the collection at path
// so it can be loaded again. Files with conflicting repeats are left
// untouched and the InconsistencyError is returned.
func Repair(path string, log logger.Logger) (*RepairResult, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	log = log.Module("observation")

	entries, err := readCollection(path)
	if err != nil {
		return nil, err
	}
	kept, err := dedupeEntries(entries)
	if err != nil {
		log.Error("Collection holds conflicting copies of checklists",
			logger.String("file", path),
			logger.Error(err))
		return nil, errors.New(err).
			FileContext(path).
			Component("observation").
			Build()
	}

	res := &RepairResult{Before: len(entries), After: len(kept)}
	if res.Before == res.After {
		log.Info("Collection has no repeated checklists",
			logger.String("file", path),
			logger.Int("checklists", res.After))
		return res, nil
	}
	if err := writeCollection(path, kept); err != nil {
		return nil, err
	}
	res.Written = true
	log.Info("Removed repeated checklists",
		logger.String("file", path),
		logger.Int("removed", res.Before-res.After),
		logger.Int("checklists", res.After))
	return res, nil
}
