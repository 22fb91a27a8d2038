package observation

import (
	"bytes"
	"encoding/json"
	"maps"

	"github.com/fieldbio/sightings/internal/errors"
)

// ErrDuplicateChecklist marks a persisted collection that holds the same
// checklist twice. Such a file was written by a faulty merge and must be
// repaired with Deduplicate before it can be loaded.
var ErrDuplicateChecklist = errors.NewStd("duplicate checklist in persisted collection")

// entry is one slot of the store: the typed record plus any feature
// properties this package does not model, kept for lossless round trips.
type entry struct {
	record SightingRecord
	count  countState
	extra  map[string]json.RawMessage
}

// countState records how the individuals property was persisted. A record
// read without a count holds 0 but is written back the way it was read
// until a merge sets a count.
type countState uint8

const (
	countSet countState = iota
	countNull
	countAbsent
)

// equal is deep equality over record and unmodelled properties.
func (e entry) equal(o entry) bool {
	return e.record.Equal(o.record) && e.count == o.count && maps.EqualFunc(e.extra, o.extra, func(a, b json.RawMessage) bool {
		return bytes.Equal(a, b)
	})
}

// checklistIndex owns the ordered entries and the checklist id → slot map.
// Both are only mutated together, through insert and replace.
type checklistIndex struct {
	entries []entry
	slots   map[string]int
}

// newChecklistIndex builds an index over entries, failing on a repeated checklist id.
func newChecklistIndex(entries []entry) (*checklistIndex, error) {
	ix := &checklistIndex{
		entries: make([]entry, 0, len(entries)),
		slots:   make(map[string]int, len(entries)),
	}
	for i := range entries {
		if _, err := ix.insert(entries[i]); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// len returns the number of indexed checklists.
func (ix *checklistIndex) len() int { return len(ix.entries) }

// lookup returns the slot holding a checklist.
func (ix *checklistIndex) lookup(checklistID string) (int, bool) {
	slot, ok := ix.slots[checklistID]
	return slot, ok
}

// at returns the entry in a slot.
func (ix *checklistIndex) at(slot int) entry { return ix.entries[slot] }

// insert appends a new checklist.
func (ix *checklistIndex) insert(e entry) (int, error) {
	id := e.record.ChecklistID
	if slot, exists := ix.slots[id]; exists {
		return slot, errors.New(ErrDuplicateChecklist).
			Category(errors.CategoryConflict).
			Context("checklist_id", id).
			Context("slot", slot).
			Component("observation").
			Build()
	}
	ix.entries = append(ix.entries, e)
	slot := len(ix.entries) - 1
	ix.slots[id] = slot
	return slot, nil
}

// replace swaps the entry in a slot. The checklist id must not change.
func (ix *checklistIndex) replace(slot int, e entry) {
	if ix.entries[slot].record.ChecklistID != e.record.ChecklistID {
		panic("observation: replace would move checklist " + e.record.ChecklistID + " to another slot")
	}
	ix.entries[slot] = e
}

// records returns a copy of the records in storage order.
func (ix *checklistIndex) records() []SightingRecord {
	out := make([]SightingRecord, len(ix.entries))
	for i := range ix.entries {
		out[i] = ix.entries[i].record
	}
	return out
}

// snapshot returns a copy of the entries in storage order.
func (ix *checklistIndex) snapshot() []entry {
	out := make([]entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}
