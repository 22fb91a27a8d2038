package observation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fieldbio/sightings/internal/errors"
)

const propSpecies = "species"

// RecentWindow returns the first day of a window of the given number of
// weeks ending today, and today itself, both at midnight UTC.
func RecentWindow(clock clockwork.Clock, weeks int) (start, today time.Time) {
	now := clock.Now().UTC()
	today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -7*weeks), today
}

// Since returns the records observed on or after the calendar day of cutoff.
func (s *Store) Since(cutoff time.Time) []SightingRecord {
	day := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)
	var out []SightingRecord
	for _, r := range s.index.records() {
		if !r.ObservationDate.Day().Before(day) {
			out = append(out, r)
		}
	}
	return out
}

// LabeledSet is a group of records exported under one species label.
type LabeledSet struct {
	Species string
	Records []SightingRecord
}

// Recent returns the records of the last weeks labelled with species.
func (s *Store) Recent(weeks int, species string) LabeledSet {
	start, _ := RecentWindow(s.clock, weeks)
	return LabeledSet{Species: species, Records: s.Since(start)}
}

// RecentFileName names an export covering start through end.
func RecentFileName(prefix string, start, end time.Time) string {
	return fmt.Sprintf("%s_%04d_%02d_%02d__%04d_%02d_%02d.geojson", prefix,
		start.Year(), start.Month(), start.Day(),
		end.Year(), end.Month(), end.Day())
}

// WriteLabeled writes the sets, in order, as one feature collection where
// every feature carries a species property. An existing file is replaced.
func WriteLabeled(path string, sets ...LabeledSet) (int, error) {
	var entries []entry
	for _, set := range sets {
		label, err := json.Marshal(set.Species)
		if err != nil {
			return 0, err
		}
		for _, r := range set.Records {
			entries = append(entries, entry{
				record: r,
				extra:  map[string]json.RawMessage{propSpecies: label},
			})
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, errors.Newf("failed to create export directory: %w", err).
				Category(errors.CategoryFileIO).
				FileContext(path).
				Component("observation").
				Build()
		}
	}
	if err := writeCollection(path, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
