package observation

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

func record(id string, count int, date string) SightingRecord {
	return SightingRecord{
		ChecklistID:     id,
		LocationID:      "L42",
		Coordinates:     orb.Point{-81.4, 28.6},
		ObservationDate: MustObsDate(date),
		IndividualCount: count,
	}
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	a := record("S1", 2, "2024-03-01")
	b := record("S2", 4, "2024-03-02")
	c := a

	got, err := Deduplicate([]SightingRecord{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []SightingRecord{a, b}, got)
}

func TestDeduplicateInconsistent(t *testing.T) {
	t.Parallel()

	a := record("S1", 2, "2024-03-01")
	z := record("S1", 3, "2024-03-01")
	b := record("S2", 1, "2024-03-02")
	b2 := record("S2", 1, "2024-03-03")

	got, err := Deduplicate([]SightingRecord{a, b, z, b2, z})
	require.Error(t, err)
	assert.Nil(t, got)

	var inc *InconsistencyError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []string{"S1", "S2"}, inc.ChecklistIDs)
	assert.Contains(t, err.Error(), "S1, S2")
}

func TestStoreDeduplicateIsIdentityOnLoadedStore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, writeFile(t, "ebird.geojson", sampleCollection), nil)
	require.NoError(t, s.Load(""))

	got, err := s.Deduplicate()
	require.NoError(t, err)
	assert.Equal(t, s.Records(), got)
}

const repeatedFeature = `{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-81.5, 28.7]},
  "properties": {"ebird_subId": "S7", "observation_date": "2024-03-05", "individuals": %d}}`

func TestRepair(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "ebird.geojson", `{"type": "FeatureCollection", "features": [`+
		fmt.Sprintf(repeatedFeature, 3)+`,`+fmt.Sprintf(repeatedFeature, 3)+`]}`)

	res, err := Repair(path, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, &RepairResult{Before: 2, After: 1, Written: true}, res)

	s := newTestStore(t, path, nil)
	require.NoError(t, s.Load(""))
	assert.Equal(t, 1, s.Len())

	res, err = Repair(path, nil)
	require.NoError(t, err)
	assert.False(t, res.Written)
}

func TestRepairRefusesConflicts(t *testing.T) {
	t.Parallel()

	content := `{"type": "FeatureCollection", "features": [` +
		fmt.Sprintf(repeatedFeature, 3) + `,` + fmt.Sprintf(repeatedFeature, 4) + `]}`
	path := writeFile(t, "ebird.geojson", content)

	_, err := Repair(path, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	entries, err := readCollection(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "file must be left as it was")
}

func TestRecentExport(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 29, 15, 4, 0, 0, time.UTC))
	start, today := RecentWindow(clock, 4)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), today)

	src := &fakeSource{bySpecies: map[string][]RawObservation{"motduc": {
		func() RawObservation { o := rawObs("S600000001", 2); o.ObservationDate = "2024-02-29 18:00"; return o }(),
		func() RawObservation { o := rawObs("S600000002", 1); o.ObservationDate = "2024-03-01 06:30"; return o }(),
		func() RawObservation { o := rawObs("S600000003", 5); o.ObservationDate = "2024-03-20"; return o }(),
	}}}
	ducks := newTestStore(t, "", src, WithClock(clock), WithSpeciesCodes("motduc"))
	_, err := ducks.MergeObservations(t.Context(), "US-FL-095", nil)
	require.NoError(t, err)

	mallards := newTestStore(t, "", &fakeSource{bySpecies: map[string][]RawObservation{
		"mallar3": {rawObs("S700000001", 9)},
	}}, WithClock(clock))
	_, err = mallards.MergeObservations(t.Context(), "US-FL-095", []string{"mallar3"})
	require.NoError(t, err)

	modu := ducks.Recent(4, "mottled duck")
	require.Len(t, modu.Records, 2)
	assert.Equal(t, "S600000002", modu.Records[0].ChecklistID)

	name := RecentFileName("modu_x_mall", start, today)
	assert.Equal(t, "modu_x_mall_2024_03_01__2024_03_29.geojson", name)

	out := filepath.Join(t.TempDir(), "exports", name)
	n, err := WriteLabeled(out, modu, mallards.Recent(4, "mallard"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := readCollection(out)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	var label string
	require.NoError(t, json.Unmarshal(entries[2].extra[propSpecies], &label))
	assert.Equal(t, "mallard", label)
	assert.Equal(t, 9, entries[2].record.IndividualCount)
}
