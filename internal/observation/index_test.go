package observation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbio/sightings/internal/ebird"
)

func TestChecklistIndexKeepsSlotsInSync(t *testing.T) {
	t.Parallel()

	ix, err := newChecklistIndex([]entry{
		{record: record("S1", 1, "2024-01-01")},
		{record: record("S2", 2, "2024-01-02")},
	})
	require.NoError(t, err)

	slot, err := ix.insert(entry{record: record("S3", 3, "2024-01-03")})
	require.NoError(t, err)
	assert.Equal(t, 2, slot)

	_, err = ix.insert(entry{record: record("S2", 9, "2024-01-02")})
	require.ErrorIs(t, err, ErrDuplicateChecklist)
	assert.Equal(t, 3, ix.len())

	updated := record("S2", 5, "2024-01-02")
	ix.replace(1, entry{record: updated})
	got, ok := ix.lookup("S2")
	require.True(t, ok)
	assert.Equal(t, 5, ix.at(got).record.IndividualCount)

	assert.Panics(t, func() { ix.replace(0, entry{record: updated}) })

	for i, r := range ix.records() {
		s, ok := ix.lookup(r.ChecklistID)
		require.True(t, ok)
		assert.Equal(t, i, s)
	}
}

func TestParseObsDate(t *testing.T) {
	t.Parallel()

	d, err := ParseObsDate("2024-03-01 07:15")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 07:15", d.String())
	assert.Equal(t, 7, d.Time().Hour())

	d, err = ParseObsDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, d.Time(), d.Day())

	_, err = ParseObsDate("03/01/2024")
	require.Error(t, err)
	assert.True(t, ObsDate{}.IsZero())
}

func TestFromEBirdPresenceOnly(t *testing.T) {
	t.Parallel()

	five := 5
	counted := fromEBird(&ebird.Observation{SubID: "S1", HowMany: &five, Lng: -81, Lat: 28})
	assert.Equal(t, 5, counted.IndividualCount)
	assert.InDelta(t, -81.0, counted.Longitude, 1e-9)

	presence := fromEBird(&ebird.Observation{SubID: "S2"})
	assert.Equal(t, 1, presence.IndividualCount)
}
