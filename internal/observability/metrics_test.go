package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbio/sightings/internal/ebird"
	"github.com/fieldbio/sightings/internal/observation"
	"github.com/fieldbio/sightings/internal/sites"
)

func TestNewMetricsIndependentRegistries(t *testing.T) {
	t.Parallel()

	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)
	assert.NotSame(t, a.registry, b.registry)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Sightings.RecordPull("motduc", 12, 0)
	m.Sightings.RecordPull("x00004", 3, 2)
	m.Sightings.RecordMerge(&observation.MergeResult{
		RegionCode: "US-FL-095",
		Checklists: 13,
		New:        4,
		Drifted:    []observation.Drift{{ChecklistID: "S1", Previous: 5, Current: 8}},
	})
	m.Sites.RecordCheck(sites.CheckTrappingArea, false)
	m.Sites.RecordCorrections(2)
	m.EBird.RecordClient(ebird.Metrics{APICalls: 3, APIErrors: 1, CacheMisses: 1, TotalDuration: 1500 * time.Millisecond})

	assert.Equal(t, 1, testutil.CollectAndCount(m.Sites, "sites_checks_total"))

	path := filepath.Join(t.TempDir(), "sightings.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `sightings_observations_pulled_total{species_code="motduc"} 12`)
	assert.Contains(t, text, `sightings_observations_lumped_total{species_code="x00004"} 2`)
	assert.Contains(t, text, `sightings_checklists_new_total{region="US-FL-095"} 4`)
	assert.Contains(t, text, `sightings_checklists_drifted_total{region="US-FL-095"} 1`)
	assert.Contains(t, text, `sites_checks_total{check="trapping_area",status="failed"} 1`)
	assert.Contains(t, text, `sites_trapping_area_corrections_total 2`)
	assert.Contains(t, text, `ebird_api_calls_total 3`)
	assert.Contains(t, text, `ebird_api_errors_total 1`)
	assert.Contains(t, text, `ebird_request_duration_seconds_total 1.5`)
}
