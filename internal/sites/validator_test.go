package sites

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

const areasGeoJSON = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {"id": "north"},
   "geometry": {"type": "Polygon", "coordinates": [[[0,1],[2,1],[2,2],[0,2],[0,1]]]}},
  {"type": "Feature", "properties": {"id": "south"},
   "geometry": {"type": "MultiPolygon", "coordinates": [[[[0,0],[2,0],[2,1],[0,1],[0,0]]]]}}
]}`

const sitesGeoJSON = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {"GlobalID": "{AAAA}", "trapping_area": "south", "MODU": 3, "MALL": "None"},
   "geometry": {"type": "Point", "coordinates": [1, 1.5]}},
  {"type": "Feature", "properties": {"GlobalID": "<Null>", "trapping_area": "south", "MODU": 0},
   "geometry": {"type": "Polygon", "coordinates": [[[0.5,0.2],[1.5,0.2],[1.5,0.8],[0.5,0.8],[0.5,0.2]]]}},
  {"type": "Feature", "properties": {"GlobalID": "{CCCC}", "trapping_area": "nan"},
   "geometry": {"type": "Point", "coordinates": [5, 5]}},
  {"type": "Feature", "properties": {"GlobalID": "{DDDD}", "trapping_area": "north"},
   "geometry": {"type": "Point", "coordinates": [7, 7]}}
]}`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newLoadedValidator(t *testing.T, opts ...Option) *Validator {
	t.Helper()
	v := NewValidator(logger.NewDiscardLogger(), opts...)
	require.NoError(t, v.ImportScoutingAreas(writeFixture(t, "areas.geojson", areasGeoJSON)))
	require.NoError(t, v.ImportSurveySites(writeFixture(t, "sites.geojson", sitesGeoJSON), ""))
	return v
}

func strPtr(s string) *string { return &s }

func TestImportNormalizesSentinels(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	sites := v.Sites()
	require.Len(t, sites, 4)
	require.Len(t, v.Areas(), 2)

	assert.Equal(t, strPtr("{AAAA}"), sites[0].GlobalID)
	assert.Equal(t, strPtr("south"), sites[0].AssignedArea)
	mall, ok := sites[0].Attribute("MALL")
	assert.True(t, ok)
	assert.Nil(t, mall)
	modu, _ := sites[0].Attribute("MODU")
	assert.Equal(t, int64(3), modu)

	assert.Nil(t, sites[1].GlobalID, "<Null> is missing")
	assert.Nil(t, sites[2].AssignedArea, "nan is missing")
	assert.Equal(t, "fid:1", sites[1].Label())
}

func TestImportErrors(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	err := v.ImportSurveySites(writeFixture(t, "sites.csv", "a,b\n"), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	err = v.ImportSurveySites(writeFixture(t, "sites.geojson", `{"type": "Feature"`), "")
	require.Error(t, err)
	assert.True(t, errors.IsFormatError(err))

	err = v.ImportScoutingAreas(writeFixture(t, "areas.geojson", `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "properties": {"id": "x"}, "geometry": {"type": "Point", "coordinates": [0, 0]}}]}`))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryGeometry))

	err = v.ImportScoutingAreas(writeFixture(t, "areas.geojson", `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "properties": {"name": "x"},
	   "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}}]}`))
	require.Error(t, err)
	assert.True(t, errors.IsFormatError(err))
}

func TestFindScoutingArea(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	sites := v.Sites()

	got, err := v.FindScoutingArea(sites[0])
	require.NoError(t, err)
	assert.Equal(t, strPtr("north"), got)

	got, err = v.FindScoutingArea(sites[1])
	require.NoError(t, err)
	assert.Equal(t, strPtr("south"), got, "polygon site inside a multipolygon area")

	got, err = v.FindScoutingArea(sites[2])
	require.NoError(t, err)
	assert.Nil(t, got)

	straddling := &SurveySite{Geometry: orb.Polygon{{{0.5, 0.5}, {1.5, 0.5}, {1.5, 1.5}, {0.5, 1.5}, {0.5, 0.5}}}}
	got, err = v.FindScoutingArea(straddling)
	require.NoError(t, err)
	assert.Nil(t, got, "a polygon straddling two areas lies in neither")

	got, err = v.FindScoutingArea(&SurveySite{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

const concaveAreasGeoJSON = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {"id": "horseshoe"},
   "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[6,10],[6,4],[4,4],[4,10],[0,10],[0,0]]]}},
  {"type": "Feature", "properties": {"id": "ring"},
   "geometry": {"type": "Polygon", "coordinates": [
     [[20,0],[30,0],[30,10],[20,10],[20,0]],
     [[24,4],[26,4],[26,6],[24,6],[24,4]]]}}
]}`

func TestFindScoutingAreaConcave(t *testing.T) {
	t.Parallel()

	v := NewValidator(logger.NewDiscardLogger())
	require.NoError(t, v.ImportScoutingAreas(writeFixture(t, "areas.geojson", concaveAreasGeoJSON)))

	rect := func(x0, y0, x1, y1 float64) orb.Polygon {
		return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
	}

	tests := []struct {
		name string
		geom orb.Geometry
		want *string
	}{
		{"bridging the notch", rect(2, 8, 8, 9), nil},
		{"in one arm", rect(1, 6, 3, 9), strPtr("horseshoe")},
		{"below the notch touching its floor", rect(2, 2, 8, 4), strPtr("horseshoe")},
		{"line across the notch", orb.LineString{{2, 8}, {8, 8}}, nil},
		{"point in the notch", orb.Point{5, 8}, nil},
		{"surrounding the hole", rect(22, 2, 28, 8), nil},
		{"beside the hole", rect(21, 1, 23, 9), strPtr("ring")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.FindScoutingArea(&SurveySite{Geometry: tt.geom})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindScoutingAreaAmbiguous(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	overlap, err := newScoutingArea("overlap", orb.Polygon{{{0.5, 1.2}, {3, 1.2}, {3, 3}, {0.5, 3}, {0.5, 1.2}}})
	require.NoError(t, err)
	v.areas = append(v.areas, overlap)

	_, err = v.FindScoutingArea(v.Sites()[0])
	require.Error(t, err)
	var amb *AmbiguityError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []string{"north", "overlap"}, amb.AreaIDs)
	assert.Equal(t, "{AAAA}", amb.Site)

	ok, err := v.VerifyTrappingArea(v.Sites()[0])
	assert.False(t, ok)
	require.ErrorAs(t, err, &amb)

	passed, report := v.VerifySurveySites(nil)
	assert.False(t, passed)
	require.Len(t, report.Ambiguous, 1)
	assert.Equal(t, "{AAAA}", report.Ambiguous[0].Site)

	res := v.CorrectTrappingAreas()
	assert.Equal(t, []string{"{AAAA}"}, res.Ambiguous)
	assert.Equal(t, strPtr("south"), v.Sites()[0].AssignedArea, "ambiguous sites are left alone")
}

func TestVerifyTrappingArea(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	sites := v.Sites()

	tests := []struct {
		name string
		site *SurveySite
		want bool
	}{
		{"mislabelled", sites[0], false},
		{"correct", sites[1], true},
		{"both empty", sites[2], true},
		{"should be blank", sites[3], false},
		{"should not be blank", &SurveySite{Geometry: orb.Point{1, 0.5}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.VerifyTrappingArea(tt.site)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCorrectTrappingAreas(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	sites := v.Sites()

	passed, report := v.VerifySurveySites([]string{CheckGlobalIDUnique})
	assert.False(t, passed)
	require.Len(t, report.Mismatches, 2)
	assert.Equal(t, Mismatch{Site: "{AAAA}", FID: 0, Assigned: strPtr("south"), Discovered: strPtr("north")}, report.Mismatches[0])

	// A stale cache must not drive the correction.
	sites[0].AssignedArea = strPtr("north")

	res := v.CorrectTrappingAreas()
	assert.Equal(t, 1, res.Corrected)
	assert.Empty(t, res.Ambiguous)
	assert.Equal(t, strPtr("north"), sites[0].AssignedArea)
	assert.Nil(t, sites[3].AssignedArea, "site outside every area is blanked")

	passed, _ = v.VerifySurveySites(nil)
	assert.True(t, passed)
}

func TestNorthSouthCorrection(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	site := &SurveySite{FID: 9, Geometry: orb.Point{1, 1.5}, AssignedArea: strPtr("south")}
	v.sites = []*SurveySite{site}

	ok, err := v.VerifyTrappingArea(site)
	require.NoError(t, err)
	assert.False(t, ok)

	res := v.CorrectTrappingAreas()
	assert.Equal(t, 1, res.Corrected)
	assert.Equal(t, strPtr("north"), site.AssignedArea)
}

func TestGlobalIDs(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	sites := v.Sites()
	pattern := regexp.MustCompile(`^\{[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}\}$`)

	kept := v.AssignGlobalID(sites[0], false)
	assert.False(t, kept.Changed)
	assert.Equal(t, "{AAAA}", kept.GlobalID)

	replaced := v.AssignGlobalID(sites[0], true)
	assert.True(t, replaced.Changed)
	assert.Equal(t, strPtr("{AAAA}"), replaced.Previous)
	assert.Regexp(t, pattern, *sites[0].GlobalID)

	assert.Equal(t, 1, v.AssignMissingGlobalIDs())
	assert.Regexp(t, pattern, *sites[1].GlobalID)
	assert.NotEqual(t, *sites[0].GlobalID, *sites[1].GlobalID)
	assert.Zero(t, v.AssignMissingGlobalIDs())
}

func TestVerifyGlobalIDsUnique(t *testing.T) {
	t.Parallel()

	v := newLoadedValidator(t)
	ok, dupes := v.VerifyGlobalIDsUnique()
	assert.True(t, ok)
	assert.Empty(t, dupes)

	sites := v.Sites()
	sites[2].GlobalID = strPtr("{AAAA}")
	sites[3].GlobalID = strPtr("{AAAA}")
	sites[1].GlobalID = strPtr("{BBBB}")
	v.sites = append(v.sites, &SurveySite{FID: 4, GlobalID: strPtr("{BBBB}")})

	ok, dupes = v.VerifyGlobalIDsUnique()
	assert.False(t, ok)
	assert.Equal(t, []string{"{AAAA}", "{BBBB}"}, dupes)

	passed, report := v.VerifySurveySites([]string{CheckTrappingArea})
	assert.False(t, passed)
	assert.Equal(t, []string{"{AAAA}", "{BBBB}"}, report.DuplicateGlobalIDs)
	assert.Equal(t, []CheckResult{
		{Name: CheckGlobalIDUnique, Passed: false},
		{Name: CheckTrappingArea, Skipped: true},
	}, report.Checks)
}

type fakeRecorder struct {
	checks    map[string]bool
	corrected int
}

func (f *fakeRecorder) RecordCheck(check string, passed bool) { f.checks[check] = passed }
func (f *fakeRecorder) RecordCorrections(n int)               { f.corrected += n }

func TestVerifyGlobalIDsUniqueIgnoresCase(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)
	v.sites = []*SurveySite{
		{FID: 0, GlobalID: strPtr("{3f2504e0-4f89-11d3-9a0c-0305e82c3301}")},
		{FID: 1, GlobalID: strPtr("{3F2504E0-4F89-11D3-9A0C-0305E82C3301}")},
		{FID: 2, GlobalID: strPtr("{5A1B2C3D-0000-4000-8000-000000000000}")},
	}

	ok, dupes := v.VerifyGlobalIDsUnique()
	assert.False(t, ok)
	assert.Equal(t, []string{"{3f2504e0-4f89-11d3-9a0c-0305e82c3301}"}, dupes)
}

func TestRecorderAndReport(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{checks: map[string]bool{}}
	v := newLoadedValidator(t, WithRecorder(rec))

	passed, report := v.VerifySurveySites(nil)
	assert.False(t, passed)
	assert.Equal(t, map[string]bool{CheckGlobalIDUnique: true, CheckTrappingArea: false}, rec.checks)

	var buf bytes.Buffer
	require.NoError(t, report.WriteYAML(&buf))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, false, decoded["passed"])
	assert.Equal(t, 4, decoded["sites"])
	mismatches, ok := decoded["mismatches"].([]any)
	require.True(t, ok)
	assert.Len(t, mismatches, 2)

	v.CorrectTrappingAreas()
	assert.Equal(t, 2, rec.corrected)
}

func TestSaveGeoJSONSites(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "sites.geojson", sitesGeoJSON)
	require.NoError(t, os.Chmod(path, 0o644))
	v := NewValidator(nil)
	require.NoError(t, v.ImportScoutingAreas(writeFixture(t, "areas.geojson", areasGeoJSON)))
	require.NoError(t, v.ImportSurveySites(path, ""))

	v.AssignMissingGlobalIDs()
	v.CorrectTrappingAreas()
	require.NoError(t, v.SaveSurveySites())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm(), "group readers keep access")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Features, 4)
	assert.Equal(t, "north", doc.Features[0].Properties["trapping_area"])
	assert.InDelta(t, 3, doc.Features[0].Properties["MODU"], 0)
	assert.Nil(t, doc.Features[0].Properties["MALL"])
	assert.Nil(t, doc.Features[3].Properties["trapping_area"])

	reloaded := newLoadedValidator(t)
	require.NoError(t, reloaded.ImportSurveySites(path, ""))
	assert.NotNil(t, reloaded.Sites()[1].GlobalID)
	passed, _ := reloaded.VerifySurveySites(nil)
	assert.True(t, passed)
}

func TestSaveWithoutImport(t *testing.T) {
	t.Parallel()

	err := NewValidator(nil).SaveSurveySites()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}
