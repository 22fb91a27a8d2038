package sites

import (
	"encoding/json"
	"os"
	"slices"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/fileutil"
)

// readGeoJSONFeatures reads a FeatureCollection file.
func readGeoJSONFeatures(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, errors.Newf("failed to read geometry file: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Component("sites").
			Build()
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Newf("file %q is not a GeoJSON feature collection: %w", path, err).
			Category(errors.CategoryFileParsing).
			FileContext(path).
			Component("sites").
			Build()
	}
	return fc, nil
}

// sortedKeys returns property names in a stable order, since GeoJSON
// objects carry none.
func sortedKeys(p geojson.Properties) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// sitesFromGeoJSON converts features to survey sites. The returned key is
// the property name the global id was found under, if any.
func sitesFromGeoJSON(fc *geojson.FeatureCollection, areaField string) ([]*SurveySite, string) {
	var globalIDKey string
	out := make([]*SurveySite, 0, len(fc.Features))
	for i, f := range fc.Features {
		site := &SurveySite{FID: int64(i), Geometry: f.Geometry}
		for _, k := range sortedKeys(f.Properties) {
			v := f.Properties[k]
			switch {
			case strings.EqualFold(k, globalIDField):
				site.GlobalID = textValue(v)
				globalIDKey = k
			case k == areaField:
				site.AssignedArea = textValue(v)
			default:
				site.Attributes = append(site.Attributes, Attribute{Name: k, Value: normalizeValue(v)})
			}
		}
		out = append(out, site)
	}
	return out, globalIDKey
}

// areasFromGeoJSON converts features to scouting areas.
func areasFromGeoJSON(path string, fc *geojson.FeatureCollection, idField string) ([]ScoutingArea, error) {
	out := make([]ScoutingArea, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := textValue(f.Properties[idField])
		if id == nil && f.ID != nil {
			id = textValue(f.ID)
		}
		if id == nil {
			return nil, errors.Newf("scouting area feature %d has no %q value", i, idField).
				Category(errors.CategoryFileParsing).
				FileContext(path).
				Context("feature", i).
				Component("sites").
				Build()
		}
		area, err := newScoutingArea(*id, f.Geometry)
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryGeometry).
				FileContext(path).
				Component("sites").
				Build()
		}
		out = append(out, area)
	}
	return out, nil
}

// writeGeoJSONSites writes sites as a FeatureCollection, replacing path.
func writeGeoJSONSites(path string, sites []*SurveySite, globalIDKey, areaField string) error {
	fc := geojson.NewFeatureCollection()
	for _, s := range sites {
		f := geojson.NewFeature(s.Geometry)
		for _, a := range s.Attributes {
			f.Properties[a.Name] = a.Value
		}
		f.Properties[globalIDKey] = optional(s.GlobalID)
		f.Properties[areaField] = optional(s.AssignedArea)
		fc.Append(f)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return errors.Newf("failed to encode survey sites: %w", err).
			Category(errors.CategoryFileParsing).
			Component("sites").
			Build()
	}
	return replaceFile(path, data)
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// replaceFile writes data over path, keeping the mode of the existing file.
func replaceFile(path string, data []byte) error {
	if err := fileutil.WriteAtomic(path, data); err != nil {
		return writeError(path, err)
	}
	return nil
}

func writeError(path string, err error) error {
	return errors.Newf("failed to write survey sites: %w", err).
		Category(errors.CategoryFileIO).
		FileContext(path).
		Component("sites").
		Build()
}
