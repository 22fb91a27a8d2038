package observation

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/fileutil"
)

const featureCollectionType = "FeatureCollection"

// Property keys of a persisted sighting feature.
const (
	propChecklistID     = "ebird_subId"
	propLocationID      = "ebird_locid"
	propLocationName    = "ebird_location_name"
	propObservationDate = "observation_date"
	propIndividuals     = "individuals"
	propValid           = "ebird_valid"
	propReviewed        = "ebird_reviewed"
	propLocationPrivate = "locationPrivate"
)

var modelledProps = map[string]struct{}{
	propChecklistID: {}, propLocationID: {}, propLocationName: {}, propObservationDate: {},
	propIndividuals: {}, propValid: {}, propReviewed: {}, propLocationPrivate: {},
}

// sightingProperties is the typed property bag of a persisted feature.
type sightingProperties struct {
	ChecklistID     string `json:"ebird_subId"`
	LocationID      string `json:"ebird_locid"`
	LocationName    string `json:"ebird_location_name"`
	ObservationDate string `json:"observation_date"`
	Individuals     *int   `json:"individuals"`
	Valid           bool   `json:"ebird_valid"`
	Reviewed        bool   `json:"ebird_reviewed"`
	LocationPrivate bool   `json:"locationPrivate"`
}

type collectionDoc struct {
	Type     string          `json:"type"`
	Features json.RawMessage `json:"features"`
}

type featureDoc struct {
	Type       string                     `json:"type"`
	Geometry   *geojson.Geometry          `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// formatError builds the error returned for files that are not a sighting collection.
func formatError(path, reason string, cause error) error {
	b := errors.Newf("file %q is not a sighting feature collection: %s", path, reason)
	if cause != nil {
		b = errors.Newf("file %q is not a sighting feature collection: %s: %w", path, reason, cause)
	}
	return b.Category(errors.CategoryFileParsing).
		FileContext(path).
		Component("observation").
		Build()
}

// readCollection parses a persisted collection without indexing it, so
// files with repeated checklists can still be read for repair.
func readCollection(path string) ([]entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, errors.Newf("failed to read sighting collection: %w", err).
			Category(errors.CategoryFileIO).
			FileContext(path).
			Component("observation").
			Build()
	}

	var doc collectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, formatError(path, "invalid JSON", err)
	}
	if doc.Type != featureCollectionType {
		return nil, formatError(path, "missing or wrong type tag", nil)
	}
	features := bytes.TrimSpace(doc.Features)
	if len(features) == 0 || features[0] != '[' {
		return nil, formatError(path, "features is not an array", nil)
	}

	var raw []featureDoc
	if err := json.Unmarshal(features, &raw); err != nil {
		return nil, formatError(path, "malformed feature", err)
	}

	entries := make([]entry, 0, len(raw))
	for i := range raw {
		e, err := decodeFeature(&raw[i])
		if err != nil {
			return nil, errors.Newf("file %q feature %d: %w", path, i, err).
				Category(errors.CategoryFileParsing).
				FileContext(path).
				Context("feature", i).
				Component("observation").
				Build()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// decodeFeature converts one feature into a typed entry.
func decodeFeature(f *featureDoc) (entry, error) {
	if f.Geometry == nil {
		return entry{}, errors.NewStd("missing geometry")
	}
	pt, ok := f.Geometry.Geometry().(orb.Point)
	if !ok {
		return entry{}, errors.Newf("geometry is %s, want Point", f.Geometry.Type).Build()
	}

	// Re-marshal only the modelled keys into the typed bag.
	modelled := make(map[string]json.RawMessage, len(modelledProps))
	var extra map[string]json.RawMessage
	for k, v := range f.Properties {
		if _, ok := modelledProps[k]; ok {
			modelled[k] = v
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	buf, err := json.Marshal(modelled)
	if err != nil {
		return entry{}, err
	}
	var props sightingProperties
	if err := json.Unmarshal(buf, &props); err != nil {
		return entry{}, err
	}

	if props.ChecklistID == "" {
		return entry{}, errors.Newf("missing %s property", propChecklistID).Build()
	}
	date, err := ParseObsDate(props.ObservationDate)
	if err != nil {
		return entry{}, err
	}
	count, state := 0, countSet
	switch {
	case props.Individuals != nil:
		count = *props.Individuals
	case hasKey(f.Properties, propIndividuals):
		state = countNull
	default:
		state = countAbsent
	}
	if count < 0 {
		return entry{}, errors.Newf("negative individual count %d", count).Build()
	}

	return entry{
		record: SightingRecord{
			ChecklistID:       props.ChecklistID,
			LocationID:        props.LocationID,
			LocationName:      props.LocationName,
			Coordinates:       pt,
			ObservationDate:   date,
			IndividualCount:   count,
			IsValidated:       props.Valid,
			IsReviewed:        props.Reviewed,
			IsLocationPrivate: props.LocationPrivate,
		},
		count: state,
		extra: extra,
	}, nil
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

// encodeFeature converts an entry back into a GeoJSON feature.
func encodeFeature(e entry) (featureDoc, error) {
	r := e.record
	var individuals *int
	if e.count == countSet {
		count := r.IndividualCount
		individuals = &count
	}
	buf, err := json.Marshal(sightingProperties{
		ChecklistID:     r.ChecklistID,
		LocationID:      r.LocationID,
		LocationName:    r.LocationName,
		ObservationDate: r.ObservationDate.String(),
		Individuals:     individuals,
		Valid:           r.IsValidated,
		Reviewed:        r.IsReviewed,
		LocationPrivate: r.IsLocationPrivate,
	})
	if err != nil {
		return featureDoc{}, err
	}
	props := make(map[string]json.RawMessage, len(modelledProps)+len(e.extra))
	if err := json.Unmarshal(buf, &props); err != nil {
		return featureDoc{}, err
	}
	if e.count == countAbsent {
		delete(props, propIndividuals)
	}
	for k, v := range e.extra {
		props[k] = v
	}
	return featureDoc{
		Type:       "Feature",
		Geometry:   geojson.NewGeometry(r.Coordinates),
		Properties: props,
	}, nil
}

// writeCollection replaces path with a collection of entries. The document
// is written to a temporary file in the same directory and renamed into place.
func writeCollection(path string, entries []entry) error {
	features := make([]featureDoc, 0, len(entries))
	for i := range entries {
		f, err := encodeFeature(entries[i])
		if err != nil {
			return errors.Newf("failed to encode checklist %s: %w", entries[i].record.ChecklistID, err).
				Category(errors.CategoryFileParsing).
				Component("observation").
				Build()
		}
		features = append(features, f)
	}

	data, err := json.Marshal(struct {
		Type     string       `json:"type"`
		Features []featureDoc `json:"features"`
	}{featureCollectionType, features})
	if err != nil {
		return errors.Newf("failed to encode sighting collection: %w", err).
			Category(errors.CategoryFileParsing).
			Component("observation").
			Build()
	}

	return atomicWrite(path, data)
}

// atomicWrite replaces path with data, keeping the mode of an existing file.
func atomicWrite(path string, data []byte) error {
	if err := fileutil.WriteAtomic(path, data); err != nil {
		return fileIOError(path, "failed to replace sighting collection", err)
	}
	return nil
}

func fileIOError(path, msg string, cause error) error {
	return errors.Newf("%s: %w", msg, cause).
		Category(errors.CategoryFileIO).
		FileContext(path).
		Component("observation").
		Build()
}

// CreateEmpty writes an empty feature collection at path unless a file is
// already there. Save never creates files; this is the explicit way to start one.
func CreateEmpty(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fileIOError(path, "failed to stat sighting collection", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fileIOError(path, "failed to create directory", err)
		}
	}
	if err := writeCollection(path, nil); err != nil {
		return false, err
	}
	return true, nil
}
