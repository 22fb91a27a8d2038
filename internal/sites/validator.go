package sites

import (
	"path/filepath"
	"strings"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

// globalIDField is the attribute name global ids are written under when the
// input had none.
const globalIDField = "GlobalID"

// Default attribute names.
const (
	DefaultAreaField = "trapping_area"
	DefaultIDField   = "id"
)

type fileFormat int

const (
	formatGeoJSON fileFormat = iota
	formatGeoPackage
)

func detectFormat(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return formatGeoJSON, nil
	case ".gpkg":
		return formatGeoPackage, nil
	default:
		return 0, errors.Newf("unsupported geometry file %q: want .geojson, .json or .gpkg", path).
			Category(errors.CategoryValidation).
			FileContext(path).
			Component("sites").
			Build()
	}
}

// Recorder receives verification outcomes, typically to export them as metrics.
type Recorder interface {
	RecordCheck(check string, passed bool)
	RecordCorrections(corrected int)
}

type nopRecorder struct{}

func (nopRecorder) RecordCheck(string, bool) {}
func (nopRecorder) RecordCorrections(int)    {}

// sitesSource remembers where survey sites were imported from so they can
// be written back in the same format.
type sitesSource struct {
	path        string
	layer       string
	format      fileFormat
	globalIDKey string
}

// Validator holds survey sites and scouting areas for one validation session.
// It is not safe for concurrent use.
type Validator struct {
	log       logger.Logger
	recorder  Recorder
	areaField string
	idField   string

	sites  []*SurveySite
	areas  []ScoutingArea
	source sitesSource

	// discovered holds, for each site that failed its last trapping-area
	// check, the area it was found in.
	discovered map[*SurveySite]*string
}

// Option configures a Validator.
type Option func(*Validator)

// WithAreaField sets the site attribute holding the assigned scouting area.
func WithAreaField(name string) Option {
	return func(v *Validator) {
		if name != "" {
			v.areaField = name
		}
	}
}

// WithIDField sets the scouting-area attribute holding the area id.
func WithIDField(name string) Option {
	return func(v *Validator) {
		if name != "" {
			v.idField = name
		}
	}
}

// WithRecorder sets the verification outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(v *Validator) {
		if r != nil {
			v.recorder = r
		}
	}
}

// NewValidator returns an empty validator.
func NewValidator(log logger.Logger, opts ...Option) *Validator {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	v := &Validator{
		log:        log.Module("sites"),
		recorder:   nopRecorder{},
		areaField:  DefaultAreaField,
		idField:    DefaultIDField,
		discovered: make(map[*SurveySite]*string),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Sites returns the imported survey sites. Changes made through the
// returned pointers are seen by the validator.
func (v *Validator) Sites() []*SurveySite { return v.sites }

// Areas returns the imported scouting areas.
func (v *Validator) Areas() []ScoutingArea { return v.areas }

// ImportSurveySites replaces the survey sites with those in path. layer
// names the GeoPackage feature table and is ignored for GeoJSON; an empty
// layer selects the first feature table.
func (v *Validator) ImportSurveySites(path, layer string) error {
	format, err := detectFormat(path)
	if err != nil {
		return err
	}

	var (
		sites []*SurveySite
		src   = sitesSource{path: path, format: format}
	)
	switch format {
	case formatGeoJSON:
		fc, err := readGeoJSONFeatures(path)
		if err != nil {
			return err
		}
		sites, src.globalIDKey = sitesFromGeoJSON(fc, v.areaField)
	case formatGeoPackage:
		sites, src.layer, src.globalIDKey, err = v.readGeoPackageSites(path, layer)
		if err != nil {
			return err
		}
	}
	if src.globalIDKey == "" {
		src.globalIDKey = globalIDField
	}

	v.sites = sites
	v.source = src
	clear(v.discovered)
	v.log.Info("Imported survey sites",
		logger.String("file", path),
		logger.String("layer", src.layer),
		logger.Int("sites", len(sites)))
	return nil
}

func (v *Validator) readGeoPackageSites(path, layer string) ([]*SurveySite, string, string, error) {
	gp, err := openGeoPackage(path, v.log)
	if err != nil {
		return nil, "", "", err
	}
	defer gp.close()

	layer, err = gp.featureLayer(layer)
	if err != nil {
		return nil, "", "", err
	}
	rows, err := gp.readLayer(layer)
	if err != nil {
		return nil, "", "", err
	}

	var globalIDKey string
	sites := make([]*SurveySite, 0, len(rows))
	for _, row := range rows {
		site := &SurveySite{FID: row.fid, Geometry: row.geometry}
		for _, col := range row.columns {
			switch {
			case strings.EqualFold(col.Name, globalIDField):
				site.GlobalID = textValue(col.Value)
				globalIDKey = col.Name
			case col.Name == v.areaField:
				site.AssignedArea = textValue(col.Value)
			default:
				site.Attributes = append(site.Attributes, Attribute{Name: col.Name, Value: normalizeValue(col.Value)})
			}
		}
		sites = append(sites, site)
	}
	return sites, layer, globalIDKey, nil
}

// ImportScoutingAreas replaces the scouting areas with those in path.
func (v *Validator) ImportScoutingAreas(path string) error {
	format, err := detectFormat(path)
	if err != nil {
		return err
	}

	var areas []ScoutingArea
	switch format {
	case formatGeoJSON:
		fc, err := readGeoJSONFeatures(path)
		if err != nil {
			return err
		}
		if areas, err = areasFromGeoJSON(path, fc, v.idField); err != nil {
			return err
		}
	case formatGeoPackage:
		if areas, err = v.readGeoPackageAreas(path); err != nil {
			return err
		}
	}

	v.areas = areas
	clear(v.discovered)
	v.log.Info("Imported scouting areas",
		logger.String("file", path),
		logger.Int("areas", len(areas)))
	return nil
}

func (v *Validator) readGeoPackageAreas(path string) ([]ScoutingArea, error) {
	gp, err := openGeoPackage(path, v.log)
	if err != nil {
		return nil, err
	}
	defer gp.close()

	layer, err := gp.featureLayer("")
	if err != nil {
		return nil, err
	}
	rows, err := gp.readLayer(layer)
	if err != nil {
		return nil, err
	}

	areas := make([]ScoutingArea, 0, len(rows))
	for _, row := range rows {
		var id *string
		for _, col := range row.columns {
			if col.Name == v.idField {
				id = textValue(col.Value)
			}
		}
		if id == nil {
			return nil, errors.Newf("scouting area row %d has no %q value", row.fid, v.idField).
				Category(errors.CategoryFileParsing).
				FileContext(path).
				Context("layer", layer).
				Component("sites").
				Build()
		}
		area, err := newScoutingArea(*id, row.geometry)
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryGeometry).
				FileContext(path).
				Component("sites").
				Build()
		}
		areas = append(areas, area)
	}
	return areas, nil
}

// SaveSurveySites writes global ids and assigned areas back to the file the
// sites were imported from. GeoPackage rows are updated in place; GeoJSON
// files are rewritten.
func (v *Validator) SaveSurveySites() error {
	src := v.source
	if src.path == "" {
		return errors.Newf("no survey sites imported").
			Category(errors.CategoryState).
			Component("sites").
			Build()
	}

	switch src.format {
	case formatGeoPackage:
		gp, err := openGeoPackage(src.path, v.log)
		if err != nil {
			return err
		}
		defer gp.close()
		if err := gp.updateSites(src.layer, v.sites, src.globalIDKey, v.areaField); err != nil {
			return err
		}
	default:
		if err := writeGeoJSONSites(src.path, v.sites, src.globalIDKey, v.areaField); err != nil {
			return err
		}
	}

	v.log.Info("Saved survey sites",
		logger.String("file", src.path),
		logger.String("layer", src.layer),
		logger.Int("sites", len(v.sites)))
	return nil
}
