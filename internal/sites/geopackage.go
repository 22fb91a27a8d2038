package sites

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

// GeoPackage binary header flags.
const (
	gpkgMagic0        = 'G'
	gpkgMagic1        = 'P'
	gpkgFlagLittle    = 0x01
	gpkgFlagEmpty     = 0x10
	gpkgEnvelopeShift = 1
	gpkgEnvelopeMask  = 0x07
)

// gpkgEnvelopeSizes maps the envelope indicator to its byte length.
var gpkgEnvelopeSizes = [...]int{0, 32, 48, 48, 64}

// decodeGPKGGeometry strips the GeoPackage header and decodes the WKB body.
// An empty geometry decodes to nil.
func decodeGPKGGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < 8 || blob[0] != gpkgMagic0 || blob[1] != gpkgMagic1 {
		return nil, fmt.Errorf("not a GeoPackage geometry blob")
	}
	flags := blob[3]
	envelope := int(flags>>gpkgEnvelopeShift) & gpkgEnvelopeMask
	if envelope >= len(gpkgEnvelopeSizes) {
		return nil, fmt.Errorf("invalid envelope indicator %d", envelope)
	}
	if flags&gpkgFlagEmpty != 0 {
		return nil, nil
	}
	offset := 8 + gpkgEnvelopeSizes[envelope]
	if len(blob) < offset {
		return nil, fmt.Errorf("truncated GeoPackage header")
	}
	return wkb.Unmarshal(blob[offset:])
}

// geoPackage is an open GeoPackage file.
type geoPackage struct {
	path string
	db   *gorm.DB
}

type gpkgGeometryColumn struct {
	TableName  string `gorm:"column:table_name"`
	ColumnName string `gorm:"column:column_name"`
	SrsID      int32  `gorm:"column:srs_id"`
}

type gpkgTableInfo struct {
	Name string `gorm:"column:name"`
	PK   int    `gorm:"column:pk"`
}

func openGeoPackage(path string, log logger.Logger) (*geoPackage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("gpkg"), 200*time.Millisecond),
	})
	if err != nil {
		return nil, gpkgError(path, "open", err)
	}
	return &geoPackage{path: path, db: db}, nil
}

func (g *geoPackage) close() {
	if sqlDB, err := g.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// featureLayer resolves the layer name, defaulting to the first feature table.
func (g *geoPackage) featureLayer(layer string) (string, error) {
	if layer != "" {
		return layer, nil
	}
	var names []string
	err := g.db.Table("gpkg_contents").
		Where("data_type = ?", "features").
		Order("table_name").
		Pluck("table_name", &names).Error
	if err != nil {
		return "", gpkgError(g.path, "list layers", err)
	}
	if len(names) == 0 {
		return "", errors.Newf("GeoPackage %q has no feature layers", g.path).
			Category(errors.CategoryFileParsing).
			FileContext(g.path).
			Component("sites").
			Build()
	}
	return names[0], nil
}

// layerSchema returns the geometry column, its SRS and the primary key column.
func (g *geoPackage) layerSchema(layer string) (gpkgGeometryColumn, string, error) {
	var col gpkgGeometryColumn
	res := g.db.Table("gpkg_geometry_columns").Where("table_name = ?", layer).Limit(1).Find(&col)
	if res.Error != nil {
		return col, "", gpkgError(g.path, "read geometry columns", res.Error)
	}
	if res.RowsAffected == 0 {
		return col, "", errors.Newf("layer %q is not a feature table in %q", layer, g.path).
			Category(errors.CategoryFileParsing).
			FileContext(g.path).
			Context("layer", layer).
			Component("sites").
			Build()
	}

	var info []gpkgTableInfo
	if err := g.db.Raw("SELECT name, pk FROM pragma_table_info(?)", layer).Scan(&info).Error; err != nil {
		return col, "", gpkgError(g.path, "read table info", err)
	}
	pk := "fid"
	for _, c := range info {
		if c.PK == 1 {
			pk = c.Name
			break
		}
	}
	return col, pk, nil
}

// gpkgRow is one feature row with columns in table order.
type gpkgRow struct {
	fid      int64
	geometry orb.Geometry
	columns  []Attribute
}

// readLayer reads all rows of a feature table.
func (g *geoPackage) readLayer(layer string) ([]gpkgRow, error) {
	geomCol, pk, err := g.layerSchema(layer)
	if err != nil {
		return nil, err
	}

	rows, err := g.db.Table(layer).Order(quoteIdent(pk)).Rows()
	if err != nil {
		return nil, gpkgError(g.path, "query layer", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, gpkgError(g.path, "read columns", err)
	}

	var out []gpkgRow
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, gpkgError(g.path, "scan row", err)
		}

		var row gpkgRow
		for i, name := range names {
			switch {
			case name == pk:
				row.fid, _ = values[i].(int64)
			case name == geomCol.ColumnName:
				blob, _ := values[i].([]byte)
				geom, err := decodeGPKGGeometry(blob)
				if err != nil {
					return nil, errors.Newf("layer %q row %v: %w", layer, row.fid, err).
						Category(errors.CategoryGeometry).
						FileContext(g.path).
						Component("sites").
						Build()
				}
				row.geometry = geom
			default:
				row.columns = append(row.columns, Attribute{Name: name, Value: values[i]})
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, gpkgError(g.path, "iterate rows", err)
	}
	return out, nil
}

// updateSites writes global ids and assigned areas back to their rows,
// adding the global id column when the layer has none.
func (g *geoPackage) updateSites(layer string, sites []*SurveySite, globalIDCol, areaField string) error {
	_, pk, err := g.layerSchema(layer)
	if err != nil {
		return err
	}

	if !g.db.Migrator().HasColumn(layer, globalIDCol) {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(layer), quoteIdent(globalIDCol))
		if err := g.db.Exec(stmt).Error; err != nil {
			return gpkgError(g.path, "add global id column", err)
		}
	}

	return g.db.Transaction(func(tx *gorm.DB) error {
		for _, s := range sites {
			err := tx.Table(layer).
				Where(quoteIdent(pk)+" = ?", s.FID).
				Updates(map[string]any{
					globalIDCol: optional(s.GlobalID),
					areaField:   optional(s.AssignedArea),
				}).Error
			if err != nil {
				return gpkgError(g.path, "update site "+s.Label(), err)
			}
		}
		return nil
	})
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func gpkgError(path, op string, err error) error {
	return errors.Newf("GeoPackage %s failed: %w", op, err).
		Category(errors.CategoryDatabase).
		FileContext(path).
		Context("operation", op).
		Component("sites").
		Build()
}
