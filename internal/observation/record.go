// Package observation keeps a persisted, geo-tagged store of eBird checklist
// sightings and merges freshly pulled observations into it.
package observation

import (
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/fieldbio/sightings/internal/errors"
)

// Observation date layouts as returned by eBird: with and without time of day.
const (
	obsDateTimeLayout = "2006-01-02 15:04"
	obsDateLayout     = "2006-01-02"
)

// ObsDate is an eBird observation date. The original text is kept so that a
// load/save cycle reproduces it exactly.
type ObsDate struct {
	raw string
	t   time.Time
}

// ParseObsDate parses "2006-01-02 15:04" or "2006-01-02".
func ParseObsDate(s string) (ObsDate, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{obsDateTimeLayout, obsDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return ObsDate{raw: s, t: t}, nil
		}
	}
	return ObsDate{}, errors.Newf("invalid observation date %q", s).
		Category(errors.CategoryValidation).
		Component("observation").
		Build()
}

// MustObsDate is ParseObsDate for literals known to be valid.
func MustObsDate(s string) ObsDate {
	d, err := ParseObsDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the date exactly as reported.
func (d ObsDate) String() string { return d.raw }

// Time returns the parsed date (UTC, time of day when reported).
func (d ObsDate) Time() time.Time { return d.t }

// Day returns the calendar date at midnight UTC.
func (d ObsDate) Day() time.Time {
	y, m, day := d.t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the date was never set.
func (d ObsDate) IsZero() bool { return d.raw == "" }

// SightingRecord is one merged checklist observation.
type SightingRecord struct {
	ChecklistID       string
	LocationID        string
	LocationName      string
	Coordinates       orb.Point // longitude, latitude (WGS84)
	ObservationDate   ObsDate
	IndividualCount   int
	IsValidated       bool
	IsReviewed        bool
	IsLocationPrivate bool
}

// Longitude of the observation.
func (r SightingRecord) Longitude() float64 { return r.Coordinates.Lon() }

// Latitude of the observation.
func (r SightingRecord) Latitude() float64 { return r.Coordinates.Lat() }

// Equal reports whether two records carry identical values.
func (r SightingRecord) Equal(o SightingRecord) bool {
	return r.ChecklistID == o.ChecklistID &&
		r.LocationID == o.LocationID &&
		r.LocationName == o.LocationName &&
		r.Coordinates.Equal(o.Coordinates) &&
		r.ObservationDate.raw == o.ObservationDate.raw &&
		r.IndividualCount == o.IndividualCount &&
		r.IsValidated == o.IsValidated &&
		r.IsReviewed == o.IsReviewed &&
		r.IsLocationPrivate == o.IsLocationPrivate
}
