package observation

import (
	"context"

	"github.com/fieldbio/sightings/internal/ebird"
)

// RawObservation is one observation as supplied by an observation source,
// before lumping and reconciliation.
type RawObservation struct {
	ChecklistID       string
	LocationID        string
	LocationName      string
	Longitude         float64
	Latitude          float64
	ObservationDate   string
	IndividualCount   int
	IsValid           bool
	IsReviewed        bool
	IsLocationPrivate bool
}

// Source supplies raw observations of one species code in a region.
// A call either returns the complete response or fails.
type Source interface {
	Observations(ctx context.Context, regionCode, speciesCode string) ([]RawObservation, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, regionCode, speciesCode string) ([]RawObservation, error)

// Observations calls f.
func (f SourceFunc) Observations(ctx context.Context, regionCode, speciesCode string) ([]RawObservation, error) {
	return f(ctx, regionCode, speciesCode)
}

// EBirdSource pulls observations from the eBird recent observations endpoint.
type EBirdSource struct {
	Client *ebird.Client
	Query  ebird.ObservationQuery
}

// Observations implements Source.
func (s *EBirdSource) Observations(ctx context.Context, regionCode, speciesCode string) ([]RawObservation, error) {
	obs, err := s.Client.RecentObservations(ctx, regionCode, speciesCode, s.Query)
	if err != nil {
		return nil, err
	}
	out := make([]RawObservation, 0, len(obs))
	for i := range obs {
		out = append(out, fromEBird(&obs[i]))
	}
	return out, nil
}

// fromEBird maps an eBird row. A presence-only report ("X") counts as one individual.
func fromEBird(o *ebird.Observation) RawObservation {
	count := 1
	if o.HowMany != nil {
		count = *o.HowMany
	}
	return RawObservation{
		ChecklistID:       o.SubID,
		LocationID:        o.LocID,
		LocationName:      o.LocName,
		Longitude:         o.Lng,
		Latitude:          o.Lat,
		ObservationDate:   o.ObsDt,
		IndividualCount:   count,
		IsValid:           o.ObsValid,
		IsReviewed:        o.ObsReviewed,
		IsLocationPrivate: o.LocationPrivate,
	}
}
