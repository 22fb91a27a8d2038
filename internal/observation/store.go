package observation

import (
	"context"
	"os"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

// ErrSaveTargetMissing is returned by Save when the target file does not exist yet.
var ErrSaveTargetMissing = errors.NewStd("save target does not exist")

// Recorder receives merge outcomes, typically to export them as metrics.
type Recorder interface {
	RecordPull(speciesCode string, observations, lumped int)
	RecordMerge(result *MergeResult)
}

type nopRecorder struct{}

func (nopRecorder) RecordPull(string, int, int) {}
func (nopRecorder) RecordMerge(*MergeResult)    {}

// Store holds the sighting records of one persisted collection.
// It is not safe for concurrent use.
type Store struct {
	path         string
	speciesCodes []string
	source       Source
	log          logger.Logger
	recorder     Recorder
	clock        clockwork.Clock

	index  *checklistIndex
	loaded bool
}

// Option configures a Store.
type Option func(*Store)

// WithSpeciesCodes sets the species codes merged when a call supplies none.
func WithSpeciesCodes(codes ...string) Option {
	return func(s *Store) { s.speciesCodes = slices.Clone(codes) }
}

// WithRecorder sets the merge outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock sets the clock used for date windows.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewStore creates an empty store backed by the collection at path.
// source may be nil for stores that are only loaded, filtered and saved.
func NewStore(path string, source Source, log logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	s := &Store{
		path:     path,
		source:   source,
		log:      log.Module("observation"),
		recorder: nopRecorder{},
		clock:    clockwork.NewRealClock(),
		index:    &checklistIndex{slots: map[string]int{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the configured collection path.
func (s *Store) Path() string { return s.path }

// Loaded reports whether Load has succeeded on this store.
func (s *Store) Loaded() bool { return s.loaded }

// Len returns the number of checklists held.
func (s *Store) Len() int { return s.index.len() }

// Records returns a copy of all records in storage order.
func (s *Store) Records() []SightingRecord { return s.index.records() }

// Get returns the record of a checklist.
func (s *Store) Get(checklistID string) (SightingRecord, bool) {
	slot, ok := s.index.lookup(checklistID)
	if !ok {
		return SightingRecord{}, false
	}
	return s.index.at(slot).record, true
}

// Load replaces the in-memory state with the collection at path, or the
// configured path when path is empty. On any error the store is unchanged.
func (s *Store) Load(path string) error {
	if path == "" {
		path = s.path
	}

	entries, err := readCollection(path)
	if err != nil {
		return err
	}

	ix, err := newChecklistIndex(entries)
	if err != nil {
		s.log.Error("Persisted collection holds a checklist twice; run dedupe to repair it",
			logger.String("file", path),
			logger.Error(err))
		return errors.Newf("load %s: %w", path, err).
			Category(errors.CategoryConflict).
			FileContext(path).
			Component("observation").
			Build()
	}

	s.index = ix
	s.loaded = true
	s.log.Info("Loaded eBird checklist IDs",
		logger.String("file", path),
		logger.Int("checklists", ix.len()))
	return nil
}

// Save writes the collection to path, or the configured path when path is
// empty. Nothing is written when the file does not already exist.
func (s *Store) Save(path string) error {
	if path == "" {
		path = s.path
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			s.log.Warn("Not saving: target file does not exist",
				logger.String("file", path))
			return errors.New(ErrSaveTargetMissing).
				Category(errors.CategoryNotFound).
				FileContext(path).
				Component("observation").
				Build()
		}
		return fileIOError(path, "failed to stat save target", err)
	}

	if err := writeCollection(path, s.index.entries); err != nil {
		return err
	}
	s.log.Debug("Saved sighting collection",
		logger.String("file", path),
		logger.Int("checklists", s.index.len()))
	return nil
}

// Drift is a count change found when a known checklist was pulled again.
type Drift struct {
	ChecklistID string
	Previous    int
	Current     int
}

// MergeResult summarizes one MergeObservations call.
type MergeResult struct {
	RegionCode string
	Pulled     int            // raw observations across all species codes
	Checklists int            // distinct checklists after lumping
	New        int            // checklists appended to the store
	Drifted    []Drift        // checklists whose count changed
	Lumped     map[string]int // per species code: observations summed into a checklist already pulled
}

// lumpedObservation is the per-checklist result of summing all species codes.
type lumpedObservation struct {
	first RawObservation
	count int
}

// MergeObservations pulls every species code for regionCode, lumps
// observations that share a checklist and reconciles them with the store.
// When speciesCodes is empty the codes configured with WithSpeciesCodes are used.
func (s *Store) MergeObservations(ctx context.Context, regionCode string, speciesCodes []string) (*MergeResult, error) {
	if len(speciesCodes) == 0 {
		speciesCodes = s.speciesCodes
	}
	if len(speciesCodes) == 0 {
		return nil, errors.Newf("no species codes supplied or configured").
			Category(errors.CategoryConfiguration).
			Component("observation").
			Build()
	}
	if s.source == nil {
		return nil, errors.Newf("no observation source configured").
			Category(errors.CategoryConfiguration).
			Component("observation").
			Build()
	}

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	result := &MergeResult{
		RegionCode: regionCode,
		Lumped:     make(map[string]int, len(speciesCodes)),
	}

	// Pull everything before touching the store so a failed species leaves it unchanged.
	pulled := make(map[string]*lumpedObservation)
	var order []string
	for _, code := range speciesCodes {
		obs, err := s.source.Observations(ctx, regionCode, code)
		if err != nil {
			return nil, errors.Newf("pull %s in %s: %w", code, regionCode, err).
				Context("species_code", code).
				Context("region_code", regionCode).
				Component("observation").
				Build()
		}
		s.log.Info("Pulled observations",
			logger.Int("observations", len(obs)),
			logger.String("species_code", code),
			logger.String("region_code", regionCode))

		lumped := 0
		for i := range obs {
			o := obs[i]
			if o.IndividualCount < 0 {
				s.log.Warn("Ignoring observation with negative count",
					logger.String("checklist_id", o.ChecklistID),
					logger.Int("count", o.IndividualCount))
				continue
			}
			if lo, ok := pulled[o.ChecklistID]; ok {
				lo.count += o.IndividualCount
				lumped++
				s.log.Debug("Lumped observation into checklist",
					logger.String("checklist_id", o.ChecklistID),
					logger.String("species_code", code),
					logger.Int("added", o.IndividualCount),
					logger.Int("total", lo.count))
				continue
			}
			pulled[o.ChecklistID] = &lumpedObservation{first: o, count: o.IndividualCount}
			order = append(order, o.ChecklistID)
		}
		result.Pulled += len(obs)
		result.Lumped[code] = lumped
		s.recorder.RecordPull(code, len(obs), lumped)
		if lumped > 0 {
			s.log.Info("Lumped observations",
				logger.String("species_code", code),
				logger.Int("collisions", lumped))
		}
	}
	result.Checklists = len(order)

	// Validate the whole batch before applying any of it.
	fresh := make([]SightingRecord, 0, len(order))
	for _, id := range order {
		rec, err := toRecord(pulled[id])
		if err != nil {
			return nil, err
		}
		fresh = append(fresh, rec)
	}

	for i := range fresh {
		s.reconcile(fresh[i], result)
	}

	s.recorder.RecordMerge(result)
	s.log.Info("Merged observations",
		logger.String("region_code", regionCode),
		logger.Int("pulled", result.Pulled),
		logger.Int("checklists", result.Checklists),
		logger.Int("new", result.New),
		logger.Int("drifted", len(result.Drifted)))

	return result, nil
}

// ensureLoaded loads the configured file on first use when it exists.
func (s *Store) ensureLoaded() error {
	if s.loaded || s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("No persisted collection yet, starting empty",
				logger.String("file", s.path))
			return nil
		}
		return fileIOError(s.path, "failed to stat sighting collection", err)
	}
	return s.Load(s.path)
}

// reconcile applies one pulled checklist to the store.
func (s *Store) reconcile(rec SightingRecord, result *MergeResult) {
	slot, exists := s.index.lookup(rec.ChecklistID)
	if !exists {
		if _, err := s.index.insert(entry{record: rec}); err != nil {
			// lookup just reported the id absent
			panic(err)
		}
		result.New++
		s.log.Debug("New checklist",
			logger.String("checklist_id", rec.ChecklistID),
			logger.Float64("lat", rec.Latitude()),
			logger.Float64("lon", rec.Longitude()))
		return
	}

	current := s.index.at(slot)
	if current.record.IndividualCount == rec.IndividualCount {
		return
	}

	drift := Drift{
		ChecklistID: rec.ChecklistID,
		Previous:    current.record.IndividualCount,
		Current:     rec.IndividualCount,
	}
	result.Drifted = append(result.Drifted, drift)
	s.log.Warn("Checklist count drifted",
		logger.String("checklist_id", drift.ChecklistID),
		logger.Int("previous", drift.Previous),
		logger.Int("current", drift.Current))

	current.record.IndividualCount = rec.IndividualCount
	current.count = countSet
	s.index.replace(slot, current)
}

// toRecord validates a lumped observation and builds its record.
func toRecord(lo *lumpedObservation) (SightingRecord, error) {
	o := lo.first
	if o.ChecklistID == "" {
		return SightingRecord{}, errors.Newf("observation without checklist id at %s", o.LocationID).
			Category(errors.CategoryValidation).
			Component("observation").
			Build()
	}
	date, err := ParseObsDate(o.ObservationDate)
	if err != nil {
		return SightingRecord{}, errors.Newf("checklist %s: %w", o.ChecklistID, err).
			Category(errors.CategoryValidation).
			Component("observation").
			Build()
	}
	return SightingRecord{
		ChecklistID:       o.ChecklistID,
		LocationID:        o.LocationID,
		LocationName:      o.LocationName,
		Coordinates:       orb.Point{o.Longitude, o.Latitude},
		ObservationDate:   date,
		IndividualCount:   lo.count,
		IsValidated:       o.IsValid,
		IsReviewed:        o.IsReviewed,
		IsLocationPrivate: o.IsLocationPrivate,
	}, nil
}
