package sites

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

// Check names accepted by VerifySurveySites' skip list.
const (
	CheckGlobalIDUnique = "global_id_unique"
	CheckTrappingArea   = "trapping_area"
)

// AmbiguityError is returned when a site lies in more than one scouting area.
type AmbiguityError struct {
	Site    string
	AreaIDs []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("site %s lies in %d scouting areas: %s", e.Site, len(e.AreaIDs), strings.Join(e.AreaIDs, ", "))
}

// ErrorCategory lets the enhanced error builder pick up the category.
func (e *AmbiguityError) ErrorCategory() errors.ErrorCategory { return errors.CategoryConflict }

// FindScoutingArea returns the id of the single scouting area containing
// site, or nil when none does. A site contained by several areas yields an
// *AmbiguityError.
func (v *Validator) FindScoutingArea(site *SurveySite) (*string, error) {
	shape := newSiteShape(site.Geometry)
	if shape.empty() {
		v.log.Warn("Site has no geometry",
			logger.String("site", site.Label()))
		return nil, nil
	}

	var found []string
	for i := range v.areas {
		if v.areas[i].contains(shape) {
			found = append(found, v.areas[i].ID)
		}
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		id := found[0]
		return &id, nil
	default:
		return nil, &AmbiguityError{Site: site.Label(), AreaIDs: found}
	}
}

// VerifyTrappingArea reports whether site's assigned area matches the area
// it lies in. Both empty passes. On failure the discovered area is kept for
// CorrectTrappingAreas. An ambiguous site fails and the error is returned.
func (v *Validator) VerifyTrappingArea(site *SurveySite) (bool, error) {
	found, err := v.FindScoutingArea(site)
	if err != nil {
		delete(v.discovered, site)
		v.log.Warn("Site lies in more than one scouting area",
			logger.String("site", site.Label()),
			logger.Error(err))
		return false, err
	}

	if sameText(site.AssignedArea, found) {
		delete(v.discovered, site)
		return true, nil
	}

	v.discovered[site] = found
	v.log.Warn("Trapping area does not match location",
		logger.String("site", site.Label()),
		logger.String("assigned", deref(site.AssignedArea)),
		logger.String("located_in", deref(found)))
	return false, nil
}

// VerifySurveySites runs every check not named in skip and returns whether
// all of them passed, with the details in a Report.
func (v *Validator) VerifySurveySites(skip []string) (bool, *Report) {
	report := &Report{Sites: len(v.sites), Areas: len(v.areas)}

	if slices.Contains(skip, CheckGlobalIDUnique) {
		report.Checks = append(report.Checks, CheckResult{Name: CheckGlobalIDUnique, Skipped: true})
	} else {
		ok, dupes := v.VerifyGlobalIDsUnique()
		report.DuplicateGlobalIDs = dupes
		report.Checks = append(report.Checks, CheckResult{Name: CheckGlobalIDUnique, Passed: ok})
		v.recorder.RecordCheck(CheckGlobalIDUnique, ok)
	}

	if slices.Contains(skip, CheckTrappingArea) {
		report.Checks = append(report.Checks, CheckResult{Name: CheckTrappingArea, Skipped: true})
	} else {
		allOK := true
		for _, site := range v.sites {
			ok, err := v.VerifyTrappingArea(site)
			if ok {
				continue
			}
			allOK = false
			var amb *AmbiguityError
			if errors.As(err, &amb) {
				report.Ambiguous = append(report.Ambiguous, AmbiguousSite{Site: amb.Site, Areas: amb.AreaIDs})
				continue
			}
			report.Mismatches = append(report.Mismatches, Mismatch{
				Site:       site.Label(),
				FID:        site.FID,
				Assigned:   site.AssignedArea,
				Discovered: v.discovered[site],
			})
		}
		report.Checks = append(report.Checks, CheckResult{Name: CheckTrappingArea, Passed: allOK})
		v.recorder.RecordCheck(CheckTrappingArea, allOK)
	}

	report.Passed = true
	for _, c := range report.Checks {
		if !c.Skipped && !c.Passed {
			report.Passed = false
		}
	}

	v.log.Info("Verified survey sites",
		logger.Bool("passed", report.Passed),
		logger.Int("sites", report.Sites),
		logger.Int("mismatches", len(report.Mismatches)),
		logger.Int("ambiguous", len(report.Ambiguous)),
		logger.Int("duplicate_global_ids", len(report.DuplicateGlobalIDs)))
	return report.Passed, report
}

// CorrectionResult reports what CorrectTrappingAreas changed.
type CorrectionResult struct {
	Corrected int
	Ambiguous []string // sites left unchanged because several areas contain them
}

// CorrectTrappingAreas sets the assigned area of every failing site to the
// area it lies in. Each site is verified immediately before it is corrected.
func (v *Validator) CorrectTrappingAreas() CorrectionResult {
	var res CorrectionResult
	for _, site := range v.sites {
		ok, err := v.VerifyTrappingArea(site)
		if err != nil {
			res.Ambiguous = append(res.Ambiguous, site.Label())
			continue
		}
		if ok {
			continue
		}

		found := v.discovered[site]
		v.log.Info("Corrected trapping area",
			logger.String("site", site.Label()),
			logger.String("from", deref(site.AssignedArea)),
			logger.String("to", deref(found)))
		if found != nil {
			id := *found
			site.AssignedArea = &id
		} else {
			site.AssignedArea = nil
		}
		delete(v.discovered, site)
		res.Corrected++
	}
	v.recorder.RecordCorrections(res.Corrected)
	return res
}
