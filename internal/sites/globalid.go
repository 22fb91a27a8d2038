package sites

import (
	"strings"

	"github.com/google/uuid"

	"github.com/fieldbio/sightings/internal/logger"
)

// NewGlobalID returns a fresh id in the braced upper-case form GIS tools use.
func NewGlobalID() string {
	return "{" + strings.ToUpper(uuid.NewString()) + "}"
}

// AssignResult reports what AssignGlobalID did.
type AssignResult struct {
	GlobalID string
	Previous *string // set when an existing id was replaced
	Changed  bool
}

// AssignGlobalID gives site a new global id when it has none. An existing id
// is kept unless overwrite is set, in which case it is replaced and returned
// in Previous.
func (v *Validator) AssignGlobalID(site *SurveySite, overwrite bool) AssignResult {
	if site.GlobalID != nil && !overwrite {
		v.log.Warn("Site already has a global id, not overwriting",
			logger.String("site", site.Label()))
		return AssignResult{GlobalID: *site.GlobalID}
	}

	id := NewGlobalID()
	res := AssignResult{GlobalID: id, Previous: site.GlobalID, Changed: true}
	site.GlobalID = &id

	if res.Previous != nil {
		v.log.Info("Replaced global id",
			logger.Int64("fid", site.FID),
			logger.String("previous", *res.Previous),
			logger.String("global_id", id))
	} else {
		v.log.Debug("Assigned global id",
			logger.Int64("fid", site.FID),
			logger.String("global_id", id))
	}
	return res
}

// AssignMissingGlobalIDs gives every site without a global id a new one and
// returns how many were assigned.
func (v *Validator) AssignMissingGlobalIDs() int {
	n := 0
	for _, s := range v.sites {
		if s.GlobalID != nil {
			continue
		}
		v.AssignGlobalID(s, false)
		n++
	}
	if n > 0 {
		v.log.Info("Assigned global ids", logger.Int("sites", n))
	}
	return n
}

// VerifyGlobalIDsUnique reports whether no global id is shared by two sites.
// Ids are compared case-insensitively. The returned ids are those used more
// than once, as first seen, in first-seen order.
func (v *Validator) VerifyGlobalIDsUnique() (bool, []string) {
	counts := make(map[string]int, len(v.sites))
	first := make(map[string]string, len(v.sites))
	var order []string
	for _, s := range v.sites {
		if s.GlobalID == nil {
			continue
		}
		key := strings.ToUpper(*s.GlobalID)
		if counts[key] == 0 {
			order = append(order, key)
			first[key] = *s.GlobalID
		}
		counts[key]++
	}

	var dupes []string
	for _, key := range order {
		if counts[key] > 1 {
			dupes = append(dupes, first[key])
			v.log.Warn("Global id is not unique",
				logger.String("global_id", first[key]),
				logger.Int("sites", counts[key]))
		}
	}
	return len(dupes) == 0, dupes
}
