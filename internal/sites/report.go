package sites

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/fieldbio/sightings/internal/errors"
)

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name    string `yaml:"name"`
	Passed  bool   `yaml:"passed"`
	Skipped bool   `yaml:"skipped,omitempty"`
}

// Mismatch is a site whose assigned area differs from where it lies.
type Mismatch struct {
	Site       string  `yaml:"site"`
	FID        int64   `yaml:"fid"`
	Assigned   *string `yaml:"assigned"`
	Discovered *string `yaml:"located_in"`
}

// AmbiguousSite is a site contained by more than one scouting area.
type AmbiguousSite struct {
	Site  string   `yaml:"site"`
	Areas []string `yaml:"areas"`
}

// Report details a VerifySurveySites run.
type Report struct {
	Passed             bool            `yaml:"passed"`
	Sites              int             `yaml:"sites"`
	Areas              int             `yaml:"scouting_areas"`
	Checks             []CheckResult   `yaml:"checks"`
	DuplicateGlobalIDs []string        `yaml:"duplicate_global_ids,omitempty"`
	Mismatches         []Mismatch      `yaml:"mismatches,omitempty"`
	Ambiguous          []AmbiguousSite `yaml:"ambiguous,omitempty"`
}

// WriteYAML writes the report as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return errors.Newf("failed to write validation report: %w", err).
			Category(errors.CategoryFileIO).
			Component("sites").
			Build()
	}
	return enc.Close()
}
