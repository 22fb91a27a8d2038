// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/fieldbio/sightings/internal/sites"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. A missing API key
// is not an error here; only commands that pull require one.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateEBirdSettings(&settings.EBird); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSightingsSettings(&settings.Sightings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSitesSettings(&settings.Sites); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateEBirdSettings(settings *EBirdSettings) error {
	if u, err := url.Parse(settings.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ebird.baseurl %q is not an absolute URL", settings.BaseURL)
	}
	if settings.BackDays < 1 || settings.BackDays > 30 {
		return fmt.Errorf("ebird.backdays must be between 1 and 30, got %d", settings.BackDays)
	}
	if settings.Timeout <= 0 {
		return fmt.Errorf("ebird.timeout must be positive, got %s", settings.Timeout)
	}
	if settings.RateLimitMS < 0 {
		return fmt.Errorf("ebird.ratelimitms must not be negative, got %d", settings.RateLimitMS)
	}
	return nil
}

func validateSightingsSettings(settings *SightingsSettings) error {
	if settings.File == "" {
		return fmt.Errorf("sightings.file must be set")
	}
	if settings.RecentWeeks < 1 {
		return fmt.Errorf("sightings.recentweeks must be at least 1, got %d", settings.RecentWeeks)
	}
	if validateEnvRegion(settings.Region) != nil {
		return fmt.Errorf("sightings.region %q is not an eBird region code", settings.Region)
	}
	for _, code := range settings.Species {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("sightings.species contains an empty code")
		}
	}
	return nil
}

func validateSitesSettings(settings *SitesSettings) error {
	known := []string{sites.CheckGlobalIDUnique, sites.CheckTrappingArea}
	for _, name := range settings.Skip {
		if !slices.Contains(known, name) {
			return fmt.Errorf("sites.skip: unknown check %q (known: %s)", name, strings.Join(known, ", "))
		}
	}
	if settings.AreaField == "" {
		return fmt.Errorf("sites.areafield must be set")
	}
	if settings.IDField == "" {
		return fmt.Errorf("sites.idfield must be set")
	}
	return nil
}
