// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	apiKeyEnv       = "EBIRD_API_KEY"
	legacyAPIKeyEnv = "API_KEY"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"ebird.apikey", apiKeyEnv, nil},
		{"ebird.baseurl", "EBIRD_BASE_URL", nil},
		{"ebird.backdays", "EBIRD_BACK_DAYS", validateEnvBackDays},

		{"sightings.file", "SIGHTINGS_FILE", nil},
		{"sightings.region", "SIGHTINGS_REGION", validateEnvRegion},

		{"sites.file", "SITES_FILE", nil},
		{"sites.areasfile", "SITES_AREAS_FILE", nil},

		{"metrics.textfile", "SIGHTINGS_METRICS_TEXTFILE", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBackDays(value string) error {
	days, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if days < 1 || days > 30 {
		return fmt.Errorf("must be between 1 and 30, got %d", days)
	}
	return nil
}

// regionPattern matches eBird country, subnational1 and subnational2 codes.
var regionPattern = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3}(-[0-9]{3})?)?$`)

func validateEnvRegion(value string) error {
	if !regionPattern.MatchString(value) {
		return fmt.Errorf("not an eBird region code (e.g. US-FL-095)")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
