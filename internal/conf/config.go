// conf/config.go settings structures and loading
package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

// EBirdSettings contains settings for the eBird API client.
type EBirdSettings struct {
	APIKey             string        `mapstructure:"apikey"`             // eBird API 2.0 token
	BaseURL            string        `mapstructure:"baseurl"`            // API root, overridable for testing
	Timeout            time.Duration `mapstructure:"timeout"`            // per-request timeout
	RateLimitMS        int           `mapstructure:"ratelimitms"`        // minimum spacing between requests
	BackDays           int           `mapstructure:"backdays"`           // days of history to pull, 1-30
	IncludeProvisional bool          `mapstructure:"includeprovisional"` // include unreviewed observations
	HotspotsOnly       bool          `mapstructure:"hotspotsonly"`       // only observations at hotspots
	CacheTTL           time.Duration `mapstructure:"cachettl"`           // taxonomy cache lifetime
}

// SightingsSettings describes the persisted sighting collection.
type SightingsSettings struct {
	File         string   `mapstructure:"file"`         // GeoJSON collection merged into
	Region       string   `mapstructure:"region"`       // eBird region code, e.g. US-FL-095
	Species      []string `mapstructure:"species"`      // species codes lumped into one count
	Label        string   `mapstructure:"label"`        // species label used in exports
	RecentWeeks  int      `mapstructure:"recentweeks"`  // length of the recent export window
	ExportPrefix string   `mapstructure:"exportprefix"` // file name prefix of recent exports
	ExportDir    string   `mapstructure:"exportdir"`    // directory recent exports are written to
}

// SitesSettings describes the survey-site and scouting-area inputs.
type SitesSettings struct {
	File      string   `mapstructure:"file"`      // survey sites, GeoJSON or GeoPackage
	Layer     string   `mapstructure:"layer"`     // GeoPackage feature table
	AreasFile string   `mapstructure:"areasfile"` // scouting-area polygons
	AreaField string   `mapstructure:"areafield"` // site attribute holding the assigned area
	IDField   string   `mapstructure:"idfield"`   // scouting-area attribute holding the area id
	Skip      []string `mapstructure:"skip"`      // verification checks to skip
}

// MetricsSettings controls the Prometheus textfile export.
type MetricsSettings struct {
	Textfile string `mapstructure:"textfile"` // empty disables the export
}

// Settings contains all configuration options.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	EBird     EBirdSettings        `mapstructure:"ebird"`
	Sightings SightingsSettings    `mapstructure:"sightings"`
	Sites     SitesSettings        `mapstructure:"sites"`
	Logging   logger.LoggingConfig `mapstructure:"logging"`
	Metrics   MetricsSettings      `mapstructure:"metrics"`
}

// Load reads the configuration file and environment variables into Settings.
// configFile may be empty, in which case the default paths are searched and
// a missing file leaves the defaults in place.
func Load(configFile string) (*Settings, error) {
	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.Newf("error unmarshaling config into struct: %w", err).
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}

	applyLegacyEnv(settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.Newf("error validating settings: %w", err).
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}

	return settings, nil
}

// initViper registers defaults and environment bindings and reads the config file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Newf("fatal error reading config file: %w", err).
				Category(errors.CategoryConfiguration).
				FileContext(configFile).
				Component("conf").
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Defaults and environment are enough to run.
			return nil
		}
		return errors.Newf("fatal error reading config file: %w", err).
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}
	return nil
}

// applyLegacyEnv honours the API_KEY variable the field scripts used.
func applyLegacyEnv(settings *Settings) {
	if settings.EBird.APIKey == "" {
		settings.EBird.APIKey = os.Getenv(legacyAPIKeyEnv)
	}
}

// ConfigFileUsed returns the path of the config file that was read, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// RequireAPIKey returns a configuration error when no eBird key is set.
func (s *Settings) RequireAPIKey() error {
	if s.EBird.APIKey != "" {
		return nil
	}
	return errors.Newf("eBird API key is not set; export %s or set ebird.apikey", apiKeyEnv).
		Category(errors.CategoryConfiguration).
		Context("setting", "ebird.apikey").
		Component("conf").
		Build()
}

// String implements fmt.Stringer with the API key masked.
func (e EBirdSettings) String() string {
	key := "<unset>"
	if e.APIKey != "" {
		key = "<redacted>"
	}
	return fmt.Sprintf("{APIKey:%s BaseURL:%s Timeout:%s BackDays:%d}", key, e.BaseURL, e.Timeout, e.BackDays)
}
