// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("ebird.baseurl", "https://api.ebird.org/v2")
	viper.SetDefault("ebird.timeout", 30*time.Second)
	viper.SetDefault("ebird.ratelimitms", 100)
	viper.SetDefault("ebird.backdays", 30)
	viper.SetDefault("ebird.includeprovisional", true)
	viper.SetDefault("ebird.hotspotsonly", false)
	viper.SetDefault("ebird.cachettl", 24*time.Hour)

	viper.SetDefault("sightings.file", "ebird.geojson")
	viper.SetDefault("sightings.region", "US-FL-095")
	viper.SetDefault("sightings.species", []string{"motduc"})
	viper.SetDefault("sightings.label", "mottled duck")
	viper.SetDefault("sightings.recentweeks", 4)
	viper.SetDefault("sightings.exportprefix", "recent")
	viper.SetDefault("sightings.exportdir", ".")

	viper.SetDefault("sites.file", "survey_sites.gpkg")
	viper.SetDefault("sites.layer", "survey_sites")
	viper.SetDefault("sites.areasfile", "scouting_areas.geojson")
	viper.SetDefault("sites.areafield", "trapping_area")
	viper.SetDefault("sites.idfield", "id")
	viper.SetDefault("sites.skip", []string{})

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/sightings.log")
	viper.SetDefault("logging.fileoutput.level", "debug")

	viper.SetDefault("metrics.textfile", "")
}
