// Package pull implements the command that merges recent eBird observations
// into the sighting collection.
package pull

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldbio/sightings/internal/config"
	"github.com/fieldbio/sightings/internal/ebird"
	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
	"github.com/fieldbio/sightings/internal/observation"
)

// Command creates the pull command.
func Command(ctx *config.Context) *cobra.Command {
	var skipTaxonomy bool

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Merge recent eBird observations into the sighting collection",
		Long: `Pull recent observations of every configured species code for the region,
sum observations that share a checklist, and merge them into the collection:
new checklists are appended and changed counts are updated in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, skipTaxonomy)
		},
	}

	cmd.Flags().String("file", "", "Sighting collection (GeoJSON)")
	cmd.Flags().String("region", "", "eBird region code, e.g. US-FL-095")
	cmd.Flags().StringSlice("species", nil, "Species codes lumped into one count")
	cmd.Flags().Int("back", 0, "Days of history to pull (1-30)")
	cmd.Flags().BoolVar(&skipTaxonomy, "skip-taxonomy", false, "Do not check species codes against the eBird taxonomy")

	bindFlags(cmd)
	return cmd
}

func bindFlags(cmd *cobra.Command) {
	for key, flag := range map[string]string{
		"sightings.file":    "file",
		"sightings.region":  "region",
		"sightings.species": "species",
		"ebird.backdays":    "back",
	} {
		_ = viper.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func run(cmd *cobra.Command, ctx *config.Context, skipTaxonomy bool) error {
	settings := ctx.Settings
	log := ctx.Log()

	if err := settings.RequireAPIKey(); err != nil {
		return err
	}
	client, err := ebird.NewClient(ctx.EBirdConfig(), log)
	if err != nil {
		return err
	}
	defer client.Close()
	defer func() { ctx.Metrics.EBird.RecordClient(client.GetMetrics()) }()

	species := settings.Sightings.Species
	if !skipTaxonomy {
		known, unknown, err := client.ValidateSpeciesCodes(cmd.Context(), species)
		switch {
		case err != nil:
			log.Warn("Could not check species codes against the taxonomy", logger.Error(err))
		case len(known) == 0:
			return errors.Newf("none of the species codes %v are in the eBird taxonomy", unknown).
				Category(errors.CategoryConfiguration).
				Component("pull").
				Build()
		case len(unknown) > 0:
			log.Warn("Pulling known species codes only", logger.Strings("skipped", unknown))
			species = known
		}
	}

	file := settings.Sightings.File
	source := &observation.EBirdSource{
		Client: client,
		Query: ebird.ObservationQuery{
			Back:               settings.EBird.BackDays,
			IncludeProvisional: settings.EBird.IncludeProvisional,
			HotspotsOnly:       settings.EBird.HotspotsOnly,
		},
	}
	store := observation.NewStore(file, source, log,
		observation.WithSpeciesCodes(species...),
		observation.WithRecorder(ctx.Metrics.Sightings))

	result, err := store.MergeObservations(cmd.Context(), settings.Sightings.Region, nil)
	if err != nil {
		return err
	}

	// The collection file is only started once there is a merge to save.
	created, err := observation.CreateEmpty(file)
	if err != nil {
		return err
	}
	if created {
		log.Info("Created sighting collection", logger.String("file", file))
	}
	if err := store.Save(""); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s: pulled %d observations in %d checklists, %d new, %d changed, %d stored\n",
		result.RegionCode, result.Pulled, result.Checklists, result.New, len(result.Drifted), store.Len())
	for _, d := range result.Drifted {
		_, _ = fmt.Fprintf(out, "  %s: %d -> %d\n", d.ChecklistID, d.Previous, d.Current)
	}
	return nil
}
