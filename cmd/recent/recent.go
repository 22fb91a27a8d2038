// Package recent implements the command that exports the latest sightings.
package recent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldbio/sightings/internal/config"
	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
	"github.com/fieldbio/sightings/internal/observation"
)

// Command creates the recent command.
func Command(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent [file=label ...]",
		Short: "Export the sightings of the last weeks as one labelled collection",
		Long: `Combine the sightings of the last weeks from one or more collections into a
single GeoJSON file. Each argument names a collection and the species label its
features get, e.g. ebird.geojson="mottled duck". Without arguments the configured
collection and label are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, args, clockwork.NewRealClock())
		},
	}

	cmd.Flags().Int("weeks", 0, "Number of weeks to include")
	cmd.Flags().String("prefix", "", "Output file name prefix")
	cmd.Flags().String("out", "", "Output directory")

	for key, flag := range map[string]string{
		"sightings.recentweeks":  "weeks",
		"sightings.exportprefix": "prefix",
		"sightings.exportdir":    "out",
	} {
		_ = viper.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
	return cmd
}

type source struct {
	file  string
	label string
}

func parseSources(args []string, defaultFile, defaultLabel string) ([]source, error) {
	if len(args) == 0 {
		return []source{{file: defaultFile, label: defaultLabel}}, nil
	}
	out := make([]source, 0, len(args))
	for _, arg := range args {
		file, label, ok := strings.Cut(arg, "=")
		if !ok || file == "" || label == "" {
			return nil, errors.Newf("invalid collection %q, expected file=label", arg).
				Category(errors.CategoryValidation).
				Component("recent").
				Build()
		}
		out = append(out, source{file: file, label: label})
	}
	return out, nil
}

func run(cmd *cobra.Command, ctx *config.Context, args []string, clock clockwork.Clock) error {
	settings := ctx.Settings.Sightings
	log := ctx.Log()

	sources, err := parseSources(args, settings.File, settings.Label)
	if err != nil {
		return err
	}

	start, today := observation.RecentWindow(clock, settings.RecentWeeks)
	sets := make([]observation.LabeledSet, 0, len(sources))
	for _, src := range sources {
		store := observation.NewStore(src.file, nil, ctx.Log(),
			observation.WithClock(clock))
		if err := store.Load(""); err != nil {
			return err
		}
		set := store.Recent(settings.RecentWeeks, src.label)
		log.Debug("Selected recent sightings",
			logger.String("file", src.file),
			logger.String("species", src.label),
			logger.Time("since", start),
			logger.Int("sightings", len(set.Records)))
		sets = append(sets, set)
	}

	path := filepath.Join(settings.ExportDir, observation.RecentFileName(settings.ExportPrefix, start, today))
	n, err := observation.WriteLabeled(path, sets...)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d sightings since %s to %s\n",
		n, start.Format("2006-01-02"), path)
	return nil
}
