// Package validate implements the survey site validation command.
package validate

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldbio/sightings/internal/config"
	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
	"github.com/fieldbio/sightings/internal/sites"
)

type options struct {
	correct   bool
	assignIDs bool
	overwrite bool
	report    string
}

// Command creates the validate command.
func Command(ctx *config.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check survey sites against the scouting areas",
		Long: `Import the survey sites and scouting areas, then check that global ids are
unique and that every site is assigned to the scouting area it lies in.
With --correct, wrong assignments are fixed and written back to the sites file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, &opts)
		},
	}

	cmd.Flags().String("sites", "", "Survey sites file (.gpkg or .geojson)")
	cmd.Flags().String("layer", "", "GeoPackage layer holding the survey sites")
	cmd.Flags().String("areas", "", "Scouting areas file (.gpkg or .geojson)")
	cmd.Flags().StringSlice("skip", nil, "Checks to skip: "+sites.CheckGlobalIDUnique+", "+sites.CheckTrappingArea)
	cmd.Flags().BoolVar(&opts.correct, "correct", false, "Correct wrong trapping area assignments")
	cmd.Flags().BoolVar(&opts.assignIDs, "assign-ids", false, "Give sites without a global id a new one")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "With --assign-ids, replace every existing global id")
	cmd.Flags().StringVar(&opts.report, "report", "", "Write a YAML report to this file, - for stdout")

	for key, flag := range map[string]string{
		"sites.file":      "sites",
		"sites.layer":     "layer",
		"sites.areasfile": "areas",
		"sites.skip":      "skip",
	} {
		_ = viper.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
	return cmd
}

func run(cmd *cobra.Command, ctx *config.Context, opts *options) error {
	settings := ctx.Settings.Sites
	log := ctx.Log()

	v := sites.NewValidator(ctx.Log(),
		sites.WithAreaField(settings.AreaField),
		sites.WithIDField(settings.IDField),
		sites.WithRecorder(ctx.Metrics.Sites))

	if err := v.ImportScoutingAreas(settings.AreasFile); err != nil {
		return err
	}
	if err := v.ImportSurveySites(settings.File, settings.Layer); err != nil {
		return err
	}

	changed := 0
	if opts.assignIDs {
		if opts.overwrite {
			for _, site := range v.Sites() {
				if v.AssignGlobalID(site, true).Changed {
					changed++
				}
			}
		} else {
			changed += v.AssignMissingGlobalIDs()
		}
	}

	passed, report := v.VerifySurveySites(settings.Skip)
	if !passed && opts.correct {
		res := v.CorrectTrappingAreas()
		changed += res.Corrected
		for _, label := range res.Ambiguous {
			log.Warn("Site lies in several scouting areas, left unchanged", logger.String("site", label))
		}
		passed, report = v.VerifySurveySites(settings.Skip)
	}

	if changed > 0 {
		if err := v.SaveSurveySites(); err != nil {
			return err
		}
	}

	if err := writeReport(cmd.OutOrStdout(), opts.report, report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.report != "-" {
		_, _ = fmt.Fprintf(out, "%d sites, %d scouting areas, %d updated\n",
			report.Sites, report.Areas, changed)
		for _, c := range report.Checks {
			status := "passed"
			switch {
			case c.Skipped:
				status = "skipped"
			case !c.Passed:
				status = "FAILED"
			}
			_, _ = fmt.Fprintf(out, "  %-18s %s\n", c.Name, status)
		}
	}

	if !passed {
		return errors.Newf("survey site validation failed: %d mismatched, %d ambiguous, %d duplicate global ids",
			len(report.Mismatches), len(report.Ambiguous), len(report.DuplicateGlobalIDs)).
			Category(errors.CategoryValidation).
			Component("validate").
			FileContext(settings.File).
			Build()
	}
	return nil
}

func writeReport(stdout io.Writer, path string, report *sites.Report) error {
	switch path {
	case "":
		return nil
	case "-":
		return report.WriteYAML(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Component("validate").
			FileContext(path).
			Build()
	}
	if err := report.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
