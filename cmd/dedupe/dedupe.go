// Package dedupe implements the command that repairs collections holding
// repeated checklists.
package dedupe

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldbio/sightings/internal/config"
	"github.com/fieldbio/sightings/internal/observation"
)

// Command creates the dedupe command.
func Command(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe [file]",
		Short: "Remove repeated checklists from a sighting collection",
		Long: `Remove identical repeated checklists so the collection can be loaded again.
A collection holding different records for the same checklist is left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ctx.Settings.Sightings.File
			if len(args) == 1 {
				file = args[0]
			}
			res, err := observation.Repair(file, ctx.Log())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d checklists, %d removed\n",
				file, res.After, res.Before-res.After)
			return nil
		},
	}
}
