package main

import (
	"context"
	"fmt"
	"os"

	"checkin-sync/internal/importer"

	"github.com/spf13/cobra"
)

func importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Register every member listed in a CSV export",
		Long: "Register every member listed in a CSV export. The header must name a " +
			"'name' column; display_key, department, organization, join_year and " +
			"former_role are optional.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return stationRun(cmd, func(ctx context.Context, s *station) error {
				result, err := importer.Import(ctx, s.transport, f)
				if err != nil {
					return err
				}
				for _, rowErr := range result.Failed {
					fmt.Fprintf(os.Stderr, "skipped %v\n", rowErr)
				}
				fmt.Fprintf(os.Stdout, "Imported %d members, %d skipped\n", result.Created, len(result.Failed))
				return nil
			})
		},
	}
}
