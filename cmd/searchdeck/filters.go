package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/searchdeck/searchdeck/types"
)

var filtersCmd = &cobra.Command{
	Use:   "filters [kind]",
	Short: "List the filters of the view",
	Long: "List the filters the view exposes, optionally restricted to one kind: " +
		"filter, groupBy, field, timeRange or favorite.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := buildStore()
		if err != nil {
			return err
		}

		kinds := []types.Kind{
			types.KindFilter, types.KindGroupBy, types.KindField, types.KindFavorite,
		}
		if len(args) == 1 {
			kinds = []types.Kind{types.Kind(args[0])}
		}

		for _, kind := range kinds {
			views := s.FiltersOfKind(kind)
			if len(views) == 0 {
				continue
			}
			fmt.Printf("%s:\n", kind)
			for _, view := range views {
				marker := " "
				if view.IsActive {
					marker = "*"
				}
				fmt.Printf("  %s %s\n", marker, view.Description)
				for _, opt := range view.Options {
					optMarker := " "
					if opt.IsActive {
						optMarker = "*"
					}
					fmt.Printf("      %s %s (%s)\n", optMarker, opt.Description, opt.ID)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filtersCmd)
}
