package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/searchdeck/searchdeck/domain"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Derive the search query for a filter selection",
	Long: "Apply the activation flags to a fresh store and print the derived " +
		"query: domain, group-bys, context, ordering and time ranges.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := buildStore()
		if err != nil {
			return err
		}
		if err := applyActivations(s); err != nil {
			return err
		}

		query, err := s.Query()
		if err != nil {
			return err
		}

		out := map[string]interface{}{
			"domain":  json.RawMessage(domain.Serialize(query.Domain)),
			"groupBy": query.GroupBy,
			"context": query.Context,
		}
		if len(query.OrderedBy) > 0 {
			var order []string
			for _, clause := range query.OrderedBy {
				if clause.Asc {
					order = append(order, clause.Name)
				} else {
					order = append(order, clause.Name+" desc")
				}
			}
			out["orderedBy"] = order
		}
		if query.TimeRanges != nil {
			out["timeRanges"] = map[string]interface{}{
				"field":            query.TimeRanges.ComparisonField,
				"range":            json.RawMessage(domain.Serialize(query.TimeRanges.Range)),
				"rangeDescription": query.TimeRanges.RangeDescription,
			}
			if query.TimeRanges.ComparisonRange != nil {
				tr := out["timeRanges"].(map[string]interface{})
				tr["comparisonRange"] = json.RawMessage(domain.Serialize(query.TimeRanges.ComparisonRange))
				tr["comparisonRangeDescription"] = query.TimeRanges.ComparisonRangeDescription
			}
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode query: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	addActivationFlags(queryCmd)
	rootCmd.AddCommand(queryCmd)
}
