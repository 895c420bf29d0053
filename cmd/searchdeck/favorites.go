package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/searchdeck/searchdeck/store"
	"github.com/searchdeck/searchdeck/types"
)

var (
	favoriteDefault bool
	favoriteShared  bool
)

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage saved favorites",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the favorites of the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := buildStore()
		if err != nil {
			return err
		}
		favorites := s.FiltersOfKind(types.KindFavorite)
		if len(favorites) == 0 {
			fmt.Println("no favorites")
			return nil
		}
		for _, view := range favorites {
			scope := "personal"
			if view.GroupNumber == 2 {
				scope = "shared"
			}
			marker := ""
			if view.IsDefault {
				marker = " (default)"
			}
			fmt.Printf("%s [%s]%s\n", view.Description, scope, marker)
		}
		return nil
	},
}

var favoritesSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current filter selection as a favorite",
	Long: "Apply the activation flags to a fresh store and persist the " +
		"resulting query under the given name.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, gateway, err := buildStore()
		if err != nil {
			return err
		}
		if gateway == nil {
			return fmt.Errorf("saving favorites requires a favorites file (--favorites)")
		}
		if err := applyActivations(s); err != nil {
			return err
		}

		_, err = s.CreateNewFavorite(context.Background(), store.PreFavorite{
			Description: args[0],
			IsDefault:   favoriteDefault,
			IsShared:    favoriteShared,
		})
		if err != nil {
			return err
		}
		fmt.Printf("saved favorite %q\n", args[0])
		return nil
	},
}

var favoritesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, gateway, err := buildStore()
		if err != nil {
			return err
		}
		if gateway == nil {
			return fmt.Errorf("deleting favorites requires a favorites file (--favorites)")
		}

		for _, view := range s.FiltersOfKind(types.KindFavorite) {
			if view.Description == args[0] {
				if err := s.DeleteFavorite(context.Background(), view.ID); err != nil {
					return err
				}
				fmt.Printf("deleted favorite %q\n", args[0])
				return nil
			}
		}
		return fmt.Errorf("no favorite named %q", args[0])
	},
}

func init() {
	favoritesSaveCmd.Flags().BoolVar(&favoriteDefault, "default", false, "mark the favorite as the default")
	favoritesSaveCmd.Flags().BoolVar(&favoriteShared, "shared", false, "share the favorite with all users")
	addActivationFlags(favoritesSaveCmd)

	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesSaveCmd)
	favoritesCmd.AddCommand(favoritesDeleteCmd)
	rootCmd.AddCommand(favoritesCmd)
}
