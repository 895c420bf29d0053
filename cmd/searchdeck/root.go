package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/searchdeck/searchdeck/persist"
	"github.com/searchdeck/searchdeck/schema"
	"github.com/searchdeck/searchdeck/store"
	"github.com/searchdeck/searchdeck/types"
)

var (
	cfgFile       string
	viewPath      string
	favoritesPath string
	modelName     string
	userID        int

	// activation flags shared by query and favorites save
	toggleNames   []string
	toggleOptions []string
	groupByFields []string
	timeRangeSpec string
)

var rootCmd = &cobra.Command{
	Use:   "searchdeck",
	Short: "Searchdeck CLI",
	Long:  "Searchdeck inspects search view definitions, derives search queries and manages favorites.",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searchdeck.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVarP(&viewPath, "view", "w", "", "path to the YAML view definition (required)")
	rootCmd.PersistentFlags().StringVarP(&favoritesPath, "favorites", "f", "", "path to the favorites file")
	rootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "model name favorites are scoped to")
	rootCmd.PersistentFlags().IntVarP(&userID, "user", "u", 1, "user id for personal favorites and the uid binding")

	_ = viper.BindPFlag("view", rootCmd.PersistentFlags().Lookup("view"))
	_ = viper.BindPFlag("favorites", rootCmd.PersistentFlags().Lookup("favorites"))
	_ = viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("searchdeck")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("SEARCHDECK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
}

// addActivationFlags registers the flags that select the query state a
// command operates on.
func addActivationFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&toggleNames, "toggle", "t", nil, "activate the named filter (repeatable)")
	cmd.Flags().StringArrayVarP(&toggleOptions, "option", "o", nil, "activate a filter option as name=option (repeatable)")
	cmd.Flags().StringArrayVarP(&groupByFields, "group-by", "g", nil, "group by the named field (repeatable)")
	cmd.Flags().StringVarP(&timeRangeSpec, "time-range", "r", "", "activate a time range as field:range[:comparison]")
}

func buildStore() (*store.Store, persist.Gateway, error) {
	path := viper.GetString("view")
	if path == "" {
		return nil, nil, fmt.Errorf("a view definition is required (--view or the config file)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read view definition: %w", err)
	}
	view, err := schema.ParseView(data)
	if err != nil {
		return nil, nil, err
	}

	var gateway persist.Gateway
	if favorites := viper.GetString("favorites"); favorites != "" {
		abs, err := filepath.Abs(favorites)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid favorites path: %w", err)
		}
		gateway, err = persist.NewJSONGateway(abs)
		if err != nil {
			return nil, nil, err
		}
	}

	s, err := store.New(store.Config{
		View:      view,
		ModelName: viper.GetString("model"),
		UserID:    viper.GetInt("user"),
		Gateway:   gateway,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, gateway, nil
}

// applyActivations replays the activation flags against the store.
func applyActivations(s *store.Store) error {
	for _, name := range toggleNames {
		id, err := findFilter(s, name)
		if err != nil {
			return err
		}
		if err := s.ToggleFilter(id); err != nil {
			return err
		}
	}
	for _, spec := range toggleOptions {
		name, option, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid option %q, expected name=option", spec)
		}
		id, err := findFilter(s, name)
		if err != nil {
			return err
		}
		if err := s.ToggleFilterWithOptions(id, option); err != nil {
			return err
		}
	}
	for _, field := range groupByFields {
		if _, err := s.CreateNewGroupBy(field); err != nil {
			return err
		}
	}
	if timeRangeSpec != "" {
		parts := strings.SplitN(timeRangeSpec, ":", 3)
		if len(parts) < 2 {
			return fmt.Errorf("invalid time range %q, expected field:range[:comparison]", timeRangeSpec)
		}
		comparison := ""
		if len(parts) == 3 {
			comparison = parts[2]
		}
		if err := s.ActivateTimeRange(parts[0], parts[1], comparison); err != nil {
			return err
		}
	}
	return nil
}

// findFilter resolves a filter by its description, case-insensitively,
// across all kinds.
func findFilter(s *store.Store, name string) (int, error) {
	kinds := []types.Kind{
		types.KindFilter, types.KindGroupBy, types.KindField, types.KindFavorite,
	}
	for _, kind := range kinds {
		for _, view := range s.FiltersOfKind(kind) {
			if strings.EqualFold(view.Description, name) {
				return view.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("no filter named %q", name)
}
