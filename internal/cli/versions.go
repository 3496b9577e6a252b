package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type versionsOutput struct {
	Game    []string `json:"game"`
	Loaders []string `json:"loaders"`
}

func newVersionsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List stable server and loader versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logFormat, logLevel)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a := newApp(cfg, logger, appOptions{})

			game, err := a.servers.StableGameVersions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list game versions: %w", err)
			}
			loaders, err := a.servers.StableLoaderVersions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list loader versions: %w", err)
			}
			out := versionsOutput{Game: head(game, limit), Loaders: head(loaders, limit)}

			if jsonOut {
				return printJSON(out)
			}
			fmt.Printf("\033[1mGame versions\033[0m\n  %s\n", joinOrNone(out.Game))
			fmt.Printf("\033[1mLoader versions\033[0m\n  %s\n", joinOrNone(out.Loaders))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().IntVar(&limit, "limit", 10, "Show at most this many versions of each kind (0 = all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print machine-readable JSON")
	return cmd
}

// head returns the first n entries of list, or all of them when n <= 0.
func head(list []string, n int) []string {
	if n <= 0 || n >= len(list) {
		return list
	}
	return list[:n]
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "(none)"
	}
	return strings.Join(list, ", ")
}
