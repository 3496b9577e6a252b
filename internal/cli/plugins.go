package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/pkg/model"
)

func newPluginsCmd() *cobra.Command {
	var (
		configPath string
		version    string
		open       bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Show which catalog plugins are installed for a server version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logFormat, logLevel)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if version != "" {
				cfg.Server.Version = version
			}
			a := newApp(cfg, logger, appOptions{})

			if cfg.Server.Version == "" {
				v, _, err := a.resolveVersions(cmd.Context())
				if err != nil {
					return err
				}
				cfg.Server.Version = v
			}
			dir := a.layout.PluginsDir(cfg.Server.Version)

			if open {
				if err := openDir(dir); err != nil {
					return err
				}
				logger.Info("opened plugins folder", "dir", dir)
				return nil
			}

			inspector := plugins.Inspector{Layout: a.layout, Logger: logger}
			installed, err := inspector.Installed(cfg.Server.Version)
			if err != nil {
				return err
			}
			statuses := pluginStatuses(a.catalog, cfg.Plugins.Optional, installed, cfg.Server.Version)

			if jsonOut {
				return printJSON(statuses)
			}
			fmt.Printf("\033[1mPlugins for %s\033[0m \033[90m(%s)\033[0m\n", cfg.Server.Version, dir)
			for _, s := range statuses {
				fmt.Println(formatPluginStatus(s))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&version, "version", "", "Server game version (default: configured or latest stable)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the version's plugins folder instead of listing")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print machine-readable JSON")
	return cmd
}

func pluginStatuses(c plugins.Catalog, toggles, installed map[string]bool, version string) []model.PluginStatus {
	all := c.All()
	out := make([]model.PluginStatus, 0, len(all))
	for _, p := range all {
		enabled := p.Required || toggles[p.ID]
		out = append(out, model.PluginStatus{
			ID:         p.ID,
			Name:       p.Name,
			Required:   p.Required,
			Enabled:    enabled,
			Installed:  installed[p.ID],
			InstallURL: plugins.InstallURL(p, version),
		})
	}
	return out
}

func formatPluginStatus(s model.PluginStatus) string {
	mark := "\033[31m✗\033[0m"
	switch {
	case s.Installed:
		mark = "\033[32m✓\033[0m"
	case !s.Enabled:
		mark = "\033[90m-\033[0m"
	}
	kind := "optional"
	if s.Required {
		kind = "required"
	}
	line := fmt.Sprintf("  %s %-28s \033[90m%s\033[0m", mark, s.Name, kind)
	if s.Enabled && !s.Installed {
		line += fmt.Sprintf("  \033[36m%s\033[0m", s.InstallURL)
	}
	return line
}
