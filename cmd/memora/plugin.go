package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/memora/internal/plugin"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect recognition plugins",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugins discovered in the plugins directory",
	Args:  cobra.NoArgs,
	RunE:  runPluginList,
}

func init() {
	rootCmd.AddCommand(pluginCmd)
	pluginCmd.AddCommand(pluginListCmd)
}

func runPluginList(cmd *cobra.Command, args []string) error {
	if cfg.Plugins.Dir == "" {
		fmt.Println("Plugins are disabled (plugins.dir is empty)")
		return nil
	}

	mgr := plugin.NewManager(cfg.Plugins.Dir)
	if err := mgr.Discover(); err != nil {
		return fmt.Errorf("failed to discover plugins: %w", err)
	}

	plugins := mgr.List()
	if len(plugins) == 0 {
		fmt.Printf("No plugins in %s\n", cfg.Plugins.Dir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tEVENTS\tEXECUTABLE")
	for _, p := range plugins {
		executable := p.Executable
		if _, err := os.Stat(executable); err != nil {
			executable += " (missing)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Manifest.Name, p.Manifest.Version, strings.Join(p.Manifest.Events, ","), executable)
	}
	return w.Flush()
}
