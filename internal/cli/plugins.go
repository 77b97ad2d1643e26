package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/output"
	"github.com/telhawk-systems/debughawk/internal/registry"
	"github.com/telhawk-systems/debughawk/internal/sandbox"
)

var pluginsOutput string

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List native types and discovered plugins",
	Long: `Lists the natively handled types with their synonyms, then every
plugin_<type>.wasm file in the plugin directory with its size and BLAKE3
digest.`,
	Args: cobra.NoArgs,
	RunE: runPlugins,
}

func init() {
	pluginsCmd.Flags().StringVarP(&pluginsOutput, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(pluginsCmd)
}

type pluginListing struct {
	Native    []string          `json:"native" yaml:"native"`
	Aliases   map[string]string `json:"aliases" yaml:"aliases"`
	Declared  []string          `json:"declared" yaml:"declared"`
	Fallback  bool              `json:"fallback" yaml:"fallback"`
	PluginDir string            `json:"plugin_dir" yaml:"plugin_dir"`
	Modules   []sandbox.Module  `json:"modules" yaml:"modules"`
}

func runPlugins(cmd *cobra.Command, args []string) error {
	p := buildPipeline(cfg, logger, logging.Discard{})

	listing := pluginListing{
		Native:    p.registry.Keys(registry.KindNative),
		Aliases:   p.registry.Aliases(),
		Declared:  p.registry.Keys(registry.KindSandboxed),
		Fallback:  p.registry.Fallback(),
		PluginDir: cfg.Sandbox.PluginDir,
		Modules:   []sandbox.Module{},
	}
	if cfg.Sandbox.Enabled() {
		modules, err := sandbox.List(cfg.Sandbox.PluginDir)
		if err != nil {
			return fmt.Errorf("failed to list plugins: %w", err)
		}
		listing.Modules = modules
	}

	if pluginsOutput != "table" {
		return output.Write(cmd.OutOrStdout(), pluginsOutput, listing)
	}

	w := cmd.OutOrStdout()
	synonyms := make(map[string][]string)
	for alias, target := range listing.Aliases {
		synonyms[target] = append(synonyms[target], alias)
	}

	types := output.NewTable("TYPE", "KIND", "SYNONYMS")
	for _, key := range listing.Native {
		types.AddRow(key, registry.KindNative.String(), joinSorted(synonyms[key]))
	}
	for _, key := range listing.Declared {
		types.AddRow(key, registry.KindSandboxed.String(), "")
	}
	types.Render(w)

	fmt.Fprintln(w)
	if !cfg.Sandbox.Enabled() {
		fmt.Fprintln(w, "No plugin directory configured")
		return nil
	}
	fmt.Fprintf(w, "Plugins in %s (fallback: %t)\n", listing.PluginDir, listing.Fallback)
	mods := output.NewTable("TYPE", "FILE", "SIZE", "BLAKE3")
	for _, m := range listing.Modules {
		mods.AddRow(m.Key, m.Path, strconv.FormatInt(m.Size, 10), m.Digest)
	}
	mods.Render(w)
	return nil
}
