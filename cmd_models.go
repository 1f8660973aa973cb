package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sd_backend/catalog"
)

type modelsOptions struct {
	*globalOptions

	JSON     bool
	Metadata bool
}

// newModelsCommand creates the models command.
//
// Usage:
//
//	sd_backend models [--json] [--metadata]
func newModelsCommand(globalOpts *globalOptions) *cobra.Command {
	opts := &modelsOptions{globalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"ls"},
		Short:   "List the models under MODELS_DIR",
		Long: `List checkpoints, LoRAs and VAEs found under MODELS_DIR, grouped the
same way GET /models returns them.`,
		Example: `  # Colored listing
  sd_backend models

  # Include format, size and resolution
  sd_backend models --metadata

  # Same JSON the API returns
  sd_backend models --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := catalog.New(cfg.ModelsDir, zap.NewNop())
			return runModels(cmd.OutOrStdout(), c, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&opts.Metadata, "metadata", false, "include format, size and resolution")
	return cmd
}

func runModels(w io.Writer, c *catalog.Catalog, opts *modelsOptions) error {
	folders, err := c.Scan()
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(folders)
	}

	header := color.New(color.FgCyan, color.Bold)
	empty := color.New(color.FgYellow)
	total := 0

	for _, folder := range folders {
		header.Fprintf(w, "%s (%d)\n", folder.Name, len(folder.Models))
		if len(folder.Models) == 0 {
			empty.Fprintln(w, "  no models")
			continue
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, m := range folder.Models {
			if opts.Metadata {
				meta, err := c.Metadata(m.ID)
				if err != nil {
					fmt.Fprintf(tw, "  %s\t%s\t%s\t(metadata unavailable: %v)\n", m.ID, m.Name, m.Path, err)
					continue
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%.2f GB\t%s\n", m.ID, m.Name, m.Path, meta.Format, meta.Size, meta.Resolution)
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", m.ID, m.Name, m.Path)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		total += len(folder.Models)
	}

	if total == 0 {
		empty.Fprintf(w, "No models found under %s\n", c.Root())
	}
	return nil
}
