package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shotdiff/internal/fileutil"
	"shotdiff/internal/imagediff"
)

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var tolerance int
	var output string
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "compare <base> <compare>",
		Short:       "Diff two local images without the daemon",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("tolerance") {
				if cfg := ctx.configValue(); cfg != nil {
					tolerance = cfg.Diff.ChannelTolerance
				}
			}
			if tolerance < 0 || tolerance > 255 {
				return fmt.Errorf("tolerance must be between 0 and 255")
			}
			result, err := imagediff.Diff(cmd.Context(), args[0], args[1], imagediff.Options{
				ChannelTolerance: uint8(tolerance),
			})
			if err != nil {
				return err
			}
			if result.HasArtifact() {
				if output == "" {
					defer os.Remove(result.Path)
				} else if err := moveFile(result.Path, output); err != nil {
					return err
				}
			}
			if asJSON {
				payload := map[string]any{
					"score":  result.Score,
					"width":  result.Width,
					"height": result.Height,
				}
				if output != "" && result.HasArtifact() {
					payload["mask"] = output
				}
				return writeJSON(cmd, payload)
			}
			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Score: %.6f (%dx%d)\n", result.Score, result.Width, result.Height)
			if output != "" && result.HasArtifact() {
				fmt.Fprintf(stdout, "Mask written to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tolerance, "tolerance", 0, "Per-channel tolerance (defaults to diff.channel_tolerance)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the difference mask to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func moveFile(src, dst string) error {
	if err := fileutil.InstallFile(src, dst); err != nil {
		return fmt.Errorf("write mask: %w", err)
	}
	return os.Remove(src)
}
