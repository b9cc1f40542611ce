package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLinkCommand(opts *rootOptions) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "link <file|dir>...",
		Short: "Link entity bag files (.json, .yaml) and print the batch report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, stop, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer stop()

			report, err := a.Batch.LinkPaths(ctx, args)
			if report != nil {
				if summary {
					report.Results = nil
				}
				if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d failures while linking %d files", len(report.Failures), report.Files)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 0, "files linked concurrently (overrides processing.workers)")
	cmd.Flags().BoolVar(&summary, "summary", false, "print counts only, without per-document results")
	return cmd
}
