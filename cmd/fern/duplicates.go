package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/models"
)

func newDuplicatesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find and merge duplicate cases",
	}
	cmd.AddCommand(newAnalyzeCommand(opts), newMergeCommand(opts), newCandidatesCommand(opts))
	return cmd
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "List groups of active cases sharing a reference number, with a suggested primary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, stop, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer stop()

			groups, err := a.Consolidator.AnalyzeDuplicates(ctx, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), groups)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of groups")
	return cmd
}

func newMergeCommand(opts *rootOptions) *cobra.Command {
	var (
		primary     string
		absorbed    []string
		candidateID string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Fold duplicate cases into a primary case",
		Long: "Fold duplicate cases into a primary case. Either name the cases with --primary and " +
			"--absorb, or merge a pending merge candidate with --candidate.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (candidateID == "") == (primary == "") {
				return errors.New("use either --candidate or --primary with --absorb")
			}
			if primary != "" && len(absorbed) == 0 {
				return errors.New("--absorb names at least one case")
			}

			ctx := cmd.Context()
			a, stop, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer stop()

			var report *models.MergeCasesReport
			if candidateID != "" {
				report, err = a.Consolidator.MergeCandidate(ctx, candidateID, dryRun)
			} else {
				report, err = a.Consolidator.MergeCases(ctx, primary, absorbed, dryRun)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&primary, "primary", "", "case that survives the merge")
	cmd.Flags().StringSliceVar(&absorbed, "absorb", nil, "cases folded into the primary, comma separated")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "pending merge candidate to merge")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would move without writing")
	return cmd
}

func newCandidatesCommand(opts *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List merge candidates flagged while linking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, stop, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer stop()

			candidates, err := a.Consolidator.ListCandidates(ctx, models.MergeCandidateStatus(status), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), candidates)
		},
	}

	cmd.Flags().StringVar(&status, "status", string(models.MergeCandidatePending), "pending, merged or rejected")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of candidates")
	return cmd
}
