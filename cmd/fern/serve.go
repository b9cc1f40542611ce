package main

import (
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var noConsumer bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the Kafka entity bag consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, stop, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer stop()

			if a.Config.Kafka.ConsumerEnabled && !noConsumer {
				if err := a.StartConsumer(ctx); err != nil {
					return err
				}
			}
			return a.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&noConsumer, "no-consumer", false, "serve the API without consuming from Kafka")
	return cmd
}
