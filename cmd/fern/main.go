// Command fern links extracted legal documents to the cases they belong to.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	store      string
	lock       string
	workers    int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "fern",
		Short:        "Link extracted legal documents to their cases",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	flags.StringVar(&opts.store, "store", "", "persistence backend, memory or postgres (overrides app.store)")
	flags.StringVar(&opts.lock, "lock", "", "case lock backend, memory or redis (overrides lock.backend)")

	cmd.AddCommand(
		newServeCommand(opts),
		newLinkCommand(opts),
		newDuplicatesCommand(opts),
		newMigrateCommand(opts),
	)
	return cmd
}

// load reads the configuration and applies the flag overrides
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.store != "" {
		cfg.App.Store = o.store
	}
	if o.lock != "" {
		cfg.Lock.Backend = o.lock
	}
	if o.workers > 0 {
		cfg.Processing.Workers = o.workers
	}
	return cfg, cfg.Validate()
}

// start loads the configuration and starts an App. The returned stop function releases it and
// flushes the logger.
func (o *rootOptions) start(ctx context.Context) (*app.App, func(), error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	logger, syncLogger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}

	a := app.New(cfg, logger)
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		syncLogger()
		return nil, nil, err
	}
	return a, func() {
		if err := a.Stop(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to stop cleanly")
		}
		syncLogger()
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
