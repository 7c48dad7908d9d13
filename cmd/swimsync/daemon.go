package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jarnaez728/swimsync/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run swimsync in the foreground as a long-lived daemon:

  - processes debounced pushes as local edits queue up
  - pulls remote changes on an interval and on server events
  - watches the import directory (if configured) for dropped exports

Stops cleanly on SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		eng, st, err := openEngine(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		logger := daemon.NewLogger(cfg)
		d, err := daemon.New(eng, &daemon.Config{
			PullInterval: cfg.PullInterval,
			ImportDir:    cfg.ImportDir,
			Logger:       logger,
		})
		if err != nil {
			fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			fatalf("daemon failed: %v", err)
		}
	},
}
