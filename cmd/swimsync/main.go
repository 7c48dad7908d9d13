// Command swimsync is a local-first swim log with background sync.
//
// Records live in a local SQLite store and are synchronized with a remote
// record service: local edits are queued, debounced, and pushed in batches;
// remote changes are pulled and applied atomically; conflicts resolve
// remote-wins. The user can keep working offline indefinitely.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jarnaez728/swimsync/internal/config"
	"github.com/jarnaez728/swimsync/internal/engine"
	"github.com/jarnaez728/swimsync/internal/remote"
	"github.com/jarnaez728/swimsync/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swimsync",
	Short: "Local-first swim log with background sync",
	Long: `swimsync keeps a swim log (swimmers and their times) in a local
SQLite database and synchronizes it with a remote record service.

All edits are local-first: they commit locally and are pushed in the
background. Run 'swimsync daemon' for continuous sync, or 'swimsync sync'
for a one-shot cycle.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./swimsync.yaml)")

	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(swimCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(accountCmd)
}

// loadConfig resolves configuration for every subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openEngine wires store, remote client, and engine from configuration.
// The caller must Close the returned store.
func openEngine(cfg *config.Config) (*engine.Engine, *store.Store, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open local store: %w", err)
	}
	client := remote.NewClient(cfg.RemoteURL, nil)
	eng := engine.New(st, client, engine.Options{
		Zone:                 cfg.Zone,
		DebounceWindow:       cfg.DebounceWindow,
		DeleteDebounceWindow: cfg.DeleteDebounceWindow,
		MaxDebounceDelay:     cfg.MaxDebounceDelay,
	})
	return eng, st, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
