package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jarnaez728/swimsync/internal/remote"
)

var syncReseed bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle (pull then push)",
	Long: `Run a single synchronization cycle against the remote service:

  1. Pull remote changes since the saved cursor and apply them
  2. Push all queued local changes

With --reseed, every local record is re-enqueued first (full re-upload),
which merges this store into the account after a fresh sign-in.`,
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

		ctx := context.Background()
		start := time.Now()

		if syncReseed {
			if err := eng.Reseed(ctx); err != nil {
				fatalf("reseed failed: %v", err)
			}
		}
		if err := eng.PullOnce(ctx); err != nil {
			fatalf("pull failed: %v", err)
		}
		if err := eng.Flush(ctx); err != nil {
			fatalf("push failed: %v", err)
		}

		pending, _ := st.PendingCount(ctx)
		fmt.Printf("Sync complete in %v (%d changes still queued)\n",
			time.Since(start).Round(time.Millisecond), pending)
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account/session transitions",
}

var accountSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out: wipe the local cache and cursor",
	Long: `Sign out of the current account.

Any armed debounced send is cancelled, the sync cursor is cleared, and all
local records of both kinds are deleted — the local cache is not trusted to
belong to the next account.`,
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

		if err := eng.HandleAccountChange(context.Background(), remote.AccountSignOut); err != nil {
			fatalf("sign-out failed: %v", err)
		}
		fmt.Println("Signed out: local cache wiped")
	},
}

var accountSignInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in: pull everything, then reseed local records",
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

		if err := eng.HandleAccountChange(context.Background(), remote.AccountSignIn); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: sign-in sync incomplete: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Signed in: local records merged with account")
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncReseed, "reseed", false, "re-enqueue every local record before syncing")
	accountCmd.AddCommand(accountSignInCmd)
	accountCmd.AddCommand(accountSignOutCmd)
}
