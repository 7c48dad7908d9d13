package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/remote"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage swimmers",
}

var userAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a swimmer",
	Long: `Add a swimmer to the local store.

The record commits locally first and is queued for push; sync is attempted
immediately but a failure just leaves the change queued.`,
	Args: cobra.ExactArgs(1),
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
		u := &record.User{ID: record.NewID(), Name: args[0]}
		if err := eng.SaveUser(ctx, u); err != nil {
			fatalf("failed to add user: %v", err)
		}
		flushQuietly(ctx, eng)
		fmt.Printf("Added swimmer %s (%s)\n", u.Name, u.ID)
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List swimmers",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		_, st, err := openEngine(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		users, err := st.ListUsers(context.Background())
		if err != nil {
			fatalf("failed to list users: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSYNCED")
		for _, u := range users {
			synced := "no"
			if len(u.SysFields) > 0 {
				synced = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Name, synced)
		}
		w.Flush()
	},
}

var userRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a swimmer",
	Args:  cobra.ExactArgs(1),
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
		if err := eng.DeleteUser(ctx, args[0]); err != nil {
			fatalf("failed to delete user: %v", err)
		}
		flushQuietly(ctx, eng)
		fmt.Printf("Deleted swimmer %s\n", args[0])
	},
}

// flushQuietly pushes queued changes if the service is reachable. Offline
// is fine: the change stays queued for the next cycle.
func flushQuietly(ctx context.Context, eng interface {
	Flush(context.Context) error
}) {
	if err := eng.Flush(ctx); err != nil {
		if remote.IsTransient(err) {
			fmt.Fprintln(os.Stderr, "Offline: change saved locally and queued for sync")
			return
		}
		fmt.Fprintf(os.Stderr, "Warning: sync failed: %v\n", err)
	}
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRmCmd)
}
