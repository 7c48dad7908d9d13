package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jarnaez728/swimsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			fatalf("failed to open local store: %v", err)
		}
		defer st.Close()

		ctx := context.Background()

		fmt.Println("Local Store")
		fmt.Println("===========")
		fmt.Printf("Database:    %s\n", cfg.DBPath)
		if fi, err := os.Stat(cfg.DBPath); err == nil {
			fmt.Printf("Size:        %.1f KB\n", float64(fi.Size())/1024)
		}

		users, err := st.CountUsers(ctx)
		if err != nil {
			fatalf("count users: %v", err)
		}
		swims, err := st.CountSwimTimes(ctx)
		if err != nil {
			fatalf("count swim times: %v", err)
		}
		fmt.Printf("Users:       %d\n", users)
		fmt.Printf("Swim times:  %d\n", swims)

		fmt.Println()
		fmt.Println("Sync")
		fmt.Println("====")
		fmt.Printf("Remote:      %s\n", cfg.RemoteURL)
		fmt.Printf("Zone:        %s\n", cfg.Zone)

		pending, err := st.PendingCount(ctx)
		if err != nil {
			fatalf("count pending changes: %v", err)
		}
		fmt.Printf("Pending:     %d\n", pending)

		if _, err := st.GetMeta(ctx, "cursor/"+cfg.Zone); err == nil {
			fmt.Println("Cursor:      saved (incremental pull)")
		} else {
			fmt.Println("Cursor:      none (next pull fetches everything)")
		}
	},
}
