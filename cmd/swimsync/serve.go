package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jarnaez728/swimsync/internal/remote"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference record service",
	Long: `Run an in-memory record service for development and testing.

Implements the full sync protocol: batched pushes with per-record results,
revision-based conflict detection, cursor-resumable pulls, and a websocket
event stream. State lives in memory and is lost on exit.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		srv := remote.NewServer(log.New(os.Stderr, "[remote] ", log.LstdFlags))
		if err := srv.Start(cfg.ListenAddr); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Record service listening on %s\n", srv.Addr())

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		if err := srv.Stop(); err != nil {
			fatalf("shutdown failed: %v", err)
		}
	},
}
