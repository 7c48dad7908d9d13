package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jarnaez728/swimsync/internal/record"
	"github.com/jarnaez728/swimsync/internal/store"
)

var (
	swimUser     string
	swimDate     string
	swimDistance int
	swimStroke   string
	swimElapsed  float64
	swimFilterBy string
)

var swimCmd = &cobra.Command{
	Use:   "swim",
	Short: "Manage swim times",
}

var swimAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a swim time",
	Long: `Record a swim time for a swimmer.

Example:
  swimsync swim add --user 1f0e... --distance 100 --stroke freestyle --elapsed 62.3`,
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

		date := time.Now()
		if swimDate != "" {
			date, err = time.Parse("2006-01-02", swimDate)
			if err != nil {
				fatalf("invalid --date (want YYYY-MM-DD): %v", err)
			}
		}
		stroke, err := record.ParseStroke(swimStroke)
		if err != nil {
			fatalf("%v", err)
		}
		if _, err := st.GetUser(ctx, swimUser); err != nil {
			fatalf("unknown swimmer %s: %v", swimUser, err)
		}

		sw := &record.SwimTime{
			ID:       record.NewID(),
			UserID:   swimUser,
			Date:     date,
			Distance: swimDistance,
			Stroke:   stroke,
			Elapsed:  swimElapsed,
		}
		if err := eng.SaveSwimTime(ctx, sw); err != nil {
			fatalf("failed to record swim time: %v", err)
		}
		flushQuietly(ctx, eng)
		fmt.Printf("Recorded %dm %s in %.2fs (%s)\n", sw.Distance, sw.Stroke, sw.Elapsed, sw.ID)
	},
}

var swimListCmd = &cobra.Command{
	Use:   "list",
	Short: "List swim times, newest first",
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

		times, err := st.ListSwimTimes(context.Background(), store.SwimTimeFilter{UserID: swimFilterBy})
		if err != nil {
			fatalf("failed to list swim times: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tDIST\tSTROKE\tTIME\tSWIMMER")
		for _, sw := range times {
			fmt.Fprintf(w, "%s\t%s\t%dm\t%s\t%.2fs\t%s\n",
				sw.ID, sw.Date.Format("2006-01-02"), sw.Distance, sw.Stroke, sw.Elapsed, sw.UserID)
		}
		w.Flush()
	},
}

var swimRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a swim time",
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
		if err := eng.DeleteSwimTime(ctx, args[0]); err != nil {
			fatalf("failed to delete swim time: %v", err)
		}
		flushQuietly(ctx, eng)
		fmt.Printf("Deleted swim time %s\n", args[0])
	},
}

func init() {
	swimAddCmd.Flags().StringVar(&swimUser, "user", "", "swimmer record id (required)")
	swimAddCmd.Flags().StringVar(&swimDate, "date", "", "swim date as YYYY-MM-DD (default: today)")
	swimAddCmd.Flags().IntVar(&swimDistance, "distance", 0, "distance in meters (required)")
	swimAddCmd.Flags().StringVar(&swimStroke, "stroke", "", "stroke: freestyle, backstroke, breaststroke, butterfly, medley")
	swimAddCmd.Flags().Float64Var(&swimElapsed, "elapsed", 0, "elapsed time in seconds (required)")
	_ = swimAddCmd.MarkFlagRequired("user")
	_ = swimAddCmd.MarkFlagRequired("distance")
	_ = swimAddCmd.MarkFlagRequired("stroke")
	_ = swimAddCmd.MarkFlagRequired("elapsed")

	swimListCmd.Flags().StringVar(&swimFilterBy, "user", "", "filter by swimmer record id")

	swimCmd.AddCommand(swimAddCmd)
	swimCmd.AddCommand(swimListCmd)
	swimCmd.AddCommand(swimRmCmd)
}
