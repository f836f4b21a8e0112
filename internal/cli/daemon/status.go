package daemon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/jobs"
	"github.com/spf13/cobra"
)

// StatusCmd returns the local snapshot status command
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local snapshot statistics",
		Long:  "Report record count, capture time, freshness, category counts and the next scheduled sync for the local snapshot",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	cmd.Annotations = envAnnotations(envSnapshot, []string{"KBSEARCH_SYNC_INTERVAL"})

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}

	snap, err := a.loadLocal(context.Background())
	if err != nil {
		return err
	}

	now := time.Now()
	stats := a.index.Statistics()
	fresh := snap.Fresh(now, a.store.TTL())

	var nextSync time.Time
	if schedule, err := jobs.ParseSchedule(cfg.SyncInterval); err == nil {
		nextSync = schedule.Next(now)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return printJSON(out, map[string]interface{}{
			"path":           a.store.Path(),
			"totalQuestions": stats.TotalQuestions,
			"capturedAt":     snap.CapturedAt.UTC().Format(time.RFC3339),
			"fresh":          fresh,
			"categories":     stats.Categories,
			"nextSync":       nextSync.UTC().Format(time.RFC3339),
		})
	}

	freshness := "fresh"
	if !fresh {
		freshness = "stale, the server will sync on start"
	}

	fmt.Fprintf(out, "Snapshot:   %s\n", a.store.Path())
	fmt.Fprintf(out, "Records:    %d\n", stats.TotalQuestions)
	fmt.Fprintf(out, "Captured:   %s (%s)\n", snap.CapturedAt.Local().Format("2006-01-02 15:04:05"), freshness)
	fmt.Fprintf(out, "Next sync:  %s\n", nextSync.Local().Format("2006-01-02 15:04:05"))

	if len(stats.Categories) > 0 {
		names := make([]string, 0, len(stats.Categories))
		for name := range stats.Categories {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(out, "Categories:")
		for _, name := range names {
			fmt.Fprintf(out, "  %-20s %d\n", name, stats.Categories[name])
		}
	}
	return nil
}
