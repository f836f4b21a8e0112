package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// SyncCmd returns the one-shot sync command
func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the knowledge base and save the local snapshot",
		Long:  "Run one full sync against the vendor API and write the local snapshot. A running server watching the snapshot picks it up.",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	cmd.Annotations = envAnnotations(envVendor, envSnapshot)

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTelemetry := initTelemetry(cfg)
	defer shutdownTelemetry()

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}

	result := a.sync.ManualSync(context.Background())

	if outputFormat == "json" {
		data := map[string]interface{}{
			"success":   result.Success,
			"count":     result.Count,
			"timestamp": result.Timestamp.UTC().Format(time.RFC3339),
		}
		if !result.Success {
			data["error"] = result.Error
			data["code"] = result.Code
		}
		if err := printJSON(cmd.OutOrStdout(), data); err != nil {
			return err
		}
	} else if result.Success {
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d records to %s\n", result.Count, a.store.Path())
	}

	if !result.Success {
		return fmt.Errorf("sync failed: %s", result.Error)
	}
	return nil
}
