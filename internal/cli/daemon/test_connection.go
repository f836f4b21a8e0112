package daemon

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// TestConnectionCmd returns the vendor connectivity check command
func TestConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the vendor API is reachable",
		Long:  "Fetch the full knowledge base without saving or serving it, and report how many records came back",
		Args:  cobra.NoArgs,
		RunE:  runTestConnection,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	cmd.Annotations = envAnnotations(envVendor)

	return cmd
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}

	result := a.sync.TestConnection(context.Background())

	if outputFormat == "json" {
		data := map[string]interface{}{
			"success": result.Success,
			"count":   result.Count,
			"message": result.Message,
		}
		if result.Error != "" {
			data["error"] = result.Error
		}
		if err := printJSON(cmd.OutOrStdout(), data); err != nil {
			return err
		}
	} else if result.Success {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records\n", result.Message, result.Count)
	}

	if !result.Success {
		return fmt.Errorf("%s: %s", result.Message, result.Error)
	}
	return nil
}
