package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/kbsearch/internal/cli"
	"github.com/cloo-solutions/kbsearch/internal/cli/daemon"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "kbsearchd",
		Short:         "Knowledge base search daemon and CLI",
		Long:          "kbsearchd mirrors a customer-service knowledge base locally, keeps it in sync and serves fuzzy question search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(daemon.ServeCmd())
	rootCmd.AddCommand(daemon.SyncCmd())
	rootCmd.AddCommand(daemon.SearchCmd())
	rootCmd.AddCommand(daemon.StatusCmd())
	rootCmd.AddCommand(daemon.TestConnectionCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
