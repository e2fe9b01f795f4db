package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convoflow/convoflow/internal/cli"
	"github.com/convoflow/convoflow/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "convoflowd",
		Short: "Convoflow daemon and CLI",
		Long:  "Convoflow daemon for running the API server and managing businesses and API keys",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.BusinessCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
