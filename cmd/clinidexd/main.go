package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixcare/clinidex/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinidexd",
		Short: "Clinidex document ingestion and retrieval server",
		Long:  "Clinidex ingests clinical documents through an extract/enrich/index pipeline and serves owner-scoped context retrieval",
	}

	rootCmd.AddCommand(cli.ServeCmd())

	// Default to serve when invoked without a subcommand
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
