package cli

import (
	"os"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/dossier-summarizer/internal/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve case tools over MCP stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout so an assistant can
list cases, inspect documents, requeue failures, resume runs and build the
final report.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	if ledgerService == nil {
		return errNotConfigured
	}
	server, err := mcpadapter.NewServer(mcpadapter.Ports{
		Ledger:  ledgerService,
		Runner:  runnerService,
		Reports: reportService,
	})
	if err != nil {
		return err
	}
	return server.Run(cmd.Context(), os.Stdin, os.Stdout)
}
