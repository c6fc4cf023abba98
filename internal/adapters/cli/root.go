// Package cli implements the casectl command line: case creation,
// selection review, summarization runs and the final report.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

// Services are the use cases the commands call. Documents is optional.
type Services struct {
	Ingest    ports.CaseIngestor
	Ledger    ports.CaseLedger
	Runner    ports.CaseRunner
	Reports   ports.ReportBuilder
	Documents ports.DocumentFinder
}

var errNotConfigured = errors.New("case services not configured")

var (
	ingestService   ports.CaseIngestor
	ledgerService   ports.CaseLedger
	runnerService   ports.CaseRunner
	reportService   ports.ReportBuilder
	documentService ports.DocumentFinder
)

var rootCmd = &cobra.Command{
	Use:   "casectl",
	Short: "Classify and summarize case dossiers",
	Long: `casectl creates a case from a directory of source documents, lets you
review the detected document types and selection, and then summarizes the
selected documents one at a time with a local model.

A run can be interrupted at any point; "casectl resume" continues where
the previous run stopped.`,
	SilenceUsage: true,
}

// Configure installs the services used by every command.
func Configure(s Services) {
	ingestService = s.Ingest
	ledgerService = s.Ledger
	runnerService = s.Runner
	reportService = s.Reports
	documentService = s.Documents
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
