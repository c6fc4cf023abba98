package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

var newCmd = &cobra.Command{
	Use:   "new [source-dir]",
	Short: "Create a case and classify its documents",
	Long: `Creates a case directory for the given source directory, copies every
readable file into it, extracts its text and detects its document type.`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List known cases",
	Args:  cobra.NoArgs,
	RunE:  runCases,
}

var showCmd = &cobra.Command{
	Use:   "show [case]",
	Short: "Show the documents of a case",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var selectCmd = &cobra.Command{
	Use:   "select [case] [doc-id]",
	Short: "Include or exclude a document",
	Args:  cobra.ExactArgs(2),
	RunE:  runSelect,
}

var overrideCmd = &cobra.Command{
	Use:   "override [case] [doc-id] [type]",
	Short: "Override the detected type of a document",
	Args:  cobra.ExactArgs(3),
	RunE:  runOverride,
}

var commitCmd = &cobra.Command{
	Use:   "commit [case]",
	Short: "Freeze the selection and queue selected documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommit,
}

var requeueCmd = &cobra.Command{
	Use:   "requeue [case] [doc-id]",
	Short: "Queue a failed document again",
	Args:  cobra.ExactArgs(2),
	RunE:  runRequeue,
}

var resumeCmd = &cobra.Command{
	Use:   "resume [case]",
	Short: "Summarize queued documents until none are left",
	Long: `Repairs the case after an interrupted run, then summarizes queued
documents one at a time. Ctrl-C stops after the current document.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var reportCmd = &cobra.Command{
	Use:   "report [case]",
	Short: "Write the final report from the summaries",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List failed documents across cases",
	Args:  cobra.NoArgs,
	RunE:  runFailed,
}

var (
	selectOff   bool
	failedLimit int
)

func init() {
	selectCmd.Flags().BoolVar(&selectOff, "off", false, "Exclude the document instead of including it")
	failedCmd.Flags().IntVarP(&failedLimit, "limit", "n", 50, "Maximum number of documents to list")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(failedCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured
	}
	manifest, err := ingestService.CreateCase(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	cmd.Printf("Created case %s\n  Dir: %s\n", manifest.Case.ID, manifest.Case.Dir)

	report, err := ingestService.ClassifyCase(cmd.Context(), manifest.Case.ID)
	if err != nil {
		return fmt.Errorf("failed to classify case: %w", err)
	}
	cmd.Printf("Classified %d documents\n", report.Added)
	for _, skipped := range report.Skipped {
		cmd.Printf("  skipped %s: %s\n", skipped.Path, skipped.Reason)
	}
	if report.Canceled {
		cmd.Println("Classification was interrupted; remaining files were not added.")
	}
	return nil
}

func runCases(cmd *cobra.Command, _ []string) error {
	if ledgerService == nil {
		return errNotConfigured
	}
	cases, err := ledgerService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list cases: %w", err)
	}
	if len(cases) == 0 {
		cmd.Println("No cases found.")
		return nil
	}
	for _, c := range cases {
		state := "open"
		if c.Committed {
			state = "committed"
		}
		cmd.Printf("%s  %-9s  %d docs  %d summarized  %d failed  %d queued\n",
			c.CaseID, state, c.Total, c.Summarized, c.Failed, c.Queued)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	if ledgerService == nil {
		return errNotConfigured
	}
	manifest, err := ledgerService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load case: %w", err)
	}
	cmd.Printf("Case %s\n  Dir: %s\n", manifest.Case.ID, manifest.Case.Dir)
	if manifest.Case.FinalReportPath != "" {
		cmd.Printf("  Report: %s\n", manifest.Case.FinalReportPath)
	}
	cmd.Println()

	for i := range manifest.Documents {
		doc := &manifest.Documents[i]
		mark := " "
		if doc.Selected {
			mark = "x"
		}
		cmd.Printf("[%s] %s  %-8s %-12s %s\n", mark, doc.ID, doc.FinalType(), doc.Status, doc.OriginalName)
		if doc.ErrorMessage != "" {
			cmd.Printf("      error: %s\n", doc.ErrorMessage)
		}
	}

	summary := manifest.Summary()
	cmd.Printf("\nTotal: %d  summarized: %d  failed: %d  skipped: %d\n",
		summary.Total, summary.Summarized, summary.Failed, summary.Skipped)
	return nil
}

func runSelect(cmd *cobra.Command, args []string) error {
	if ledgerService == nil {
		return errNotConfigured
	}
	doc, err := ledgerService.SetSelected(cmd.Context(), args[0], args[1], !selectOff)
	if err != nil {
		return fmt.Errorf("failed to update selection: %w", err)
	}
	cmd.Printf("%s selected=%t status=%s\n", doc.ID, doc.Selected, doc.Status)
	return nil
}

func runOverride(cmd *cobra.Command, args []string) error {
	if ledgerService == nil {
		return errNotConfigured
	}
	doc, err := ledgerService.OverrideType(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return fmt.Errorf("failed to override type: %w", err)
	}
	cmd.Printf("%s type=%s (%s)\n", doc.ID, doc.FinalType(), domain.WorkflowFor(doc.FinalType()))
	return nil
}

func runCommit(cmd *cobra.Command, args []string) error {
	if ledgerService == nil {
		return errNotConfigured
	}
	manifest, err := ledgerService.Commit(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to commit selection: %w", err)
	}
	summary := manifest.Summary()
	cmd.Printf("Committed %s: %d queued, %d skipped\n", summary.CaseID, summary.Queued, summary.Skipped)
	return nil
}

func runRequeue(cmd *cobra.Command, args []string) error {
	if ledgerService == nil {
		return errNotConfigured
	}
	doc, err := ledgerService.Requeue(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to requeue document: %w", err)
	}
	cmd.Printf("%s is %s\n", doc.ID, doc.Status)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	if runnerService == nil {
		return errNotConfigured
	}
	report, err := runnerService.Resume(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to resume case: %w", err)
	}
	if report.Normalized > 0 {
		cmd.Printf("Repaired %d documents from an earlier run\n", report.Normalized)
	}
	cmd.Printf("Summarized: %d  failed: %d  remaining: %d\n", report.Summarized, report.Failed, report.Remaining)
	if report.Canceled {
		cmd.Printf("Stopped early; run \"casectl resume %s\" to continue.\n", args[0])
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportService == nil {
		return errNotConfigured
	}
	path, err := reportService.BuildReport(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	cmd.Printf("Report written to %s\n", path)
	return nil
}

func runFailed(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document index not configured; set POSTGRES_DSN")
	}
	events, err := documentService.ListDocumentsByStatus(cmd.Context(), domain.StatusError, failedLimit)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(events) == 0 {
		cmd.Println("No failed documents.")
		return nil
	}
	for _, event := range events {
		cmd.Printf("%s  %s  %s\n    %s\n", event.CaseID, event.DocumentID, event.Filename, event.ErrorMessage)
	}
	return nil
}
