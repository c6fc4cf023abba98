package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("list_cases",
		mcp.WithDescription("List known cases with their document counts"),
	), s.handleListCases)

	s.server.AddTool(mcp.NewTool("get_case",
		mcp.WithDescription("Show one case: counts plus every document with its type, selection and status"),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("case id")),
	), s.handleGetCase)

	s.server.AddTool(mcp.NewTool("requeue_document",
		mcp.WithDescription("Queue a failed document for another summarization attempt"),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("case id")),
		mcp.WithString("doc_id", mcp.Required(), mcp.Description("document id")),
	), s.handleRequeueDocument)

	if s.ports.Runner != nil {
		s.server.AddTool(mcp.NewTool("resume_case",
			mcp.WithDescription("Summarize the queued documents of a committed case and report the outcome"),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("case id")),
		), s.handleResumeCase)
	}
	if s.ports.Reports != nil {
		s.server.AddTool(mcp.NewTool("build_report",
			mcp.WithDescription("Concatenate the summaries of a case into its final report"),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("case id")),
		), s.handleBuildReport)
	}
}

type documentOutput struct {
	ID       string `json:"doc_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Selected bool   `json:"selected"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleListCases(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cases, err := s.ports.Ledger.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"cases": cases, "count": len(cases)})
}

func (s *Server) handleGetCase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := caseIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	manifest, err := s.ports.Ledger.Get(ctx, caseID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	docs := make([]documentOutput, 0, len(manifest.Documents))
	for i := range manifest.Documents {
		doc := &manifest.Documents[i]
		docs = append(docs, documentOutput{
			ID:       doc.ID,
			Name:     doc.OriginalName,
			Type:     doc.FinalType(),
			Selected: doc.Selected,
			Status:   string(doc.Status),
			Error:    doc.ErrorMessage,
		})
	}
	return jsonResult(map[string]any{"summary": manifest.Summary(), "documents": docs})
}

func (s *Server) handleRequeueDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := caseIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docID, err := req.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.ports.Ledger.Requeue(ctx, caseID, docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s is %s", doc.ID, doc.Status)), nil
}

func (s *Server) handleResumeCase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := caseIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.ports.Runner.Resume(ctx, caseID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) handleBuildReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := caseIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.ports.Reports.BuildReport(ctx, caseID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(path), nil
}

func caseIDArg(req mcp.CallToolRequest) (string, error) {
	caseID, err := req.RequireString("case_id")
	if err != nil {
		return "", err
	}
	if err := domain.ValidateCaseID(caseID); err != nil {
		return "", err
	}
	return caseID, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
