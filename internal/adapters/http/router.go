package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/config"
	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
	"github.com/kirillkom/dossier-summarizer/internal/observability/metrics"
)

const serviceName = "api"

// Services bundles the use cases the API exposes. Runner, ResumeQueue and
// Documents are optional.
type Services struct {
	Ingest      ports.CaseIngestor
	Ledger      ports.CaseLedger
	Reports     ports.ReportBuilder
	Runner      ports.CaseRunner
	ResumeQueue ports.ResumeQueue
	Documents   ports.DocumentFinder
}

type Router struct {
	ingest      ports.CaseIngestor
	ledger      ports.CaseLedger
	reports     ports.ReportBuilder
	runner      ports.CaseRunner
	resumeQueue ports.ResumeQueue
	documents   ports.DocumentFinder

	httpMetrics *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	inFlightWait   time.Duration
}

func NewRouter(cfg config.Config, services Services) *Router {
	return &Router{
		ingest:         services.Ingest,
		ledger:         services.Ledger,
		reports:        services.Reports,
		runner:         services.Runner,
		resumeQueue:    services.ResumeQueue,
		documents:      services.Documents,
		httpMetrics:    metrics.NewHTTPServerMetrics(serviceName),
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIBackpressureMaxInFlight,
		inFlightWait:   time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.httpMetrics.Handler())

	mux.HandleFunc("GET /v1/cases", rt.listCases)
	mux.HandleFunc("POST /v1/cases", rt.createCase)
	mux.HandleFunc("GET /v1/cases/{caseID}", rt.getCase)
	mux.HandleFunc("POST /v1/cases/{caseID}/commit", rt.commitCase)
	mux.HandleFunc("POST /v1/cases/{caseID}/resume", rt.resumeCase)
	mux.HandleFunc("POST /v1/cases/{caseID}/report", rt.buildReport)
	mux.HandleFunc("PATCH /v1/cases/{caseID}/documents/{docID}", rt.updateDocument)
	mux.HandleFunc("POST /v1/cases/{caseID}/documents/{docID}/requeue", rt.requeueDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)

	var handler http.Handler = rt.httpMetrics.Middleware(serviceName, mux)
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.inFlightWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listCases(w http.ResponseWriter, r *http.Request) {
	cases, err := rt.ledger.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if cases == nil {
		cases = []domain.CaseSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (rt *Router) createCase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceDir string `json:"source_dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.SourceDir) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_dir is required"})
		return
	}

	manifest, err := rt.ingest.CreateCase(r.Context(), req.SourceDir)
	if err != nil {
		rt.httpMetrics.RecordCaseAction(serviceName, "create", err)
		writeError(w, err)
		return
	}
	report, err := rt.ingest.ClassifyCase(r.Context(), manifest.Case.ID)
	rt.httpMetrics.RecordCaseAction(serviceName, "create", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"case":           manifest.Case,
		"classification": report,
	})
}

func (rt *Router) getCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	manifest, err := rt.ledger.Get(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":  manifest.Summary(),
		"manifest": manifest,
	})
}

func (rt *Router) commitCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	manifest, err := rt.ledger.Commit(r.Context(), caseID)
	rt.httpMetrics.RecordCaseAction(serviceName, "commit", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest.Summary())
}

func (rt *Router) updateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selected     *bool   `json:"selected"`
		TypeOverride *string `json:"type_override"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Selected == nil && req.TypeOverride == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "selected or type_override is required"})
		return
	}

	caseID, err := caseIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	docID := r.PathValue("docID")
	var doc *domain.DocumentRecord
	if req.TypeOverride != nil {
		if doc, err = rt.ledger.OverrideType(r.Context(), caseID, docID, *req.TypeOverride); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Selected != nil {
		if doc, err = rt.ledger.SetSelected(r.Context(), caseID, docID, *req.Selected); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) requeueDocument(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := rt.ledger.Requeue(r.Context(), caseID, r.PathValue("docID"))
	rt.httpMetrics.RecordCaseAction(serviceName, "requeue", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// resumeCase hands the run to the worker through the queue. Without a queue
// the run starts in this process and outlives the request.
func (rt *Router) resumeCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		rt.httpMetrics.RecordCaseAction(serviceName, "resume", err)
		writeError(w, err)
		return
	}
	manifest, err := rt.ledger.Get(r.Context(), caseID)
	if err != nil {
		rt.httpMetrics.RecordCaseAction(serviceName, "resume", err)
		writeError(w, err)
		return
	}
	if !manifest.Committed() {
		err := domain.WrapError(domain.ErrConflict, "resume case", errors.New("selection is not committed"))
		rt.httpMetrics.RecordCaseAction(serviceName, "resume", err)
		writeError(w, err)
		return
	}
	caseID = manifest.Case.ID

	switch {
	case rt.resumeQueue != nil:
		err = rt.resumeQueue.PublishResumeRequest(r.Context(), caseID)
		rt.httpMetrics.RecordCaseAction(serviceName, "resume", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"case_id": caseID, "dispatch": "queue"})
	case rt.runner != nil:
		rt.httpMetrics.RecordCaseAction(serviceName, "resume", nil)
		go rt.runInBackground(context.WithoutCancel(r.Context()), caseID)
		writeJSON(w, http.StatusAccepted, map[string]string{"case_id": caseID, "dispatch": "local"})
	default:
		err := domain.WrapError(domain.ErrTemporary, "resume case", errors.New("no runner configured"))
		rt.httpMetrics.RecordCaseAction(serviceName, "resume", err)
		writeError(w, err)
	}
}

func (rt *Router) runInBackground(ctx context.Context, caseID string) {
	report, err := rt.runner.Resume(ctx, caseID)
	if err != nil {
		slog.Error("case_resume_failed", "case_id", caseID, "error", err)
		return
	}
	slog.Info("case_resume_finished",
		"case_id", caseID,
		"summarized", report.Summarized,
		"failed", report.Failed,
		"remaining", report.Remaining,
	)
}

func (rt *Router) buildReport(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	path, err := rt.reports.BuildReport(r.Context(), caseID)
	rt.httpMetrics.RecordCaseAction(serviceName, "report", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report_path": path})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	if rt.documents == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "document index is not configured"})
		return
	}
	status, err := domain.ParseDocumentStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
	}

	events, err := rt.documents.ListDocumentsByStatus(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.DocumentEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": events})
}

// caseIDParam returns the bare case id from the path. Path-style refs are a
// local CLI convenience and are refused here.
func caseIDParam(r *http.Request) (string, error) {
	caseID := r.PathValue("caseID")
	if err := domain.ValidateCaseID(caseID); err != nil {
		return "", err
	}
	return caseID, nil
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
