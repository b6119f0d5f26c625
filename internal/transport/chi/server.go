package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	logpkg "github.com/kira-labs/kira/internal/logger"
	"github.com/kira-labs/kira/internal/usecase/analysis"
	"github.com/kira-labs/kira/internal/usecase/health"
)

const (
	defaultAnalysesLimit = 8
	maxAnalysesLimit     = 20
	assistantFailed      = "Assistant failed safely"
	gazetteFetchFailed   = "Failed to fetch gazette data"
)

// Services groups the use cases served over HTTP.
type Services struct {
	Dashboard DashboardService
	Analysis  AnalysisService
	Assistant AssistantService
	PolicyQA  PolicyQAService
	Gazettes  GazetteAnalyzer
	Records   GazetteSource
	Readiness ReadinessChecker
}

// Server holds the HTTP handlers of the kira API.
type Server struct {
	appName       string
	svc           Services
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(appName string, svc Services) *Server {
	return &Server{
		appName:       appName,
		svc:           svc,
		errorHandlers: defaultErrorHandlers(),
	}
}

type policyQueryRequest struct {
	Question  string  `json:"question"`
	GazetteID *string `json:"gazette_id"`
}

type analysisRunRequest struct {
	OrganizationProfile *domain.OrganizationProfile `json:"organizationProfile"`
	GazetteID           *string                     `json:"gazetteId"`
}

type chatRequest struct {
	Message             string                      `json:"message"`
	OrganizationProfile *domain.OrganizationProfile `json:"organizationProfile"`
}

type assistantResponse struct {
	Response    string `json:"response"`
	Confidence  string `json:"confidence"`
	ContextUsed int    `json:"context_used"`
}

// Root handles GET /.
func (s *Server) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running", "message": s.appName})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, health.Liveness())
}

// Readiness handles GET /readiness. A degraded report is still served with 200.
func (s *Server) Readiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Readiness.Check(r.Context()))
}

// DashboardSummary handles GET /api/dashboard.
func (s *Server) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Dashboard.Summary(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListPolicies handles GET /api/policies.
func (s *Server) ListPolicies(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Dashboard.Policies(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetPolicy handles GET /api/policies/{policyID}.
func (s *Server) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := gochi.URLParam(r, "policyID")
	detail, err := s.svc.Dashboard.Policy(r.Context(), id)
	if errors.Is(err, domain.ErrPolicyNotFound) {
		writeError(w, r, http.StatusNotFound, CodePolicyNotFound, fmt.Sprintf("Policy %s not found", id))
		return
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListGazettes handles GET /api/gazettes.
func (s *Server) ListGazettes(w http.ResponseWriter, _ *http.Request) {
	if s.svc.Records.Path() == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": gazetteFetchFailed})
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Records.Records())
}

// PolicyAnalyses handles GET /api/policy-analyses?limit=N.
func (s *Server) PolicyAnalyses(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, msgValidation)
		return
	}
	n := defaultAnalysesLimit
	if limit != nil {
		n = *limit
	}
	if n < 1 || n > maxAnalysesLimit {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, msgValidation)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Gazettes.AnalyzeAll(r.Context(), n))
}

// PolicyQuery handles POST /api/policy-query.
func (s *Server) PolicyQuery(w http.ResponseWriter, r *http.Request) {
	var req policyQueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := domain.ValidateMessage("question", req.Question); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	var gazetteID string
	if req.GazetteID != nil {
		gazetteID = *req.GazetteID
	}
	writeJSON(w, http.StatusOK, s.svc.PolicyQA.Ask(r.Context(), req.Question, gazetteID))
}

// RunAnalysis handles POST /api/analysis/run.
func (s *Server) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRunRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.OrganizationProfile == nil {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, msgValidation)
		return
	}
	if err := req.OrganizationProfile.Validate(); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	areq := analysis.Request{Profile: *req.OrganizationProfile}
	if req.GazetteID != nil {
		areq.GazetteID = strings.TrimSpace(*req.GazetteID)
	}
	writeJSON(w, http.StatusOK, s.svc.Analysis.Run(r.Context(), areq))
}

// AssistantChat handles POST /api/assistant/chat.
func (s *Server) AssistantChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.OrganizationProfile == nil {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, msgValidation)
		return
	}
	if err := domain.ValidateMessage("message", req.Message); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := req.OrganizationProfile.Validate(); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	reply, err := s.svc.Assistant.Chat(r.Context(), req.Message, *req.OrganizationProfile)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// AssistantSafe handles POST /api/assistant. It never fails with an error status once
// the body is a JSON object; failures are reported in the body.
func (s *Server) AssistantSafe(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if !s.decode(w, r, &body) {
		return
	}

	message := strings.TrimSpace(stringField(body, "message"))
	if message == "" {
		writeJSON(w, http.StatusOK, map[string]string{"error": assistantFailed, "details": "message is required"})
		return
	}

	reply, err := s.svc.Assistant.Chat(r.Context(), message, domain.DefaultProfile())
	if err != nil {
		logpkg.FromContext(r.Context()).Warn("assistant_failed_safely", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"error": assistantFailed})
		return
	}
	writeJSON(w, http.StatusOK, assistantResponse{
		Response:    reply.Reply,
		Confidence:  reply.Confidence,
		ContextUsed: reply.ContextUsed,
	})
}

// NotFound answers unknown routes.
func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, CodeNotFound, "Not Found")
}

// MethodNotAllowed answers known routes called with the wrong method.
func (s *Server) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method Not Allowed")
}

// decode strictly decodes a JSON body into dst. Unknown fields, trailing data and
// malformed JSON are validation errors; an oversized body is 413.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, "Request body too large")
			return false
		}
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, msgValidation)
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil || dec.More() {
		logpkg.FromContext(r.Context()).Debug("request_decode_failed", zap.Error(err))
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, msgValidation)
		return false
	}
	return true
}

func stringField(body map[string]any, key string) string {
	switch v := body[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
