package chi

import (
	"context"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/analysis"
	"github.com/kira-labs/kira/internal/usecase/assistant"
	"github.com/kira-labs/kira/internal/usecase/dashboard"
	"github.com/kira-labs/kira/internal/usecase/gazette"
	"github.com/kira-labs/kira/internal/usecase/health"
	"github.com/kira-labs/kira/internal/usecase/policyqa"
)

// DashboardService serves registry summaries and policy details.
type DashboardService interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
	Policies(ctx context.Context) ([]dashboard.PolicyItem, error)
	Policy(ctx context.Context, id string) (dashboard.PolicyDetail, error)
}

// AnalysisService runs impact analyses.
type AnalysisService interface {
	Run(ctx context.Context, req analysis.Request) analysis.Result
}

// AssistantService answers chat messages.
type AssistantService interface {
	Chat(ctx context.Context, message string, profile domain.OrganizationProfile) (assistant.Reply, error)
}

// PolicyQAService answers questions over gazette records.
type PolicyQAService interface {
	Ask(ctx context.Context, question, gazetteID string) policyqa.Answer
}

// GazetteAnalyzer extracts structured analyses from gazette notifications.
type GazetteAnalyzer interface {
	AnalyzeAll(ctx context.Context, limit int) []gazette.Result
}

// GazetteSource exposes the loaded gazette file.
type GazetteSource interface {
	Path() string
	Records() []domain.GazetteRecord
}

// ReadinessChecker reports dependency readiness.
type ReadinessChecker interface {
	Check(ctx context.Context) health.Report
}
