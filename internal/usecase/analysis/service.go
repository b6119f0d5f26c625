// Package analysis estimates the regulatory impact on an organization.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/usecase/rag"
	"github.com/kira-labs/kira/internal/usecase/structured"
)

const (
	cacheNamespace   = "analysis"
	retrievalQuery   = "regulatory compliance impact requirements"
	relevantPolicies = 5
	maxActions       = 4
)

// Impact levels of a relevant policy.
const (
	ImpactHigh   = "High"
	ImpactMedium = "Medium"
	ImpactLow    = "Low"
)

var riskBase = map[structured.RiskLevel]int{
	structured.RiskLow:      25,
	structured.RiskMedium:   50,
	structured.RiskHigh:     75,
	structured.RiskCritical: 90,
}

// RelevantPolicy is a policy the analysis was based on.
type RelevantPolicy struct {
	ID          string `json:"id"`
	ImpactLevel string `json:"impactLevel"`
}

// GrowthPoint is one quarter of the projected growth chart.
type GrowthPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Result is the impact analysis response.
type Result struct {
	RelevantPolicies          []RelevantPolicy `json:"relevantPolicies"`
	ImpactSummary             string           `json:"impactSummary"`
	FinancialImpactProjection string           `json:"financialImpactProjection"`
	RiskScore                 int              `json:"riskScore"`
	GrowthChartData           []GrowthPoint    `json:"growthChartData"`
}

// Request selects either a profile-wide analysis or a single gazette.
type Request struct {
	Profile   domain.OrganizationProfile
	GazetteID string
}

// Service runs impact analyses.
type Service struct {
	retriever Retriever
	generator JSONGenerator
	gazettes  GazetteAnalyzer
	cache     Cache
	logger    *zap.Logger
}

// New creates an analysis service. gazettes and cache may be nil.
func New(retriever Retriever, generator JSONGenerator, gazettes GazetteAnalyzer, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{retriever: retriever, generator: generator, gazettes: gazettes, cache: cache, logger: logger}
}

// Run analyzes the request. A gazette id whose analysis succeeds short-circuits the
// profile analysis; otherwise the profile is analyzed.
func (s *Service) Run(ctx context.Context, req Request) Result {
	if req.GazetteID != "" && s.gazettes != nil {
		if res, ok := s.fromGazette(ctx, req.GazetteID); ok {
			return res
		}
	}
	return s.RunProfile(ctx, req.Profile)
}

// RunProfile analyzes the regulatory impact on an organization. Generation failures
// yield a deterministic fallback summary.
func (s *Service) RunProfile(ctx context.Context, profile domain.OrganizationProfile) Result {
	key := cacheKey(profile)
	if s.cache != nil {
		var cached Result
		hit, err := s.cache.GetJSON(ctx, cacheNamespace, key, &cached)
		if err != nil {
			s.logger.Warn("analysis_cache_read_failed", zap.Error(err))
		}
		if hit && len(cached.RelevantPolicies) > 0 {
			return cached
		}
	}

	retrieved, err := s.retriever.Retrieve(ctx, profile, retrievalQuery)
	if err != nil {
		s.logger.Warn("analysis_retrieval_failed", zap.Error(err))
		retrieved = nil
	}

	relevant := relevantFrom(retrieved)
	impact := s.generateImpact(ctx, profile, len(retrieved))
	score := RiskScore(impact.RiskLevel, len(relevant))

	res := Result{
		RelevantPolicies:          relevant,
		ImpactSummary:             impact.Summary,
		FinancialImpactProjection: impact.Financial,
		RiskScore:                 score,
		GrowthChartData:           GrowthChart(score),
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheNamespace, key, res, 0); err != nil {
			s.logger.Warn("analysis_cache_write_failed", zap.Error(err))
		}
	}
	return res
}

func (s *Service) generateImpact(ctx context.Context, profile domain.OrganizationProfile, contextCount int) structured.ImpactPayload {
	prompt := "You are a regulatory impact engine. Return only valid JSON with keys " +
		"summary, financial, compliance_risk_level. " +
		fmt.Sprintf("Organization=%s, Industry=%s, Business Model=%s, Relevant policy chunks=%d.",
			profile.OrganizationName, profile.Industry, profile.BusinessModel, contextCount)

	obj, err := s.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		s.logger.Warn("impact_analysis_fallback",
			zap.String("kind", domain.KindOf(err).String()),
			zap.Error(err),
		)
		return structured.FallbackImpact(profile, contextCount)
	}
	return structured.NormalizeImpact(obj, profile, contextCount)
}

// fromGazette builds a result from one gazette's structured analysis.
func (s *Service) fromGazette(ctx context.Context, gazetteID string) (Result, bool) {
	g := s.gazettes.Analyze(ctx, gazetteID)
	if g.Analysis == nil {
		return Result{}, false
	}
	a := g.Analysis

	policyName := firstNonEmpty(deref(a.PolicyName), deref(g.Subject), gazetteID)
	ministry := firstNonEmpty(deref(a.Ministry), "Unknown ministry")
	policyType := firstNonEmpty(deref(a.PolicyType), "Unknown type")
	risk := firstNonEmpty(deref(a.RiskLevel), "Low")
	penalties := firstNonEmpty(deref(a.Penalties), "Not specified")

	summary := fmt.Sprintf("%s issued by %s (%s).", policyName, ministry, policyType)
	if url := deref(g.URL); url != "" {
		summary += " Source: " + url
	}

	actions := "Not specified"
	if n := len(a.ComplianceActionsRequired); n > 0 {
		actions = strings.Join(a.ComplianceActionsRequired[:min(n, maxActions)], "; ")
	}
	financial := fmt.Sprintf("Compliance actions: %s. Penalties: %s.", actions, penalties)

	score := gazetteRiskScore(risk)
	return Result{
		RelevantPolicies:          []RelevantPolicy{{ID: gazetteID, ImpactLevel: gazetteImpactLevel(risk)}},
		ImpactSummary:             summary,
		FinancialImpactProjection: financial,
		RiskScore:                 score,
		GrowthChartData:           GrowthChart(score),
	}, true
}

// ImpactLevel grades a policy by its issuing authority.
func ImpactLevel(authority string) string {
	switch authority {
	case "RBI", "SEBI":
		return ImpactHigh
	case "IRDAI":
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// RiskScore is the base score of the risk level plus two points per relevant policy
// (at most ten), capped at 100.
func RiskScore(level structured.RiskLevel, policyCount int) int {
	base, ok := riskBase[level]
	if !ok {
		base = riskBase[structured.RiskLow]
	}
	return min(100, base+min(policyCount*2, 10))
}

// GrowthChart projects four quarters from a baseline of 100 - score/2.
func GrowthChart(score int) []GrowthPoint {
	baseline := 100 - float64(score)/2
	return []GrowthPoint{
		{Label: "Q1", Value: round2(baseline)},
		{Label: "Q2", Value: round2(baseline + 3)},
		{Label: "Q3", Value: round2(baseline + 6)},
		{Label: "Q4", Value: round2(baseline + 9)},
	}
}

func gazetteRiskScore(risk string) int {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "high":
		return 80
	case "medium":
		return 60
	default:
		return 35
	}
}

func gazetteImpactLevel(risk string) string {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "high":
		return ImpactHigh
	case "medium":
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func relevantFrom(chunks []rag.Chunk) []RelevantPolicy {
	out := make([]RelevantPolicy, 0, min(len(chunks), relevantPolicies))
	for i, c := range chunks {
		if i == relevantPolicies {
			break
		}
		out = append(out, RelevantPolicy{ID: c.Document.ID, ImpactLevel: ImpactLevel(c.Document.Authority)})
	}
	return out
}

func cacheKey(profile domain.OrganizationProfile) string {
	body, _ := json.Marshal(profile)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
