package structured

import (
	"fmt"
	"strings"

	"github.com/kira-labs/kira/internal/domain"
)

// RiskLevel is a compliance risk grade.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var riskAliases = map[string]RiskLevel{
	"MINOR":    RiskLow,
	"LOW":      RiskLow,
	"MODERATE": RiskMedium,
	"MEDIUM":   RiskMedium,
	"SEVERE":   RiskHigh,
	"HIGH":     RiskHigh,
	"MAJOR":    RiskHigh,
	"CRITICAL": RiskCritical,
}

// RiskFromContext grades risk by how much supporting context was found.
func RiskFromContext(contextCount int) RiskLevel {
	switch {
	case contextCount >= 6:
		return RiskHigh
	case contextCount >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// NormalizeRisk maps a model-provided grade through the alias table,
// falling back to RiskFromContext when it is not recognized.
func NormalizeRisk(raw string, contextCount int) RiskLevel {
	if level, ok := riskAliases[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return level
	}
	return RiskFromContext(contextCount)
}

// ImpactPayload is the normalized impact analysis.
type ImpactPayload struct {
	Summary   string
	Financial string
	RiskLevel RiskLevel
}

// NormalizeImpact maps a generated impact object onto ImpactPayload. Blank fields
// are taken from FallbackImpact so the result is always complete.
func NormalizeImpact(obj Object, profile domain.OrganizationProfile, contextCount int) ImpactPayload {
	fallback := FallbackImpact(profile, contextCount)
	out := ImpactPayload{
		Summary:   obj.Get("summary").Display(),
		Financial: obj.Get("financial").Display(),
		RiskLevel: NormalizeRisk(obj.Get("compliance_risk_level").Display(), contextCount),
	}
	if out.Summary == "" {
		out.Summary = fallback.Summary
	}
	if out.Financial == "" {
		out.Financial = fallback.Financial
	}
	return out
}

// FallbackImpact is the deterministic payload used when generation fails.
func FallbackImpact(profile domain.OrganizationProfile, contextCount int) ImpactPayload {
	return ImpactPayload{
		Summary: fmt.Sprintf("Automated fallback analysis for %s in %s. %d relevant policy chunks were identified for review.",
			profile.OrganizationName, profile.Industry, contextCount),
		Financial: "Estimated impact: prioritize compliance operations allocation for current review cycle and " +
			"track incremental cost exposure against control remediation milestones.",
		RiskLevel: RiskFromContext(contextCount),
	}
}

// GazetteAnalysis is the normalized extraction for one gazette notification.
type GazetteAnalysis struct {
	PolicyName                *string  `json:"policy_name"`
	Ministry                  *string  `json:"ministry"`
	PolicyType                *string  `json:"policy_type"`
	DateOfIssue               *string  `json:"date_of_issue"`
	EffectiveDate             *string  `json:"effective_date"`
	IndustriesImpacted        []string `json:"industries_impacted"`
	DepartmentsImpacted       []string `json:"departments_impacted"`
	ComplianceActionsRequired []string `json:"compliance_actions_required"`
	Penalties                 *string  `json:"penalties"`
	RiskLevel                 *string  `json:"risk_level"`
}

// NormalizeGazetteAnalysis trims scalar fields (blank becomes nil) and drops blank list entries.
func NormalizeGazetteAnalysis(obj Object) GazetteAnalysis {
	return GazetteAnalysis{
		PolicyName:                optionalDisplay(obj.Get("policy_name")),
		Ministry:                  optionalDisplay(obj.Get("ministry")),
		PolicyType:                optionalDisplay(obj.Get("policy_type")),
		DateOfIssue:               optionalDisplay(obj.Get("date_of_issue")),
		EffectiveDate:             optionalDisplay(obj.Get("effective_date")),
		IndustriesImpacted:        listOnly(obj.Get("industries_impacted")),
		DepartmentsImpacted:       listOnly(obj.Get("departments_impacted")),
		ComplianceActionsRequired: listOnly(obj.Get("compliance_actions_required")),
		Penalties:                 optionalDisplay(obj.Get("penalties")),
		RiskLevel:                 optionalDisplay(obj.Get("risk_level")),
	}
}

func optionalDisplay(v Value) *string {
	s := v.Display()
	if s == "" {
		return nil
	}
	return &s
}

// listOnly keeps list fields; any other shape becomes an empty list.
func listOnly(v Value) []string {
	if v.Kind() != KindList {
		return []string{}
	}
	return v.Strings()
}
