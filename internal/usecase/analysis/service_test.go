package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kira-labs/kira/internal/domain"
	gazetteuc "github.com/kira-labs/kira/internal/usecase/gazette"
	"github.com/kira-labs/kira/internal/usecase/rag"
	"github.com/kira-labs/kira/internal/usecase/structured"
)

type mockRetriever struct {
	chunks    []rag.Chunk
	err       error
	calls     int
	lastQuery string
}

func (m *mockRetriever) Retrieve(_ context.Context, _ domain.OrganizationProfile, query string) ([]rag.Chunk, error) {
	m.calls++
	m.lastQuery = query
	return m.chunks, m.err
}

type mockGenerator struct {
	reply  string
	err    error
	prompt string
}

func (m *mockGenerator) GenerateJSON(_ context.Context, prompt string) (structured.Object, error) {
	m.prompt = prompt
	if m.err != nil {
		return nil, m.err
	}
	return structured.Parse(m.reply)
}

type mockGazettes struct {
	result gazetteuc.Result
	calls  int
}

func (m *mockGazettes) Analyze(_ context.Context, _ string) gazetteuc.Result {
	m.calls++
	return m.result
}

type mockCache struct {
	data map[string][]byte
}

func (m *mockCache) GetJSON(_ context.Context, ns, key string, dst any) (bool, error) {
	raw, ok := m.data[ns+":"+key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *mockCache) SetJSON(_ context.Context, ns, key string, v any, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[ns+":"+key] = raw
	return nil
}

func policies(authorities ...string) []rag.Chunk {
	out := make([]rag.Chunk, 0, len(authorities))
	for i, a := range authorities {
		out = append(out, rag.Chunk{Document: domain.PolicyDocument{ID: string(rune('a' + i)), Authority: a}})
	}
	return out
}

func profile() domain.OrganizationProfile {
	return domain.OrganizationProfile{OrganizationName: "Acme Bank", Industry: "Banking", BusinessModel: "Retail"}
}

func TestRiskScore(t *testing.T) {
	assert.Equal(t, 25, RiskScore(structured.RiskLow, 0))
	assert.Equal(t, 56, RiskScore(structured.RiskMedium, 3))
	assert.Equal(t, 85, RiskScore(structured.RiskHigh, 5))
	assert.Equal(t, 100, RiskScore(structured.RiskCritical, 9))
	assert.Equal(t, 25, RiskScore("bogus", 0))
}

func TestGrowthChart(t *testing.T) {
	got := GrowthChart(75)
	assert.Equal(t, []GrowthPoint{{"Q1", 62.5}, {"Q2", 65.5}, {"Q3", 68.5}, {"Q4", 71.5}}, got)
}

func TestImpactLevel(t *testing.T) {
	assert.Equal(t, ImpactHigh, ImpactLevel("RBI"))
	assert.Equal(t, ImpactHigh, ImpactLevel("SEBI"))
	assert.Equal(t, ImpactMedium, ImpactLevel("IRDAI"))
	assert.Equal(t, ImpactLow, ImpactLevel("Unknown"))
}

func TestRunProfile_Generated(t *testing.T) {
	ret := &mockRetriever{chunks: policies("RBI", "IRDAI", "MCA", "SEBI", "RBI", "RBI")}
	gen := &mockGenerator{reply: "```json\n{\"summary\": \"KYC overhaul\", \"financial\": {\"capex\": \"2 Cr\"}, \"compliance_risk_level\": \"SEVERE\"}\n```"}
	svc := New(ret, gen, nil, nil, nil)

	res := svc.RunProfile(context.Background(), profile())

	assert.Equal(t, retrievalQuery, ret.lastQuery)
	require.Len(t, res.RelevantPolicies, 5)
	assert.Equal(t, RelevantPolicy{ID: "a", ImpactLevel: ImpactHigh}, res.RelevantPolicies[0])
	assert.Equal(t, RelevantPolicy{ID: "b", ImpactLevel: ImpactMedium}, res.RelevantPolicies[1])
	assert.Equal(t, ImpactLow, res.RelevantPolicies[2].ImpactLevel)
	assert.Equal(t, "KYC overhaul", res.ImpactSummary)
	assert.Equal(t, "capex: 2 Cr", res.FinancialImpactProjection)
	assert.Equal(t, 85, res.RiskScore)
	assert.Len(t, res.GrowthChartData, 4)
	assert.Contains(t, gen.prompt, "Organization=Acme Bank, Industry=Banking, Business Model=Retail, Relevant policy chunks=6.")
}

func TestRunProfile_Fallback(t *testing.T) {
	ret := &mockRetriever{chunks: policies("RBI", "RBI", "RBI")}
	gen := &mockGenerator{err: domain.NewLLMError(domain.KindAllProvidersFailed, "", domain.OperationGeneration, errors.New("down"))}
	svc := New(ret, gen, nil, nil, nil)

	res := svc.RunProfile(context.Background(), profile())

	fb := structured.FallbackImpact(profile(), 3)
	assert.Equal(t, fb.Summary, res.ImpactSummary)
	assert.Equal(t, fb.Financial, res.FinancialImpactProjection)
	assert.Equal(t, 56, res.RiskScore) // MEDIUM + 3 policies
}

func TestRunProfile_RetrievalFailureStillAnswers(t *testing.T) {
	svc := New(&mockRetriever{err: errors.New("down")}, &mockGenerator{err: errors.New("down")}, nil, nil, nil)

	res := svc.RunProfile(context.Background(), profile())
	assert.Empty(t, res.RelevantPolicies)
	assert.NotNil(t, res.RelevantPolicies)
	assert.Equal(t, 25, res.RiskScore)
}

func TestRunProfile_CachesOnlyWithPolicies(t *testing.T) {
	cache := &mockCache{data: map[string][]byte{}}
	ret := &mockRetriever{}
	svc := New(ret, &mockGenerator{err: errors.New("down")}, nil, cache, nil)

	svc.RunProfile(context.Background(), profile())
	svc.RunProfile(context.Background(), profile())
	assert.Equal(t, 2, ret.calls, "empty cached result must not be served")

	ret.chunks = policies("RBI")
	first := svc.RunProfile(context.Background(), profile())
	second := svc.RunProfile(context.Background(), profile())
	assert.Equal(t, 3, ret.calls)
	assert.Equal(t, first, second)
}

func TestRun_GazetteShortcut(t *testing.T) {
	name := "Digital Lending Directions"
	ministry := "RBI"
	risk := "High"
	url := "https://egazette/1"
	gaz := &mockGazettes{result: gazetteuc.Result{
		URL: &url,
		Analysis: &structured.GazetteAnalysis{
			PolicyName:                &name,
			Ministry:                  &ministry,
			RiskLevel:                 &risk,
			ComplianceActionsRequired: []string{"a1", "a2", "a3", "a4", "a5"},
		},
	}}
	ret := &mockRetriever{}
	svc := New(ret, &mockGenerator{}, gaz, nil, nil)

	res := svc.Run(context.Background(), Request{Profile: profile(), GazetteID: "g1"})

	assert.Zero(t, ret.calls)
	assert.Equal(t, []RelevantPolicy{{ID: "g1", ImpactLevel: ImpactHigh}}, res.RelevantPolicies)
	assert.Equal(t, "Digital Lending Directions issued by RBI (Unknown type). Source: https://egazette/1", res.ImpactSummary)
	assert.Equal(t, "Compliance actions: a1; a2; a3; a4. Penalties: Not specified.", res.FinancialImpactProjection)
	assert.Equal(t, 80, res.RiskScore)
}

func TestRun_GazetteWithoutAnalysisFallsThrough(t *testing.T) {
	gaz := &mockGazettes{}
	ret := &mockRetriever{}
	svc := New(ret, &mockGenerator{err: errors.New("down")}, gaz, nil, nil)

	svc.Run(context.Background(), Request{Profile: profile(), GazetteID: "g1"})
	assert.Equal(t, 1, gaz.calls)
	assert.Equal(t, 1, ret.calls)
}

func TestRun_GazetteDefaults(t *testing.T) {
	gaz := &mockGazettes{result: gazetteuc.Result{Analysis: &structured.GazetteAnalysis{}}}
	svc := New(&mockRetriever{}, &mockGenerator{}, gaz, nil, nil)

	res := svc.Run(context.Background(), Request{GazetteID: "g9"})
	assert.Equal(t, "g9 issued by Unknown ministry (Unknown type).", res.ImpactSummary)
	assert.Equal(t, "Compliance actions: Not specified. Penalties: Not specified.", res.FinancialImpactProjection)
	assert.Equal(t, 35, res.RiskScore)
	assert.Equal(t, ImpactLow, res.RelevantPolicies[0].ImpactLevel)
}
