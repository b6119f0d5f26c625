package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kira-labs/kira/internal/domain"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```\n{\"a\":1}\n```  ", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"\n{\"a\":1}```", `{"a":1}`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.in), "input %q", tt.in)
	}
}

func TestParse_FencedEqualsPlain(t *testing.T) {
	plain := `{"summary": "ok", "financial": {"capex": "2%"}, "compliance_risk_level": "SEVERE"}`

	a, err := Parse(plain)
	require.NoError(t, err)
	b, err := Parse("```json\n" + plain + "\n```")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"not json", "[1,2]", "null", `{"a":1} trailing`, "```json\n```"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, domain.ErrInvalidJSONResponse, in)
		assert.Equal(t, domain.KindInvalidJSON, domain.KindOf(err), in)
	}
}

func TestValue_Variants(t *testing.T) {
	assert.Equal(t, KindNull, Decode(json.RawMessage(`null`)).Kind())
	assert.Equal(t, KindNull, Decode(json.RawMessage(`{broken`)).Kind())

	s := Decode(json.RawMessage(`"  hello "`))
	assert.Equal(t, KindString, s.Kind())
	assert.Equal(t, "hello", s.Text())
	assert.Equal(t, []string{"hello"}, s.Strings())
	assert.Nil(t, Decode(json.RawMessage(`"   "`)).OptionalText())

	n := Decode(json.RawMessage(`12.50`))
	assert.Equal(t, "12.50", n.Text())

	l := Decode(json.RawMessage(`["Finance", " ", "", "Legal ", null, 3]`))
	assert.Equal(t, KindList, l.Kind())
	assert.Equal(t, []string{"Finance", "Legal", "3"}, l.Strings())
	assert.Equal(t, "Finance; Legal; 3", l.Display())
	assert.Empty(t, l.Text())

	o := Decode(json.RawMessage(`{"opex": "1.2 Cr", "capex": ["0.5 Cr", "tooling"], "note": ""}`))
	assert.Equal(t, KindObject, o.Kind())
	assert.Equal(t, "capex: 0.5 Cr; tooling; opex: 1.2 Cr", o.Display())
}

func TestRiskFromContext(t *testing.T) {
	assert.Equal(t, RiskLow, RiskFromContext(0))
	assert.Equal(t, RiskLow, RiskFromContext(2))
	assert.Equal(t, RiskMedium, RiskFromContext(3))
	assert.Equal(t, RiskMedium, RiskFromContext(5))
	assert.Equal(t, RiskHigh, RiskFromContext(6))
}

func TestNormalizeRisk(t *testing.T) {
	assert.Equal(t, RiskHigh, NormalizeRisk("SEVERE", 0))
	assert.Equal(t, RiskHigh, NormalizeRisk(" major ", 0))
	assert.Equal(t, RiskLow, NormalizeRisk("Minor", 9))
	assert.Equal(t, RiskMedium, NormalizeRisk("moderate", 0))
	assert.Equal(t, RiskCritical, NormalizeRisk("CRITICAL", 0))
	assert.Equal(t, RiskHigh, NormalizeRisk("unclear", 7))
	assert.Equal(t, RiskLow, NormalizeRisk("unclear", 1))
	assert.Equal(t, RiskMedium, NormalizeRisk("", 4))
}

func TestNormalizeImpact(t *testing.T) {
	profile := domain.DefaultProfile()
	obj, err := Parse(`{"summary": " New KYC rules ", "financial": {"one_time": "2 Cr", "recurring": "0.4 Cr"}, "compliance_risk_level": "moderate"}`)
	require.NoError(t, err)

	got := NormalizeImpact(obj, profile, 1)
	assert.Equal(t, "New KYC rules", got.Summary)
	assert.Equal(t, "one_time: 2 Cr; recurring: 0.4 Cr", got.Financial)
	assert.Equal(t, RiskMedium, got.RiskLevel)
}

func TestNormalizeImpact_FillsBlanksFromFallback(t *testing.T) {
	profile := domain.DefaultProfile()
	obj, err := Parse(`{"summary": "", "financial": null}`)
	require.NoError(t, err)

	got := NormalizeImpact(obj, profile, 6)
	fb := FallbackImpact(profile, 6)
	assert.Equal(t, fb.Summary, got.Summary)
	assert.Equal(t, fb.Financial, got.Financial)
	assert.Equal(t, RiskHigh, got.RiskLevel)
}

func TestFallbackImpact(t *testing.T) {
	p := domain.OrganizationProfile{OrganizationName: "Acme Bank", Industry: "Banking", BusinessModel: "Retail"}

	got := FallbackImpact(p, 4)
	assert.Equal(t, "Automated fallback analysis for Acme Bank in Banking. 4 relevant policy chunks were identified for review.", got.Summary)
	assert.Equal(t, RiskMedium, got.RiskLevel)
	assert.Equal(t, got, FallbackImpact(p, 4))
}

func TestNormalizeGazetteAnalysis(t *testing.T) {
	obj, err := Parse("```json\n" + `{
		"policy_name": "  Digital Lending Directions ",
		"ministry": "",
		"policy_type": null,
		"industries_impacted": ["NBFC", " ", "Banking"],
		"departments_impacted": "Legal",
		"compliance_actions_required": [],
		"penalties": "Rs 1 lakh",
		"risk_level": "High"
	}` + "\n```")
	require.NoError(t, err)

	got := NormalizeGazetteAnalysis(obj)
	require.NotNil(t, got.PolicyName)
	assert.Equal(t, "Digital Lending Directions", *got.PolicyName)
	assert.Nil(t, got.Ministry)
	assert.Nil(t, got.PolicyType)
	assert.Nil(t, got.DateOfIssue)
	assert.Equal(t, []string{"NBFC", "Banking"}, got.IndustriesImpacted)
	assert.Equal(t, []string{}, got.DepartmentsImpacted)
	assert.Equal(t, []string{}, got.ComplianceActionsRequired)
	assert.Equal(t, "High", *got.RiskLevel)

	body, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"ministry":null`)
	assert.Contains(t, string(body), `"departments_impacted":[]`)
}
