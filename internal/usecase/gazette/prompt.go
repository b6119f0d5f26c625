package gazette

import "strings"

const analysisPrompt = `You are an Indian Regulatory Intelligence Engine.

Analyze the following official Gazette notification.

Extract:

1. Regulation name
2. Ministry/Department
3. Policy type (Act, Amendment, Notification, Circular, Rule)
4. Date of issue
5. Effective date
6. Industries impacted
7. Departments impacted (HR, Legal, Finance, IT, Operations)
8. Compliance actions required
9. Penalties for non-compliance
10. Risk level (Low, Medium, High)

Rules:
- Do not hallucinate.
- If a field is unclear, return null.
- Only use the provided text.
- Return strictly valid JSON.

Return JSON using this exact schema:
{
  "policy_name": "",
  "ministry": "",
  "policy_type": "",
  "date_of_issue": "",
  "effective_date": "",
  "industries_impacted": [],
  "departments_impacted": [],
  "compliance_actions_required": [],
  "penalties": "",
  "risk_level": ""
}

Gazette Subject: {subject}
Gazette ID: {gazette_id}
Gazette Text:
{gazette_text}
`

func renderPrompt(subject, gazetteID, text string) string {
	return strings.NewReplacer(
		"{subject}", subject,
		"{gazette_id}", gazetteID,
		"{gazette_text}", text,
	).Replace(analysisPrompt)
}
