package render

import (
	"bytes"
	"fmt"
	"text/template"

	"arccs/internal/schema"
)

type markdownRenderer struct{}

var mdTemplate = template.Must(template.New("report").Parse(`# Compliance Report

**{{ .OverallStatus }}**

| | |
|---|---|
| Compliant | {{ .Summary.Compliant }} |
| Non-Compliant | {{ .Summary.NonCompliant }} |
| Insufficient Info | {{ .Summary.InsufficientInfo }} |
| Human Required | {{ .Summary.HumanRequired }} |
| Total Checked | {{ .Summary.Total }} |
| Compliance Rate | {{ .Summary.ComplianceRate }}% |
{{ if .Violations }}
---

## Violations ({{ len .Violations }})
{{ range .Violations }}
### {{ .RegulationName }} ({{ .RegulationID }})
{{ if .ContradictionDetails }}**Issue:** {{ .ContradictionDetails }}
{{ end }}{{ if .Evidence }}> "{{ .Evidence }}"
{{ end }}{{ .Explanation }}
{{ end }}{{ end }}{{ if .NeedsReview }}
---

## Needs Review ({{ len .NeedsReview }})
{{ range .NeedsReview }}
### {{ .RegulationName }} ({{ .RegulationID }}) · {{ .ComplianceStatus }}
{{ if .MissingInformation }}**Missing:** {{ .MissingInformation }}
{{ end }}{{ if eq (printf "%s" .ComplianceStatus) "HUMAN_REQUIRED" }}**Confidence:** {{ .ConfidenceScore }}
{{ end }}{{ .Explanation }}
{{ end }}{{ end }}
---

## All Results
{{ range .DetailedResults }}
- **{{ .RegulationName }}** ({{ .RegulationID }}): {{ .ComplianceStatus }}
{{- end }}

---
*Generated: {{ .GeneratedAt.Format "2006-01-02 15:04:05 MST" }}*
`))

func (r *markdownRenderer) Render(report *schema.ComplianceReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := mdTemplate.Execute(&buf, report); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}
