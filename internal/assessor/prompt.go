package assessor

import (
	"encoding/json"
	"fmt"
	"strings"

	"arccs/internal/schema"
)

const systemPrompt = `You are a regulatory compliance assessor. Your task is to check documents for CONTRADICTIONS against a single regulation.

RULE 1: Assume from the beginning that you have all the necessary information to make a decision. If, however, essential details are missing and you cannot properly evaluate the case, report that the document has no relevant information.

RULE 2: If you have all the required information and you do not identify any contradiction between the compared elements, report no contradiction with high confidence.

RULE 3: If you have all the required information and you identify a contradiction between the compared elements, report the contradiction and quote the conflicting text.

FINAL RULE: If you have the necessary information but cannot reach a clear decision, report your findings with a low confidence score.

Output rules:
- Return JSON only — no prose, no markdown fences, no explanation outside the JSON
- A contradiction can only exist where relevant information exists
- Do not include a compliance label — the label is computed externally
- Be precise.`

const judgmentExample = `{
  "has_relevant_information": true/false,
  "contradiction_found": true/false,
  "contradiction_details": "If found: quote the document text and explain the conflict. If not found: null",
  "missing_information": "If has_relevant_information is false: explain what information is missing. Otherwise: null",
  "evidence": "Verbatim quote from the document (or null if no relevant info)",
  "explanation": "Detailed justification for the assessment",
  "confidence_score": 0.0-1.0
}`

// BuildUserPrompt constructs the contradiction-finding prompt for one
// regulation against one document excerpt.
func BuildUserPrompt(reg schema.Regulation, document string) string {
	requirements, _ := json.Marshal(reg.Requirements)
	restrictions, _ := json.Marshal(reg.Restrictions)

	brief := reg.Description.BriefSummary
	if brief == "" {
		brief = truncate(reg.Description.DetailedExplanation, 500)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "REGULATION: %s (%s)\n", reg.Name, reg.ID)
	fmt.Fprintf(&sb, "Summary: %s\n", brief)
	fmt.Fprintf(&sb, "Requirements: %s\n", requirements)
	fmt.Fprintf(&sb, "Restrictions: %s\n\n", restrictions)

	sb.WriteString("DOCUMENT TO CHECK:\n")
	sb.WriteString(document)
	sb.WriteString("\n\n---\n\n")

	sb.WriteString(`YOUR TASK: Find if the document CONTRADICTS this regulation.

A CONTRADICTION means:
- Document says X, but regulation REQUIRES Y (opposite things)
- Document permits something regulation FORBIDS
- Document has a number/timeline that conflicts with regulation

EXAMPLES:
- Regulation: "Users must be 16+ in EU" | Document: "Users must be 13" -> CONTRADICTION
- Regulation: "Cannot sell data" | Document: "We may sell your data" -> CONTRADICTION
- Regulation: "Notify within 72h" | Document: "Notify within 30 days" -> CONTRADICTION

NOT A CONTRADICTION:
- Document doesn't mention the topic -> no relevant information
- No direct, explicit statement addressing the regulation -> no relevant information
- Regulation: "Users must be 16+ in EU" | Document: "Users must be 16 or older" -> no contradiction

---

Search the document for ANY statement that DIRECTLY CONTRADICTS the regulation.

Return JSON:
`)
	sb.WriteString(judgmentExample)
	return sb.String()
}
