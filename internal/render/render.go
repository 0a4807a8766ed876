package render

import (
	"fmt"

	"arccs/internal/schema"
)

// Renderer formats a ComplianceReport into bytes for output.
type Renderer interface {
	Render(report *schema.ComplianceReport) ([]byte, error)
}

// NewRenderer returns a Renderer for the given format string.
// Supported formats: "json" (default), "md".
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "json":
		return &jsonRenderer{}, nil
	case "md":
		return &markdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q: supported formats are json, md", format)
	}
}
