// Package assessor wraps the external natural-language judgment service.
// An Assessor answers one question: given a regulation and a document,
// is there relevant information, and does any of it contradict the
// regulation? Classification of the answer happens elsewhere.
package assessor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"arccs/internal/schema"
	"arccs/internal/schema/validate"
)

// sharedHTTPClient is used by all providers; a 5-minute timeout covers
// slow model responses. Per-call deadlines come from the caller's context.
var sharedHTTPClient = &http.Client{
	Timeout: 5 * time.Minute,
}

// defaultMaxTokens is the fallback when ModelConfig.MaxTokens is not set.
const defaultMaxTokens = 2048

// ErrorKind classifies an Assessor failure. The batch layer treats every
// kind identically; the kind survives only in the explanation text.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate-limited"
	KindMalformedResponse ErrorKind = "malformed-response"
	KindAuthFailure       ErrorKind = "auth-failure"
)

// ServiceError is any failure of the external judgment service.
type ServiceError struct {
	Kind ErrorKind
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("assessor %s: %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ParseError reports a response that did arrive from the service but
// could not be interpreted as a Judgment. Distinct from ServiceError:
// the call itself succeeded, the answer carries no usable information.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("invalid judgment: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

func serviceErr(kind ErrorKind, format string, args ...any) error {
	return &ServiceError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ModelConfig holds the parameters of one judgment call.
type ModelConfig struct {
	// Model overrides the provider's configured model when non-empty.
	Model       string
	Temperature float64
	MaxTokens   int
}

// Assessor produces a Judgment for one regulation/document pair.
type Assessor interface {
	Assess(ctx context.Context, reg schema.Regulation, document string) (schema.Judgment, error)
}

// completer is the raw text-in/text-out provider backend.
type completer interface {
	// complete returns the model's text content.
	complete(ctx context.Context, system, user string, cfg ModelConfig) (string, error)
}

// Client is the LLM-backed Assessor. It builds the contradiction-finding
// prompt, redacts outbound document text, calls the provider, and parses
// the response into a validated Judgment.
type Client struct {
	backend completer
	cfg     ModelConfig
}

// New parses a "provider:model" string and returns an LLM-backed Assessor.
// The API key is read from the environment and validated immediately.
// Example: "openai:gpt-4o" or "anthropic:claude-sonnet-4-6".
func New(providerModel string, cfg ModelConfig) (*Client, error) {
	parts := strings.SplitN(providerModel, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid model format %q: expected provider:model (e.g. openai:gpt-4o)", providerModel)
	}
	switch parts[0] {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		return &Client{backend: &openaiBackend{model: parts[1], apiKey: apiKey}, cfg: cfg}, nil
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		return &Client{backend: &anthropicBackend{model: parts[1], apiKey: apiKey}, cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q: supported providers are openai, anthropic", parts[0])
	}
}

// Assess implements Assessor.
func (c *Client) Assess(ctx context.Context, reg schema.Regulation, document string) (schema.Judgment, error) {
	user := BuildUserPrompt(reg, Redact(document))

	content, err := c.backend.complete(ctx, systemPrompt, user, c.cfg)
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			return schema.Judgment{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return schema.Judgment{}, &ServiceError{Kind: KindTimeout, Err: err}
		}
		return schema.Judgment{}, &ServiceError{Kind: KindMalformedResponse, Err: err}
	}

	j, err := validate.Judgment(content)
	if err != nil {
		return schema.Judgment{}, &ParseError{Err: err}
	}
	return j, nil
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthFailure
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindMalformedResponse
	}
}

// truncate limits a string to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
