package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"redress/internal/oracle"
	"redress/internal/patch"
)

// ErrMalformed marks a proposer response that fails the transport
// contract; the controller falls back to the default template.
var ErrMalformed = errors.New("malformed proposer response")

const systemPrompt = "You are an expert in program synthesis and Kubernetes configuration repair."

// Proposer asks a language model for a repair template. One call per
// repair request, bounded by the configured timeout.
type Proposer struct {
	client  Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewProposer wires a client. A zero timeout defaults to 60s; a nil
// logger disables logging.
func NewProposer(client Client, timeout time.Duration, logger *zap.Logger) *Proposer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proposer{client: client, timeout: timeout, logger: logger}
}

// Propose builds the domain prompt, makes the one-shot model call, and
// parses the response per the transport contract. Any failure — transport,
// JSON, or contract — comes back as an error for the caller's fallback.
func (p *Proposer) Propose(ctx context.Context, a oracle.Artifact, violations []oracle.Violation) (*patch.Template, *patch.HoleSpace, error) {
	prompt, err := buildPrompt(a, violations)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Info("asking proposer for a template", zap.Int("violations", len(violations)))
	response, err := p.client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("proposer call failed: %w", err)
	}

	template, space, err := ParseProposal([]byte(stripFences(response)))
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("proposer returned a template",
		zap.Int("ops", len(template.Ops)),
		zap.Int("holes", space.Len()))
	return template, space, nil
}

// proposal is the transport document the model returns.
type proposal struct {
	Template  *patch.Template  `json:"template"`
	HoleSpace *patch.HoleSpace `json:"hole_space"`
}

// ParseProposal decodes and validates a transport document: both fields
// present, every template hole declared with a non-empty domain.
func ParseProposal(data []byte) (*patch.Template, *patch.HoleSpace, error) {
	var doc proposal
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Template == nil || len(doc.Template.Ops) == 0 {
		return nil, nil, fmt.Errorf("%w: missing template", ErrMalformed)
	}
	if doc.HoleSpace == nil || doc.HoleSpace.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: missing hole_space", ErrMalformed)
	}
	if err := doc.HoleSpace.Validate(doc.Template); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return doc.Template, doc.HoleSpace, nil
}

// stripFences removes a surrounding markdown code fence if the model
// ignored the JSON response mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
