// Package controller orchestrates one repair request: verify, fingerprint,
// acquire a template (bank → proposer → default), run the synthesizer, and
// update the bank on success.
package controller

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"redress/internal/bank"
	"redress/internal/constraint"
	"redress/internal/oracle"
	"redress/internal/patch"
	"redress/internal/synth"
)

// Status is the outcome of a repair request. It extends the synthesizer
// statuses with the already-compliant case.
type Status string

const (
	StatusNoViolations    Status = "no_violations_initially"
	StatusSuccess         Status = Status(synth.StatusSuccess)
	StatusUnsat           Status = Status(synth.StatusUnsat)
	StatusBudgetExhausted Status = Status(synth.StatusBudgetExhausted)
	StatusTimeout         Status = Status(synth.StatusTimeout)
	StatusNoProgress      Status = Status(synth.StatusNoProgress)
)

// TemplateSource records where the repair template came from.
type TemplateSource string

const (
	SourceNone     TemplateSource = ""
	SourceBank     TemplateSource = "bank"
	SourceProposer TemplateSource = "proposer"
	SourceDefault  TemplateSource = "default"
)

// TemplateProposer is the external language-model adapter. Called at most
// once per repair, only on a bank miss.
type TemplateProposer interface {
	Propose(ctx context.Context, a oracle.Artifact, violations []oracle.Violation) (*patch.Template, *patch.HoleSpace, error)
}

// DefaultTemplateFunc supplies the domain fallback template.
type DefaultTemplateFunc func(a oracle.Artifact) (*patch.Template, *patch.HoleSpace, error)

// Result reports one repair request. Artifact is the repaired artifact on
// success and the original otherwise.
type Result struct {
	RequestID      string
	Status         Status
	Artifact       oracle.Artifact
	Assignment     patch.Assignment
	Constraints    []constraint.Constraint
	Candidates     int
	Iterations     int
	TemplateSource TemplateSource
	BankHit        bool
	ProposerCalls  int
	Violations     []oracle.Violation // initial violations
}

// Succeeded reports whether the request ended compliant.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusNoViolations
}

// Controller handles repair requests against a fixed oracle list. The
// bank and proposer are optional; the default template function is the
// fallback of last resort and must be set.
type Controller struct {
	oracles  []oracle.Oracle
	bank     *bank.Bank
	proposer TemplateProposer
	fallback DefaultTemplateFunc
	budget   synth.Budget
	logger   *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithBank attaches a repair bank.
func WithBank(b *bank.Bank) Option {
	return func(c *Controller) { c.bank = b }
}

// WithProposer attaches a template proposer.
func WithProposer(p TemplateProposer) Option {
	return func(c *Controller) { c.proposer = p }
}

// WithLogger attaches a logger. A nil logger keeps logging disabled.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a controller.
func New(oracles []oracle.Oracle, fallback DefaultTemplateFunc, budget synth.Budget, opts ...Option) (*Controller, error) {
	if fallback == nil {
		return nil, fmt.Errorf("a default template function is required")
	}
	c := &Controller{
		oracles:  oracles,
		fallback: fallback,
		budget:   budget,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Repair runs the full flow for one artifact. artifactContext (e.g. app
// name, environment) becomes part of the bank signature. The bank is
// never mutated on failure.
func (c *Controller) Repair(ctx context.Context, a oracle.Artifact, artifactContext map[string]string) (*Result, error) {
	res := &Result{
		RequestID: uuid.NewString(),
		Status:    StatusNoViolations,
		Artifact:  a,
	}
	logger := c.logger.With(zap.String("request_id", res.RequestID))

	violations := oracle.Verify(a, c.oracles)
	if len(violations) == 0 {
		logger.Info("artifact already compliant")
		return res, nil
	}
	res.Violations = violations
	logger.Info("initial verification failed", zap.Int("violations", len(violations)))

	sig := bank.NewSignature(violations, artifactContext)

	template, space, initial, err := c.resolveTemplate(ctx, a, violations, sig, res, logger)
	if err != nil {
		return nil, err
	}

	synthesizer := synth.New(c.oracles, logger)
	sres, err := synthesizer.Run(ctx, a, template, space, initial, c.budget)
	if err != nil {
		return nil, err
	}

	res.Status = Status(sres.Status)
	res.Constraints = sres.Constraints
	res.Candidates = sres.Candidates
	res.Iterations = sres.Iterations

	if sres.Status != synth.StatusSuccess {
		logger.Info("repair failed",
			zap.String("status", string(res.Status)),
			zap.Int("candidates", sres.Candidates),
			zap.Int("constraints", len(sres.Constraints)))
		return res, nil
	}

	res.Artifact = sres.Artifact
	res.Assignment = sres.Assignment

	if c.bank != nil {
		if err := c.bank.Store(sig, *template, space, sres.Constraints, sres.Assignment, sres.Candidates); err != nil {
			// The repair itself stands; a bank write failure is logged,
			// not fatal.
			logger.Warn("failed to update bank", zap.Error(err))
		}
	}
	logger.Info("repair succeeded",
		zap.String("assignment", sres.Assignment.String()),
		zap.Int("candidates", sres.Candidates),
		zap.String("template_source", string(res.TemplateSource)))
	return res, nil
}

// resolveTemplate picks the template source: bank hit first, then the
// proposer, then the domain default. Proposer failures of any kind fall
// through to the default with empty initial constraints.
func (c *Controller) resolveTemplate(
	ctx context.Context,
	a oracle.Artifact,
	violations []oracle.Violation,
	sig bank.Signature,
	res *Result,
	logger *zap.Logger,
) (*patch.Template, *patch.HoleSpace, []constraint.Constraint, error) {
	if c.bank != nil {
		if entry, ok := c.bank.Lookup(sig); ok {
			res.BankHit = true
			res.TemplateSource = SourceBank
			logger.Info("bank hit",
				zap.Int("constraints", len(entry.Constraints)),
				zap.Int("success_count", entry.Meta.SuccessCount))
			tmpl := entry.Template
			return &tmpl, entry.HoleSpace, entry.Constraints, nil
		}
	}

	if c.proposer != nil {
		res.ProposerCalls++
		template, space, err := c.proposer.Propose(ctx, a, violations)
		if err == nil {
			res.TemplateSource = SourceProposer
			return template, space, nil, nil
		}
		logger.Warn("proposer failed, using default template", zap.Error(err))
	}

	template, space, err := c.fallback(a)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("default template: %w", err)
	}
	res.TemplateSource = SourceDefault
	return template, space, nil, nil
}
