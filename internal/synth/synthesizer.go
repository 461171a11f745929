package synth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"redress/internal/constraint"
	"redress/internal/oracle"
	"redress/internal/patch"
)

// Status is the terminal outcome of one synthesis attempt.
type Status string

const (
	// StatusSuccess means a candidate passed every oracle.
	StatusSuccess Status = "success"
	// StatusUnsat means the enumeration ended without a passing candidate.
	StatusUnsat Status = "unsat"
	// StatusBudgetExhausted means the candidate budget was spent.
	StatusBudgetExhausted Status = "budget_exhausted"
	// StatusTimeout means the wall-clock deadline was reached.
	StatusTimeout Status = "timeout"
	// StatusNoProgress means max_iters consecutive iterations learned
	// nothing new.
	StatusNoProgress Status = "no_progress"
)

// Budget bounds one synthesis attempt. All fields must be positive.
type Budget struct {
	MaxCandidates int
	MaxIters      int
	Timeout       time.Duration
}

func (b Budget) validate() error {
	if b.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive, got %d", b.MaxCandidates)
	}
	if b.MaxIters <= 0 {
		return fmt.Errorf("max_iters must be positive, got %d", b.MaxIters)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", b.Timeout)
	}
	return nil
}

// Result reports one synthesis attempt. Artifact and Assignment are set
// only on StatusSuccess; Constraints always carries everything learned so
// far (initial constraints included), which is what the bank stores.
type Result struct {
	Status        Status
	Artifact      oracle.Artifact
	Assignment    patch.Assignment
	Constraints   []constraint.Constraint
	Candidates    int // candidates tried, post-pruning
	Iterations    int // verify iterations over candidates
	ApplyFailures int // per-candidate executor rejections, never terminal
}

// Synthesizer runs one CEGIS attempt against a fixed oracle list. It is
// deterministic in its inputs; only the Timeout branch depends on the
// clock. The zero value is not usable; construct with New.
type Synthesizer struct {
	oracles []oracle.Oracle
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a synthesizer. A nil logger disables logging.
func New(oracles []oracle.Oracle, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{oracles: oracles, logger: logger, now: time.Now}
}

// Run performs one synthesis attempt: verify the artifact, learn from the
// initial violations, then enumerate candidates until success or a budget
// branch fires. Every candidate patch is applied to the original artifact,
// never to a previously patched one — patches are not idempotent across
// assignments and stale state would confuse oracle evidence.
//
// The only error returns are an invalid budget and ErrUnboundHole
// (template references a hole missing from the space), both surfaced
// before enumeration begins. Everything else is a Result status.
func (s *Synthesizer) Run(
	ctx context.Context,
	a0 oracle.Artifact,
	template *patch.Template,
	space *patch.HoleSpace,
	initial []constraint.Constraint,
	budget Budget,
) (*Result, error) {
	if err := budget.validate(); err != nil {
		return nil, err
	}
	if err := space.Validate(template); err != nil {
		return nil, err
	}

	start := s.now()
	learned := constraint.NewSet(initial...)

	violations := oracle.Verify(a0, s.oracles)
	if len(violations) == 0 {
		s.logger.Info("artifact already compliant, vacuous success")
		return &Result{
			Status:      StatusSuccess,
			Artifact:    a0,
			Assignment:  patch.Assignment{},
			Constraints: learned.List(),
		}, nil
	}
	learned.AddAll(oracle.Extract(violations, space))
	s.logger.Info("starting synthesis",
		zap.Int("violations", len(violations)),
		zap.Int("holes", space.Len()),
		zap.Int("search_space", space.Size()),
		zap.Int("initial_constraints", learned.Len()))

	enum := NewEnumerator(space, learned.List())
	res := &Result{}
	stale := 0 // consecutive iterations with no newly learned constraint

	for {
		if err := ctx.Err(); err != nil {
			res.Status = StatusTimeout
			res.Constraints = learned.List()
			return res, nil
		}
		if res.Candidates >= budget.MaxCandidates {
			res.Status = StatusBudgetExhausted
			res.Constraints = learned.List()
			s.logger.Info("candidate budget exhausted", zap.Int("candidates", res.Candidates))
			return res, nil
		}
		if s.now().Sub(start) >= budget.Timeout {
			res.Status = StatusTimeout
			res.Constraints = learned.List()
			s.logger.Info("synthesis deadline reached", zap.Int("candidates", res.Candidates))
			return res, nil
		}

		assignment, ok := enum.Next()
		if !ok {
			res.Status = StatusUnsat
			res.Constraints = learned.List()
			s.logger.Info("search space exhausted",
				zap.Int("candidates", res.Candidates),
				zap.Int("pruned", enum.Pruned()),
				zap.Bool("all_pruned", enum.Yielded() == 0))
			return res, nil
		}

		p, err := patch.Instantiate(template, assignment)
		if err != nil {
			// Validate guarantees bound holes; reaching this means the
			// template changed under us.
			return nil, err
		}

		patched, err := a0.Apply(p)
		if err != nil {
			res.ApplyFailures++
			res.Candidates++
			s.logger.Debug("patch apply failed",
				zap.String("assignment", assignment.String()),
				zap.Error(err))
			continue
		}
		res.Candidates++
		res.Iterations++

		violations = oracle.Verify(patched, s.oracles)
		if len(violations) == 0 {
			res.Status = StatusSuccess
			res.Artifact = patched
			res.Assignment = assignment
			res.Constraints = learned.List()
			s.logger.Info("synthesis succeeded",
				zap.String("assignment", assignment.String()),
				zap.Int("candidates", res.Candidates),
				zap.Int("constraints", learned.Len()))
			return res, nil
		}

		added := learned.AddAll(oracle.Extract(violations, space))
		if len(added) > 0 {
			enum.Add(added...)
			stale = 0
			s.logger.Debug("learned constraints",
				zap.Int("new", len(added)),
				zap.Int("total", learned.Len()))
			continue
		}
		stale++
		if stale >= budget.MaxIters {
			res.Status = StatusNoProgress
			res.Constraints = learned.List()
			s.logger.Info("no progress, giving up",
				zap.Int("iterations", res.Iterations),
				zap.Int("candidates", res.Candidates))
			return res, nil
		}
	}
}
