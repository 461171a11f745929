package bank

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"redress/internal/constraint"
	"redress/internal/patch"
)

// ErrCorrupted names the condition of a bank file that could not be parsed
// on load. Open does not return it: the bank starts empty, Corrupted
// reports true, and the parse error is logged.
var ErrCorrupted = errors.New("bank file corrupted")

// formatVersion is written to every bank document.
const formatVersion = "1"

// EntryMeta carries usage statistics for one bank entry.
type EntryMeta struct {
	SuccessCount    int       `json:"success_count"`
	FirstUsed       time.Time `json:"first_used"`
	LastUsed        time.Time `json:"last_used"`
	CandidatesTried int       `json:"candidates_tried"`
}

// Entry is one stored repair pattern. Template and hole space are fixed at
// first store; constraints accumulate by set-union and the assignment
// tracks the most recent success.
type Entry struct {
	Signature   Signature               `json:"signature"`
	Template    patch.Template          `json:"template"`
	HoleSpace   *patch.HoleSpace        `json:"hole_space"`
	Constraints []constraint.Constraint `json:"learned_constraints"`
	Assignment  patch.Assignment        `json:"successful_assignment"`
	Meta        EntryMeta               `json:"metadata"`
}

// Bank is the in-memory view of the on-disk store. Not safe for
// concurrent use; callers sharing a file across processes must reload
// before lookup and save after store.
type Bank struct {
	path      string
	entries   []*Entry
	byKey     map[string]*Entry
	corrupted bool
	logger    *zap.Logger
	now       func() time.Time
}

// Open loads the bank at path. A missing file yields an empty bank; a
// corrupted file yields an empty bank with Corrupted set and a logged
// warning — no error escapes for either case. An empty path keeps the
// bank purely in memory.
func Open(path string, logger *zap.Logger) (*Bank, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bank{
		path:   path,
		byKey:  make(map[string]*Entry),
		logger: logger,
		now:    time.Now,
	}
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("failed to read bank: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		b.corrupted = true
		logger.Warn("bank file corrupted, starting empty",
			zap.String("path", path), zap.Error(err))
		return b, nil
	}
	for _, e := range doc.Entries {
		entry := e
		b.entries = append(b.entries, entry)
		b.byKey[entry.Signature.Key()] = entry
	}
	logger.Info("bank loaded", zap.String("path", path), zap.Int("entries", len(b.entries)))
	return b, nil
}

// Corrupted reports whether the last load found unparseable content.
func (b *Bank) Corrupted() bool { return b.corrupted }

// Len returns the number of entries.
func (b *Bank) Len() int { return len(b.entries) }

// Entries returns the stored entries in load/insert order, for diagnostics.
func (b *Bank) Entries() []*Entry {
	return append([]*Entry(nil), b.entries...)
}

// Lookup finds the entry whose signature exactly equals sig.
func (b *Bank) Lookup(sig Signature) (*Entry, bool) {
	e, ok := b.byKey[sig.Key()]
	return e, ok
}

// Store records a successful repair under sig and persists the bank. A new
// signature inserts a fresh entry; an existing one keeps its stored
// template and hole space, unions the constraints, takes the latest
// assignment, bumps the success count, and refreshes last_used.
// Constraints naming holes absent from the stored hole space, or forbidding
// the stored assignment, are dropped so the entry stays self-consistent.
func (b *Bank) Store(
	sig Signature,
	template patch.Template,
	space *patch.HoleSpace,
	learned []constraint.Constraint,
	assignment patch.Assignment,
	candidatesTried int,
) error {
	now := b.now().UTC().Truncate(time.Second)
	key := sig.Key()

	if existing, ok := b.byKey[key]; ok {
		set := constraint.NewSet(existing.Constraints...)
		set.AddAll(learned)
		existing.Constraints = filterConstraints(set.List(), existing.HoleSpace, assignment)
		existing.Assignment = assignment.Clone()
		existing.Meta.SuccessCount++
		existing.Meta.LastUsed = now
		existing.Meta.CandidatesTried = candidatesTried
		b.logger.Info("bank entry updated",
			zap.Int("success_count", existing.Meta.SuccessCount),
			zap.Int("constraints", len(existing.Constraints)))
		return b.Save()
	}

	entry := &Entry{
		Signature:   sig,
		Template:    template,
		HoleSpace:   space,
		Constraints: filterConstraints(learned, space, assignment),
		Assignment:  assignment.Clone(),
		Meta: EntryMeta{
			SuccessCount:    1,
			FirstUsed:       now,
			LastUsed:        now,
			CandidatesTried: candidatesTried,
		},
	}
	b.entries = append(b.entries, entry)
	b.byKey[key] = entry
	b.logger.Info("bank entry added", zap.Int("constraints", len(entry.Constraints)))
	return b.Save()
}

// filterConstraints keeps only constraints whose holes all exist in the
// stored hole space and which the stored assignment does not violate.
func filterConstraints(cs []constraint.Constraint, space *patch.HoleSpace, assignment patch.Assignment) []constraint.Constraint {
	out := make([]constraint.Constraint, 0, len(cs))
	for _, c := range cs {
		keep := true
		for _, hole := range c.HoleNames() {
			if !space.Has(hole) {
				keep = false
				break
			}
		}
		if keep && c.Violates(assignment) {
			keep = false
		}
		if keep {
			out = append(out, c)
		}
	}
	return out
}

// Save writes the bank document to its path: marshal, write a sibling
// temp file, then rename over the target. No-op for in-memory banks.
func (b *Bank) Save() error {
	if b.path == "" {
		return nil
	}
	doc := document{Version: formatVersion, Entries: b.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bank: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bank directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp bank file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write bank: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close bank file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit bank: %w", err)
	}
	b.logger.Debug("bank saved", zap.String("path", b.path), zap.Int("entries", len(b.entries)))
	return nil
}

// document is the on-disk shape: a version tag and the entry list.
type document struct {
	Version string   `json:"version"`
	Entries []*Entry `json:"entries"`
}
