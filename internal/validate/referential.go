package validate

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TargetBinding is a typed handle to an already-constructed Uniqueness
// evaluator: the identifier plus the capability to read its sorted
// reference index once finalized. It exists so a Referential evaluator
// never needs an in-memory hash table shared with its target — only a
// file path, read after the target's own finalize has run.
type TargetBinding struct {
	target *Uniqueness
}

// BindTarget produces a TargetBinding against an already-constructed
// Uniqueness evaluator.
func BindTarget(u *Uniqueness) TargetBinding {
	return TargetBinding{target: u}
}

func (b TargetBinding) sortedValueFile() (string, error) {
	if b.target == nil {
		return "", fmt.Errorf("referential evaluator: target binding is not set")
	}
	return b.target.SortedValueFile(), nil
}

// ReferentialConfig configures a Referential evaluator. SourceTerm,
// SourceContext, Target, and WorkingFolder are required.
type ReferentialConfig struct {
	SourceTerm       Term
	SourceContext    EvaluationContext
	SourceRowType    RowType // optional restriction, case-insensitive
	Target           TargetBinding
	MultiValueSep    string // optional; when set, source values are split
	WorkingFolder    string
}

// Validate checks the required fields of a ReferentialConfig.
func (c ReferentialConfig) Validate() error {
	if c.SourceTerm == (Term{}) {
		return fmt.Errorf("referential evaluator: source term is required")
	}
	if c.SourceContext == "" {
		return fmt.Errorf("referential evaluator: source context is required")
	}
	if c.Target.target == nil {
		return fmt.Errorf("referential evaluator: target binding is required")
	}
	if c.WorkingFolder == "" {
		return fmt.Errorf("referential evaluator: working folder is required")
	}
	return nil
}

// Referential detects values of a source field that have no corresponding
// value in a target uniqueness evaluator's reference index.
type Referential struct {
	key         string
	restriction restriction
	sourceTerm  Term
	sep         string
	target      TargetBinding

	dir        string
	spillPath  string
	sortedPath string
	recorder   *valueRecorder

	finalized bool
	closed    bool
}

// NewReferential constructs a ready-to-intake Referential evaluator.
func NewReferential(cfg ReferentialConfig) (*Referential, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	spillPath := filepath.Join(cfg.WorkingFolder, id+".txt")
	sortedPath := filepath.Join(cfg.WorkingFolder, id+"_sorted.txt")

	rec, err := newValueRecorder(spillPath)
	if err != nil {
		return nil, err
	}

	return &Referential{
		key:         ReferentialKey,
		restriction: newRestriction(cfg.SourceContext, cfg.SourceRowType),
		sourceTerm:  cfg.SourceTerm,
		sep:         cfg.MultiValueSep,
		target:      cfg.Target,
		dir:         cfg.WorkingFolder,
		spillPath:   spillPath,
		sortedPath:  sortedPath,
		recorder:    rec,
	}, nil
}

// Degraded reports whether a transient I/O failure occurred during intake.
func (r *Referential) Degraded() bool { return r.recorder.degraded }

func (r *Referential) HandleEval(record Record, context EvaluationContext) (Finding, bool) {
	if !r.restriction.matches(context, record) {
		return Finding{}, false
	}

	v, ok := record.Value(r.sourceTerm)
	if !ok || isBlank(v) {
		return Finding{}, false
	}

	if r.sep != "" && strings.Contains(v, r.sep) {
		for _, token := range strings.Split(v, r.sep) {
			if !isBlank(token) {
				r.recorder.record(token)
			}
		}
		return Finding{}, false
	}

	r.recorder.record(v)
	return Finding{}, false
}

// HandlePostIterate flushes and sorts the evaluator's own values, then
// performs a sorted merge diff against the target's reference index.
// Comparison for the diff itself is case-sensitive, matching the source's
// asymmetry with the (case-insensitive) uniqueness scan — see spec.md §9.
// Exactly one finding is emitted per distinct unmatched left value.
func (r *Referential) HandlePostIterate(acc Accumulator) error {
	if r.finalized {
		return nil
	}
	r.finalized = true

	if err := r.recorder.close(); err != nil {
		return fmt.Errorf("referential evaluator %s: close spill: %w", r.key, err)
	}
	if err := externalSort(r.dir, r.spillPath, r.sortedPath); err != nil {
		return fmt.Errorf("referential evaluator %s: sort: %w", r.key, err)
	}

	targetPath, err := r.target.sortedValueFile()
	if err != nil {
		return fmt.Errorf("referential evaluator %s: %w", r.key, err)
	}

	return r.diff(r.sortedPath, targetPath, acc)
}

// diff performs the sorted merge: for each distinct left value, advance
// the right cursor past anything smaller, then either consume a match or
// emit a dangling-reference finding. Duplicate left values collapse to a
// single finding.
func (r *Referential) diff(leftPath, rightPath string, acc Accumulator) error {
	left, err := os.Open(leftPath)
	if err != nil {
		return fmt.Errorf("open left sorted file: %w", err)
	}
	defer left.Close()

	right, err := os.Open(rightPath)
	if err != nil {
		return fmt.Errorf("open target reference index: %w", err)
	}
	defer right.Close()

	leftScanner := bufio.NewScanner(left)
	leftScanner.Buffer(make([]byte, 64*1024), 1024*1024)
	rightScanner := bufio.NewScanner(right)
	rightScanner.Buffer(make([]byte, 64*1024), 1024*1024)

	rightHasLine := rightScanner.Scan()
	rightLine := rightScanner.Text()

	advanceRight := func() {
		rightHasLine = rightScanner.Scan()
		if rightHasLine {
			rightLine = rightScanner.Text()
		}
	}

	var lastLeft string
	haveLastLeft := false

	for leftScanner.Scan() {
		leftLine := leftScanner.Text()
		if isBlank(leftLine) {
			continue
		}
		if haveLastLeft && leftLine == lastLeft {
			// duplicate distinct-left value already resolved above.
			continue
		}
		lastLeft = leftLine
		haveLastLeft = true

		for rightHasLine && isBlank(rightLine) {
			advanceRight()
		}
		for rightHasLine && rightLine < leftLine {
			advanceRight()
		}

		if rightHasLine && rightLine == leftLine {
			advanceRight()
			continue
		}

		acc.Accept(Finding{
			Value:        leftLine,
			EvaluatorKey: r.key,
			Context:      r.restriction.context,
			RowType:      r.restriction.rowTypeValue,
			Kind:         KindReferentialIntegrity,
			Severity:     SeverityError,
			Message:      fmt.Sprintf("%s was not found in target", leftLine),
		})
	}
	if err := leftScanner.Err(); err != nil {
		return fmt.Errorf("scan left sorted file: %w", err)
	}
	if err := rightScanner.Err(); err != nil {
		return fmt.Errorf("scan target reference index: %w", err)
	}
	return nil
}

// Close deletes the evaluator's own spill and sorted files. The target
// reference index is owned by the target evaluator and is not touched.
func (r *Referential) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if err := os.Remove(r.spillPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[validate] remove spill file %s: %v", r.spillPath, err)
	}
	if err := os.Remove(r.sortedPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[validate] remove sorted index %s: %v", r.sortedPath, err)
	}
	return nil
}
