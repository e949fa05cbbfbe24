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

// UniquenessConfig configures a Uniqueness evaluator. Context and
// WorkingFolder are required; RowType and Term are optional.
type UniquenessConfig struct {
	Context       EvaluationContext
	RowType       RowType // optional restriction, case-insensitive
	Term          *Term   // optional; when nil, the record's ID is used
	WorkingFolder string
}

// Validate checks the required fields of a UniquenessConfig.
func (c UniquenessConfig) Validate() error {
	if c.Context == "" {
		return fmt.Errorf("uniqueness evaluator: evaluation context is required")
	}
	if c.WorkingFolder == "" {
		return fmt.Errorf("uniqueness evaluator: working folder is required")
	}
	return nil
}

// Uniqueness detects that a chosen term's values (or, absent a term, the
// record's primary identifier) repeat within its restriction. It buffers
// values to disk and only reports duplicates once finalized.
type Uniqueness struct {
	key         string
	restriction restriction
	term        *Term
	termLabel   string

	dir        string
	spillPath  string
	sortedPath string
	recorder   *valueRecorder

	finalized bool
	closed    bool
}

// NewUniqueness constructs a ready-to-intake Uniqueness evaluator. It opens
// its spill file eagerly, per the core's lifecycle contract.
func NewUniqueness(cfg UniquenessConfig) (*Uniqueness, error) {
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

	label := "coreId"
	if cfg.Term != nil {
		label = cfg.Term.String()
	}

	return &Uniqueness{
		key:         UniquenessKey,
		restriction: newRestriction(cfg.Context, cfg.RowType),
		term:        cfg.Term,
		termLabel:   label,
		dir:         cfg.WorkingFolder,
		spillPath:   spillPath,
		sortedPath:  sortedPath,
		recorder:    rec,
	}, nil
}

// SortedValueFile returns the path of the sorted reference index this
// evaluator produces. The file exists only after HandlePostIterate has
// run; it is the artifact a referential evaluator binds against.
func (u *Uniqueness) SortedValueFile() string { return u.sortedPath }

// Degraded reports whether a transient I/O failure occurred during intake.
func (u *Uniqueness) Degraded() bool { return u.recorder.degraded }

func (u *Uniqueness) HandleEval(record Record, context EvaluationContext) (Finding, bool) {
	if !u.restriction.matches(context, record) {
		return Finding{}, false
	}

	var v string
	if u.term == nil {
		v = record.ID()
	} else {
		val, ok := record.Value(*u.term)
		if !ok {
			return Finding{}, false
		}
		v = val
	}

	if isBlank(v) {
		return Finding{}, false
	}
	u.recorder.record(v)
	return Finding{}, false
}

// HandlePostIterate flushes and sorts the recorded values, then scans the
// sorted index with a one-line lookback: every line that is
// case-insensitively equal to the one before it produces a finding. Three
// consecutive equal lines produce two findings, preserving the count of
// extra copies.
func (u *Uniqueness) HandlePostIterate(acc Accumulator) error {
	if u.finalized {
		return nil
	}
	u.finalized = true

	if err := u.recorder.close(); err != nil {
		return fmt.Errorf("uniqueness evaluator %s: close spill: %w", u.key, err)
	}

	if err := externalSort(u.dir, u.spillPath, u.sortedPath); err != nil {
		return fmt.Errorf("uniqueness evaluator %s: sort: %w", u.key, err)
	}

	f, err := os.Open(u.sortedPath)
	if err != nil {
		return fmt.Errorf("uniqueness evaluator %s: read sorted index: %w", u.key, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	previous := ""
	for scanner.Scan() {
		current := scanner.Text()
		if strings.EqualFold(previous, current) && !isBlank(current) {
			acc.Accept(Finding{
				Value:        current,
				EvaluatorKey: u.key,
				Context:      u.restriction.context,
				RowType:      u.restriction.rowTypeValue,
				Kind:         KindUniqueness,
				Severity:     SeverityError,
				Message:      fmt.Sprintf("%s is not unique for %s", current, u.termLabel),
			})
		}
		previous = current
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("uniqueness evaluator %s: scan sorted index: %w", u.key, err)
	}
	return nil
}

// Close deletes both the raw spill file and the sorted index. Idempotent.
func (u *Uniqueness) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true

	if err := os.Remove(u.spillPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[validate] remove spill file %s: %v", u.spillPath, err)
	}
	if err := os.Remove(u.sortedPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[validate] remove sorted index %s: %v", u.sortedPath, err)
	}
	return nil
}
