package validate

import "sync"

// Kind closes the enumeration of defects the core can report. Stateless
// rules elsewhere in the wider system add their own kinds; the core only
// ever emits these three: the two evaluator kinds, plus the driver's
// KindFinalizationError diagnostic.
type Kind string

const (
	KindUniqueness           Kind = "FIELD_UNIQUENESS"
	KindReferentialIntegrity Kind = "FIELD_REFERENTIAL_INTEGRITY"
	// KindFinalizationError is the terminal diagnostic finding emitted
	// when an evaluator's finalization fails fatally (spec.md §7.4).
	KindFinalizationError Kind = "FINALIZATION_ERROR"
)

// Severity is either an ERROR or a WARNING. The core only ever emits ERROR;
// WARNING exists for the wider system's stateless rules.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Finding is an immutable report of one violation.
type Finding struct {
	Value        string
	EvaluatorKey string
	Context      EvaluationContext
	RowType      RowType
	Kind         Kind
	Severity     Severity
	Message      string
}

// Accumulator is the write-only sink evaluators report findings to. It is
// not the evaluator's job to deduplicate; an accumulator may choose to.
type Accumulator interface {
	Accept(f Finding)
}

// MemoryAccumulator collects findings in order of arrival. Used by tests
// and by anything that wants a read-back list rather than a durable sink.
// Safe for concurrent use since evaluators sharing an accumulator are
// required to serialize through it.
type MemoryAccumulator struct {
	mu       sync.Mutex
	Findings []Finding
}

// NewMemoryAccumulator returns an empty, ready-to-use MemoryAccumulator.
func NewMemoryAccumulator() *MemoryAccumulator {
	return &MemoryAccumulator{}
}

func (m *MemoryAccumulator) Accept(f Finding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Findings = append(m.Findings, f)
}
