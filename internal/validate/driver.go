package validate

import (
	"fmt"
	"log"
)

// RecordSource offers records one at a time, the way a driver walking an
// archive would. Next returns ok=false once the stream is exhausted.
type RecordSource interface {
	Next() (record Record, context EvaluationContext, ok bool)
}

// SliceSource is a RecordSource backed by an in-memory slice, useful for
// tests and for any driver small enough not to need true streaming.
type SliceSource struct {
	items []sourceItem
	pos   int
}

type sourceItem struct {
	record  Record
	context EvaluationContext
}

// NewSliceSource builds a RecordSource over an ordered list of records,
// each offered under the given evaluation context.
func NewSliceSource(context EvaluationContext, records ...Record) *SliceSource {
	items := make([]sourceItem, len(records))
	for i, r := range records {
		items[i] = sourceItem{record: r, context: context}
	}
	return &SliceSource{items: items}
}

func (s *SliceSource) Next() (Record, EvaluationContext, bool) {
	if s.pos >= len(s.items) {
		return nil, "", false
	}
	item := s.items[s.pos]
	s.pos++
	return item.record, item.context, true
}

// Stage groups evaluators that may be finalized together: the core
// requires producers to finalize before their consumers (spec.md §4.5), so
// a driver runs Stage 0 (uniqueness evaluators) to completion before
// Stage 1 (referential evaluators) begins.
type Stage struct {
	Evaluators []StatefulEvaluator
}

// Run walks the source to completion, offering each record to every
// evaluator across every stage (so intake happens once per record
// regardless of how many evaluators are watching), then finalizes stages
// in order — producers (earlier stages) before consumers (later stages) —
// and finally closes every evaluator regardless of outcome.
//
// A fatal finalization failure for one evaluator does not prevent sibling
// evaluators in the same or later stages from finalizing and being
// closed: Close is always called, temp files are always removed, and the
// first fatal error encountered is returned to the caller after every
// evaluator has had a chance to close.
func Run(source RecordSource, acc Accumulator, stages []Stage) error {
	all := make([]StatefulEvaluator, 0)
	for _, st := range stages {
		all = append(all, st.Evaluators...)
	}
	defer func() {
		for _, e := range all {
			if err := e.Close(); err != nil {
				log.Printf("[validate] close evaluator: %v", err)
			}
		}
	}()

	for {
		record, context, ok := source.Next()
		if !ok {
			break
		}
		for _, e := range all {
			e.HandleEval(record, context)
		}
	}

	var firstErr error
	for _, st := range stages {
		for _, e := range st.Evaluators {
			if err := e.HandlePostIterate(acc); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				acc.Accept(Finding{
					EvaluatorKey: "driver",
					Kind:         KindFinalizationError,
					Severity:     SeverityError,
					Message:      fmt.Sprintf("finalization failed: %v", err),
				})
			}
		}
	}
	return firstErr
}
