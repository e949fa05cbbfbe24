package accum

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sync"

	"dwcavalidate/internal/validate"
)

// CSVAccumulator writes every finding as a row to a CSV file, flushing
// after each write so a crash mid-run loses at most the in-flight row.
// There is no third-party CSV library anywhere in the dependency stack
// this module draws on; encoding/csv is the only writer, in or out of the
// ecosystem, that the teacher or its peers ever reach for.
type CSVAccumulator struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSVAccumulator creates (or truncates) path and writes a header row.
func NewCSVAccumulator(path string) (*CSVAccumulator, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create findings csv %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"kind", "severity", "evaluatorKey", "context", "rowType", "value", "message"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVAccumulator{f: f, w: w}, nil
}

func (c *CSVAccumulator) Accept(finding validate.Finding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{
		string(finding.Kind),
		string(finding.Severity),
		finding.EvaluatorKey,
		string(finding.Context),
		string(finding.RowType),
		finding.Value,
		finding.Message,
	}
	if err := c.w.Write(row); err != nil {
		log.Printf("[accum] csv write failed: %v", err)
		return
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		log.Printf("[accum] csv flush failed: %v", err)
	}
}

// Close flushes and closes the underlying file.
func (c *CSVAccumulator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	return c.f.Close()
}
