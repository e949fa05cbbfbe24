package intake

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dwcavalidate/internal/validate"
)

// Row is the wire shape one line of a JSONL record stream decodes into.
// Context selects CORE or EXT; RowType is the Darwin-Core row type URI or
// short name; Values holds every term's raw string value keyed by its
// short name, the same key MapRecord.Value expects.
type Row struct {
	ID      string            `json:"id"`
	Context string            `json:"context"`
	RowType string            `json:"rowType"`
	Values  map[string]string `json:"values"`
}

// JSONLSource is a validate.RecordSource reading one JSON object per line.
// It is a generic record-stream reader, not a Darwin Core Archive reader:
// it knows nothing about meta.xml, zip containers, or extension linking —
// it exists so the evaluators have something to run against without
// requiring a full archive reader to exist first.
type JSONLSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
	lineNo  int
}

// Open opens path and returns a ready-to-read JSONLSource.
func Open(path string) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open record stream %s: %w", path, err)
	}
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &JSONLSource{scanner: s, closer: f}, nil
}

// Next implements validate.RecordSource. A malformed line is skipped and
// reading goes on with the next line, so ok=false comes only at EOF or on
// a read failure of the underlying stream; Next does not report decode
// errors, NextRow does.
func (s *JSONLSource) Next() (validate.Record, validate.EvaluationContext, bool) {
	row, err := s.NextRow()
	for err != nil && s.scanner.Err() == nil {
		row, err = s.NextRow()
	}
	if err != nil || row == nil {
		return nil, "", false
	}
	context := validate.Core
	if row.Context == string(validate.Extension) {
		context = validate.Extension
	}
	return validate.NewMapRecord(row.ID, validate.RowType(row.RowType), row.Values), context, true
}

// NextRow decodes the next line, returning (nil, nil) at a clean EOF.
func (s *JSONLSource) NextRow() (*Row, error) {
	for s.scanner.Scan() {
		s.lineNo++
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row Row
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("record stream line %d: %w", s.lineNo, err)
		}
		return &row, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan record stream: %w", err)
	}
	return nil, nil
}

// Close releases the underlying file handle.
func (s *JSONLSource) Close() error {
	return s.closer.Close()
}
