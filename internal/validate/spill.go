package validate

import (
	"bufio"
	"fmt"
	"log"
	"os"
)

// recorderCapacity is the default in-memory buffer size before a flush.
// Mirrors the source's BUFFER_THRESHOLD.
const recorderCapacity = 1000

// valueRecorder is a bounded in-memory buffer of captured strings that
// spills to a newline-delimited file in batches. It performs no sorting
// and no deduplication; that is the caller's job at finalize time.
type valueRecorder struct {
	path     string
	buf      []string
	w        *bufio.Writer
	f        *os.File
	degraded bool
}

// newValueRecorder opens path for writing and returns a ready recorder.
func newValueRecorder(path string) (*valueRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open spill file %s: %w", path, err)
	}
	return &valueRecorder{
		path: path,
		buf:  make([]string, 0, recorderCapacity),
		w:    bufio.NewWriter(f),
		f:    f,
	}, nil
}

// record appends a value to the buffer, flushing when it reaches capacity.
// Blank values are buffered like any other but dropped by flush, so they
// are never written to the spill file.
func (r *valueRecorder) record(v string) {
	r.buf = append(r.buf, v)
	if len(r.buf) >= recorderCapacity {
		r.flush()
	}
}

// flush writes every buffered value on its own line and clears the buffer.
// Must be called at least once more at finalize time, even with a partial
// buffer. A write failure is logged and marks the recorder degraded rather
// than aborting intake — the evaluator is single-writer and append-only,
// so retrying buys nothing (spec.md §7.3).
func (r *valueRecorder) flush() {
	for _, v := range r.buf {
		if isBlank(v) {
			continue
		}
		if _, err := r.w.WriteString(v); err != nil {
			log.Printf("[validate] spill write to %s failed: %v", r.path, err)
			r.degraded = true
			break
		}
		if err := r.w.WriteByte('\n'); err != nil {
			log.Printf("[validate] spill write to %s failed: %v", r.path, err)
			r.degraded = true
			break
		}
	}
	r.buf = r.buf[:0]
}

// close flushes any partial buffer and closes the underlying file handle.
func (r *valueRecorder) close() error {
	r.flush()
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("flush spill file %s: %w", r.path, err)
	}
	return r.f.Close()
}
