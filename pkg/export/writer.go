package export

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer emits export records.
//
// Implementations must be safe for concurrent use. Each Write* method
// emits one complete record.
type Writer interface {
	// WriteJob emits a job record.
	WriteJob(ctx context.Context, job *JobRecord) error

	// WriteTrigger emits a trigger record.
	WriteTrigger(ctx context.Context, trig *TriggerRecord) error

	// WriteCalendar emits a calendar record.
	WriteCalendar(ctx context.Context, cal *CalendarRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized with a
// mutex so lines never interleave.
type JSONLWriter struct {
	w      io.Writer
	source string

	mu     sync.Mutex
	closed bool
}

var _ Writer = (*JSONLWriter)(nil)

// NewJSONLWriter creates a writer emitting to w. Source identifies the
// exporting instance in each envelope and may be empty.
//
// If the underlying writer implements io.Closer, Close does NOT close
// it; the caller owns its lifecycle.
func NewJSONLWriter(w io.Writer, source string) *JSONLWriter {
	return &JSONLWriter{w: w, source: source}
}

// WriteJob implements Writer.
func (jw *JSONLWriter) WriteJob(ctx context.Context, job *JobRecord) error {
	return jw.writeRecord(ctx, TypeJob, job)
}

// WriteTrigger implements Writer.
func (jw *JSONLWriter) WriteTrigger(ctx context.Context, trig *TriggerRecord) error {
	return jw.writeRecord(ctx, TypeTrigger, trig)
}

// WriteCalendar implements Writer.
func (jw *JSONLWriter) WriteCalendar(ctx context.Context, cal *CalendarRecord) error {
	return jw.writeRecord(ctx, TypeCalendar, cal)
}

// WriteSummary implements Writer.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals the payload and writes one complete line.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:   recordType,
		TS:     time.Now().UTC(),
		Source: jw.source,
		Data:   dataBytes,
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal", Err: err}
	}

	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll writes all of p, handling short writes so lines are never
// silently truncated.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
