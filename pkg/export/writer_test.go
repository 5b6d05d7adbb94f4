package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLWriterEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "instance-1")
	ctx := context.Background()

	require.NoError(t, w.WriteJob(ctx, &JobRecord{Name: "reports", Group: "DEFAULT", Durable: true}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Jobs: 1}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var env Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &env))
	assert.Equal(t, TypeJob, env.Type)
	assert.Equal(t, "instance-1", env.Source)
	assert.False(t, env.TS.IsZero())

	var job JobRecord
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "reports", job.Name)
	assert.True(t, job.Durable)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &env))
	assert.Equal(t, TypeSummary, env.Type)
}

func TestJSONLWriterClosed(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "")
	require.NoError(t, w.Close())

	err := w.WriteJob(context.Background(), &JobRecord{Name: "late"})
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Zero(t, buf.Len())
}

func TestJSONLWriterCanceledContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.WriteJob(ctx, &JobRecord{Name: "j"})
	assert.ErrorIs(t, err, context.Canceled)
}

// shortWriter delivers one byte per call to exercise short-write
// handling.
type shortWriter struct {
	buf bytes.Buffer
}

func (s *shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return s.buf.Write(p[:1])
}

func TestJSONLWriterHandlesShortWrites(t *testing.T) {
	sw := &shortWriter{}
	w := NewJSONLWriter(sw, "")

	require.NoError(t, w.WriteCalendar(context.Background(), &CalendarRecord{Name: "holidays", Type: "holiday"}))

	var env Record
	require.NoError(t, json.Unmarshal(sw.buf.Bytes(), &env))
	assert.Equal(t, TypeCalendar, env.Type)
}
