package postgres

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestQueryLogger(t *testing.T) {
	run := func(elapsed time.Duration, err error) string {
		var buf bytes.Buffer
		ql := NewQueryLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

		now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
		ql.now = func() time.Time { return now }
		ctx := ql.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})

		now = now.Add(elapsed)
		ql.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{SQL: "SELECT 1", CommandTag: pgconn.NewCommandTag("SELECT 1"), Err: err})
		return buf.String()
	}

	t.Run("fast query at debug", func(t *testing.T) {
		out := run(5*time.Millisecond, nil)
		assert.Contains(t, out, `"level":"debug"`)
		assert.Contains(t, out, `"duration_ms":5`)
		assert.Contains(t, out, "Query executed")
	})

	t.Run("slow query warns", func(t *testing.T) {
		out := run(250*time.Millisecond, nil)
		assert.Contains(t, out, `"level":"warn"`)
		assert.Contains(t, out, "Slow query detected")
	})

	t.Run("error wins over slow", func(t *testing.T) {
		out := run(250*time.Millisecond, errors.New("relation does not exist"))
		assert.Contains(t, out, `"level":"error"`)
		assert.Contains(t, out, "relation does not exist")
	})
}

func TestPgxZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	a := NewPgxZerologAdapter(zerolog.New(&buf))

	a.Log(context.Background(), tracelog.LogLevelWarn, "Query", map[string]interface{}{"sql": "SELECT 1"})
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"sql":"SELECT 1"`)
}

func TestTraceLevel(t *testing.T) {
	assert.Equal(t, tracelog.LogLevelInfo, traceLevel("info"))
	assert.Equal(t, tracelog.LogLevelWarn, traceLevel("warn"))
	assert.Equal(t, tracelog.LogLevelDebug, traceLevel("debug"))
	assert.Equal(t, tracelog.LogLevelDebug, traceLevel(""))
}

func TestFillPoolStats(t *testing.T) {
	s := &HealthStatus{Status: StatusHealthy}
	fillPoolStats(s, 2, 3, 5, 10)
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Equal(t, int32(5), s.TotalConns)

	s = &HealthStatus{Status: StatusHealthy}
	fillPoolStats(s, 8, 0, 8, 10)
	assert.Equal(t, StatusDegraded, s.Status)
}

func TestReverse(t *testing.T) {
	s := []int{1, 2, 3, 4}
	reverse(s)
	assert.Equal(t, []int{4, 3, 2, 1}, s)
}
