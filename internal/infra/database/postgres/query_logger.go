package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// SlowQueryThreshold 느린 쿼리 경고 기준
const SlowQueryThreshold = 100 * time.Millisecond

type queryStartKey struct{}

// QueryLogger implements pgx.QueryTracer for logging database queries
type QueryLogger struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewQueryLogger creates a new query logger
func NewQueryLogger(logger zerolog.Logger) *QueryLogger {
	return &QueryLogger{logger: logger, now: time.Now}
}

// TraceQueryStart is called at the beginning of Query, QueryRow, and Exec calls
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, ql.now())
}

// TraceQueryEnd is called at the end of Query, QueryRow, and Exec calls
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		start = ql.now()
	}
	duration := ql.now().Sub(start)

	switch {
	case data.Err != nil:
		ql.logger.Error().
			Err(data.Err).
			Str("sql", data.SQL).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("Query failed")
	case duration > SlowQueryThreshold:
		ql.logger.Warn().
			Str("sql", data.SQL).
			Int64("duration_ms", duration.Milliseconds()).
			Str("command_tag", data.CommandTag.String()).
			Msg("Slow query detected")
	default:
		ql.logger.Debug().
			Str("sql", data.SQL).
			Int64("duration_ms", duration.Milliseconds()).
			Str("command_tag", data.CommandTag.String()).
			Msg("Query executed")
	}
}

// PgxZerologAdapter adapts zerolog.Logger to pgx's Logger interface
type PgxZerologAdapter struct {
	logger zerolog.Logger
}

// NewPgxZerologAdapter creates a new adapter
func NewPgxZerologAdapter(logger zerolog.Logger) *PgxZerologAdapter {
	return &PgxZerologAdapter{logger: logger}
}

// Log implements pgx Logger interface
func (l *PgxZerologAdapter) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	var event *zerolog.Event

	switch level {
	case tracelog.LogLevelTrace:
		event = l.logger.Trace()
	case tracelog.LogLevelDebug:
		event = l.logger.Debug()
	case tracelog.LogLevelInfo:
		event = l.logger.Info()
	case tracelog.LogLevelWarn:
		event = l.logger.Warn()
	case tracelog.LogLevelError:
		event = l.logger.Error()
	default:
		event = l.logger.Info()
	}

	event.Fields(data).Msg(msg)
}

// multiTracer feeds query events to both the query logger and tracelog.
type multiTracer struct {
	query *QueryLogger
	trace *tracelog.TraceLog
}

func (m *multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx = m.query.TraceQueryStart(ctx, conn, data)
	return m.trace.TraceQueryStart(ctx, conn, data)
}

func (m *multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	m.query.TraceQueryEnd(ctx, conn, data)
	m.trace.TraceQueryEnd(ctx, conn, data)
}
