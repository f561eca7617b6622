package platform

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/redisgate/redisgate/internal/telemetry"
)

type tracerCtxKey struct{}

// queryTracer records query counts and latency into the Prometheus
// collectors, labeled by statement verb.
type queryTracer struct{}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, tracerCtxKey{}, queryStart{
		verb: queryVerb(data.SQL),
		at:   time.Now(),
	})
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryEndData) {
	start, ok := ctx.Value(tracerCtxKey{}).(queryStart)
	if !ok {
		return
	}
	telemetry.DatabaseQueriesTotal.WithLabelValues(start.verb).Inc()
	telemetry.DatabaseQueryDuration.WithLabelValues(start.verb).Observe(time.Since(start.at).Seconds())
}

type queryStart struct {
	verb string
	at   time.Time
}

// queryVerb extracts the leading SQL verb as a low-cardinality label.
func queryVerb(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \t\n"); i > 0 {
		sql = sql[:i]
	}
	verb := strings.ToLower(sql)
	switch verb {
	case "select", "insert", "update", "delete", "begin", "commit", "rollback":
		return verb
	default:
		return "other"
	}
}
