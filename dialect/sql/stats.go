package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// defaultSlowThreshold is the duration above which a statement is logged as slow.
const defaultSlowThreshold = 100 * time.Millisecond

// QueryStats holds statement execution statistics. One QueryStats may be
// shared by every Driver of a datasource.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of statement errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// record accounts one statement and logs it.
func (d *Driver) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		d.stats.TotalQueries.Add(1)
	} else {
		d.stats.TotalExecs.Add(1)
	}
	d.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		d.stats.Errors.Add(1)
		d.log.DebugContext(ctx, "statement failed", "query", query, "args", args, "duration", duration, "error", err)
	} else {
		d.log.DebugContext(ctx, "statement", "query", query, "args", args, "duration", duration)
	}
	if duration > d.slowThreshold {
		d.stats.SlowQueries.Add(1)
		if d.slowHook != nil {
			d.slowHook(ctx, query, args, duration)
		}
	}
}

// logSlowQuery is the default slow statement hook.
func logSlowQuery(log *slog.Logger) SlowQueryHook {
	return func(ctx context.Context, query string, args []any, duration time.Duration) {
		log.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
	}
}
