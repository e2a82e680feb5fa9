package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/tutorsheets/internal/metrics"
)

// instrumented records operation counts, errors and latency for a Store.
type instrumented struct {
	next    Store
	backend string
	m       *metrics.Metrics
}

// Instrument wraps s so that every call is recorded in m under backend.
func Instrument(s Store, backend string, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{next: s, backend: backend, m: m}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.StoreOpsTotal.WithLabelValues(i.backend, op).Inc()
	i.m.StoreOpDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		i.m.StoreErrorsTotal.WithLabelValues(i.backend, op).Inc()
	}
}

func (i *instrumented) EnsureTable(ctx context.Context, workspace, name string) (t *Table, err error) {
	defer func(start time.Time) { i.observe("ensure_table", start, err) }(time.Now())
	return i.next.EnsureTable(ctx, workspace, name)
}

func (i *instrumented) Scan(ctx context.Context, t *Table) (rows [][]string, err error) {
	defer func(start time.Time) { i.observe("scan", start, err) }(time.Now())
	return i.next.Scan(ctx, t)
}

func (i *instrumented) Append(ctx context.Context, t *Table, row []string) (err error) {
	defer func(start time.Time) { i.observe("append", start, err) }(time.Now())
	return i.next.Append(ctx, t, row)
}

func (i *instrumented) UpdateRow(ctx context.Context, t *Table, position int, row []string) (err error) {
	defer func(start time.Time) { i.observe("update_row", start, err) }(time.Now())
	return i.next.UpdateRow(ctx, t, position, row)
}

func (i *instrumented) Rewrite(ctx context.Context, t *Table, rows [][]string) (err error) {
	defer func(start time.Time) { i.observe("rewrite", start, err) }(time.Now())
	return i.next.Rewrite(ctx, t, rows)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
