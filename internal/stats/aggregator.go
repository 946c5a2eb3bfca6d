// Package stats derives per-entity statistics and rankings from the ledger.
// Nothing here is stored: every call recomputes from a fresh scan.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
)

var errInvertedRange = errors.New("end of range is before its start")

type Aggregator struct {
	store    ledger.Scanner
	entities core.EntitySet
}

func NewAggregator(store ledger.Scanner, entities core.EntitySet) *Aggregator {
	return &Aggregator{store: store, entities: entities}
}

// Statistics returns totals per entity for ownerID over the transactions that
// fall in f's time range. With f.Entity set, the result holds exactly that
// entity, zero-valued if it has no transactions in range. Without it, only
// entities with at least one transaction appear. f.Kind is ignored: totals
// always cover both directions.
func (a *Aggregator) Statistics(ctx context.Context, ownerID string, f core.Filter) (map[string]core.EntityStatistics, error) {
	f.Kind = ""
	if f.Entity != "" {
		canonical, err := a.entities.Resolve(f.Entity)
		if err != nil {
			return nil, err
		}
		f.Entity = canonical
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return nil, &core.ValidationError{Field: "until", Value: f.Until.Format(time.RFC3339), Err: errInvertedRange}
	}

	txs, err := a.store.Scan(ctx, ownerID, f)
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}

	out, err := Summarize(txs)
	if err != nil {
		return nil, err
	}
	if f.Entity != "" {
		if _, ok := out[f.Entity]; !ok {
			out[f.Entity] = core.EntityStatistics{Entity: f.Entity}
		}
	}
	return out, nil
}

// Compare ranks entities with at least one transaction by metric, highest first.
// Ties are broken by entity name so the order is stable.
func (a *Aggregator) Compare(ctx context.Context, ownerID string, metric core.Metric) ([]core.Ranking, error) {
	switch metric {
	case core.MetricConsumed, core.MetricReceived, core.MetricBalance:
	default:
		return nil, &core.ValidationError{Field: "metric", Value: string(metric), Err: core.ErrInvalidMetric}
	}

	txs, err := a.store.Scan(ctx, ownerID, core.Filter{})
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}

	stats, err := Summarize(txs)
	if err != nil {
		return nil, err
	}
	ranking := make([]core.Ranking, 0, len(stats))
	for name, s := range stats {
		ranking = append(ranking, core.Ranking{Entity: name, Value: metric.Value(s)})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Value.Hundredths != ranking[j].Value.Hundredths {
			return ranking[i].Value.Hundredths > ranking[j].Value.Hundredths
		}
		return ranking[i].Entity < ranking[j].Entity
	})
	return ranking, nil
}

// Summarize folds transactions into per-entity totals in a single pass. A total
// that would overflow is reported as a storage failure rather than wrapped.
func Summarize(txs []core.Transaction) (map[string]core.EntityStatistics, error) {
	out := make(map[string]core.EntityStatistics)
	for _, t := range txs {
		s := out[t.Entity]
		s.Entity = t.Entity
		var err error
		switch t.Kind {
		case core.Consumed:
			s.TotalConsumed, err = s.TotalConsumed.CheckedAdd(t.Amount)
		case core.Received:
			s.TotalReceived, err = s.TotalReceived.CheckedAdd(t.Amount)
		}
		if err != nil {
			return nil, core.StorageError("summarize "+t.Entity, err)
		}
		s.NetBalance = s.TotalReceived.Sub(s.TotalConsumed)
		s.TransactionCount++
		if t.Timestamp.After(s.LastTransaction) {
			s.LastTransaction = t.Timestamp
		}
		out[t.Entity] = s
	}
	return out, nil
}

// Ordered returns the statistics sorted by entity name.
func Ordered(stats map[string]core.EntityStatistics) []core.EntityStatistics {
	out := make([]core.EntityStatistics, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}
