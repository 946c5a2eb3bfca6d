package core

import (
	"strings"
	"time"
)

const (
	MetricConsumed Metric = "consumed"
	MetricReceived Metric = "received"
	MetricBalance  Metric = "balance"
)

// Metric selects the value entities are ranked by.
type Metric string

// EntityStatistics summarizes one entity's ledger. It is derived on every
// query and never stored.
type EntityStatistics struct {
	Entity           string
	TotalConsumed    Amount
	TotalReceived    Amount
	NetBalance       Amount // TotalReceived - TotalConsumed
	TransactionCount int
	LastTransaction  time.Time
}

// Ranking is one row of an entity comparison.
type Ranking struct {
	Entity string
	Value  Amount
}

// ParseMetric accepts the metric names and a few common aliases.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consumed", "consumption", "consume":
		return MetricConsumed, nil
	case "received", "receipts", "receive":
		return MetricReceived, nil
	case "balance", "net", "net_balance":
		return MetricBalance, nil
	}
	return "", &ValidationError{Field: "metric", Value: s, Err: ErrInvalidMetric}
}

// Value picks the metric out of a statistics row.
func (m Metric) Value(s EntityStatistics) Amount {
	switch m {
	case MetricReceived:
		return s.TotalReceived
	case MetricBalance:
		return s.NetBalance
	default:
		return s.TotalConsumed
	}
}
