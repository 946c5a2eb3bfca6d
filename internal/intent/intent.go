// Package intent turns a free-text message into a structured, validated command.
//
// Well-formed phrasings are matched by deterministic rules and never leave the
// process. Anything else is handed to an Oracle, and every field the oracle
// returns is checked locally before it can reach the ledger. Whatever fails a
// check becomes KindUnknown, so callers only ever see a valid Intent.
package intent

import (
	"tally/internal/core"
)

type Kind string

const (
	KindRecordTransaction Kind = "record_transaction"
	KindQueryStatistics   Kind = "query_statistics"
	KindCompareEntities   Kind = "compare_entities"
	KindListRecent        Kind = "list_recent"
	KindClearLedger       Kind = "clear_ledger"
	KindTrackEntity       Kind = "track_entity"
	KindUntrackEntity     Kind = "untrack_entity"
	KindListTracked       Kind = "list_tracked"
	KindHelp              Kind = "help"
	KindUnknown           Kind = "unknown"
)

// Source records which path produced an Intent.
type Source string

const (
	SourceRule   Source = "rule"
	SourceOracle Source = "oracle"
	SourceNone   Source = "none"
)

const (
	DefaultLimit  = 10
	MaxLimit      = 50
	MinConfidence = 0.5
)

// Intent is the resolved command. Only the fields relevant to Kind are set.
type Intent struct {
	Kind        Kind
	Entity      string // canonical; empty means "all" for statistics
	TxKind      core.Kind
	Amount      core.Amount
	Description string
	Metric      core.Metric
	Limit       int
	// IncludeTracked extends clear_ledger to the owner's tracked entities.
	IncludeTracked bool
	// Reason explains an Unknown outcome. Empty otherwise.
	Reason string
	Source Source
}

func Unknown(reason string, source Source) Intent {
	return Intent{Kind: KindUnknown, Reason: reason, Source: source}
}

func (i Intent) IsUnknown() bool {
	return i.Kind == KindUnknown
}

// Request is one message to resolve.
type Request struct {
	Text     string
	OwnerID  string
	Language string
}

// ParseKind maps an intent name, including the older aliases some models
// still emit, to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindRecordTransaction, KindQueryStatistics, KindCompareEntities,
		KindListRecent, KindClearLedger, KindTrackEntity, KindUntrackEntity,
		KindListTracked, KindHelp, KindUnknown:
		return Kind(s), true
	}
	switch s {
	case "get_statistics", "statistics":
		return KindQueryStatistics, true
	case "clear_data":
		return KindClearLedger, true
	case "compare":
		return KindCompareEntities, true
	case "add_collection":
		return KindTrackEntity, true
	case "remove_collection":
		return KindUntrackEntity, true
	case "list_collections":
		return KindListTracked, true
	case "general":
		return KindUnknown, true
	}
	return "", false
}
