package intent

import (
	"regexp"
	"strconv"
	"strings"

	"tally/internal/core"
)

var (
	recordPattern = regexp.MustCompile(`(?i)^\s*(\S+)\s+(consumed|consumes|consume|received|receives|receive)\s+` +
		`([0-9]+(?:[.,][0-9]+)?)(?:\s+([^\s\d'"+\-.,][^\s'"]*))?` +
		`(?:\s+with\s+description\s+(?:'([^']*)'|"([^"]*)"))?\s*[.!]?\s*$`)

	// 1,000 reads as a thousand or as one; the rules never pick.
	groupedAmount = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)

	helpPattern    = regexp.MustCompile(`(?i)^\s*(?:help|\?|what can you do)\s*[?!.]?\s*$`)
	statsPattern   = regexp.MustCompile(`(?i)^\s*(?:show\s+)?(?:stats|statistics)(?:\s+(?:for\s+)?(\S+))?\s*[?.]?\s*$`)
	whoPattern     = regexp.MustCompile(`(?i)^\s*who\s+(consumed|received)\s+(?:the\s+)?(most|least)\s*[?.]?\s*$`)
	balancePattern = regexp.MustCompile(`(?i)^\s*who\s+has\s+the\s+(highest|lowest)\s+balance\s*[?.]?\s*$`)
	comparePattern = regexp.MustCompile(`(?i)^\s*compare(?:\s+(?:by\s+)?(\S+))?\s*[?.]?\s*$`)
	recentPattern  = regexp.MustCompile(`(?i)^\s*(?:list\s+|show\s+)?recent(?:\s+transactions)?(?:\s+(\d+))?\s*[?.]?\s*$`)
	clearPattern   = regexp.MustCompile(`(?i)^\s*(?:clear|delete|reset)\s+(?:all\s+(?:my\s+)?(?:data|transactions)|(?:the\s+|my\s+)?ledger|(everything))\s*[.!]?\s*$`)
	trackPattern   = regexp.MustCompile(`(?i)^\s*(?:track|follow|add)\s+(\S+?)(?:\s+to\s+(?:my\s+)?(?:list|collection))?\s*[.!]?\s*$`)
	untrackPattern = regexp.MustCompile(`(?i)^\s*(?:untrack|unfollow|remove)\s+(\S+?)(?:\s+from\s+(?:my\s+)?(?:list|collection))?\s*[.!]?\s*$`)
	trackedPattern = regexp.MustCompile(`(?i)^\s*(?:(?:list|show)\s+(?:my\s+)?(?:tracked(?:\s+entities)?|collections?)|what\s+am\s+i\s+tracking)\s*[?.]?\s*$`)
)

// extract applies the deterministic rules. ok is false when no rule matches
// cleanly, in which case the message goes to the oracle.
func extract(text string, entities core.EntitySet) (Intent, bool) {
	if in, ok := extractRecord(text, entities); ok {
		return in, true
	}
	return extractCommand(text, entities)
}

func extractRecord(text string, entities core.EntitySet) (Intent, bool) {
	m := recordPattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	entity, ok := entities.Canonical(m[1])
	if !ok {
		return Intent{}, false
	}

	kind := core.Consumed
	if strings.HasPrefix(strings.ToLower(m[2]), "receiv") {
		kind = core.Received
	}

	if groupedAmount.MatchString(m[3]) {
		return Intent{}, false
	}
	// A second entity where the unit goes is two records, not one.
	if _, named := entities.Canonical(m[4]); named {
		return Intent{}, false
	}

	amount, err := core.ParseAmount(m[3])
	if err != nil {
		return Intent{}, false
	}

	desc := m[5]
	if desc == "" {
		desc = m[6]
	}

	return Intent{
		Kind:        KindRecordTransaction,
		Entity:      entity,
		TxKind:      kind,
		Amount:      amount,
		Description: strings.TrimSpace(desc),
		Source:      SourceRule,
	}, true
}

func extractCommand(text string, entities core.EntitySet) (Intent, bool) {
	if helpPattern.MatchString(text) {
		return Intent{Kind: KindHelp, Source: SourceRule}, true
	}

	if m := statsPattern.FindStringSubmatch(text); m != nil {
		in := Intent{Kind: KindQueryStatistics, Source: SourceRule}
		switch target := strings.ToLower(m[1]); target {
		case "", "all", "everything":
		default:
			entity, ok := entities.Canonical(target)
			if !ok {
				return Intent{}, false
			}
			in.Entity = entity
		}
		return in, true
	}

	if m := whoPattern.FindStringSubmatch(text); m != nil {
		metric := core.MetricConsumed
		if strings.EqualFold(m[1], "received") {
			metric = core.MetricReceived
		}
		return Intent{Kind: KindCompareEntities, Metric: metric, Source: SourceRule}, true
	}

	if balancePattern.MatchString(text) {
		return Intent{Kind: KindCompareEntities, Metric: core.MetricBalance, Source: SourceRule}, true
	}

	if m := comparePattern.FindStringSubmatch(text); m != nil {
		metric := core.MetricConsumed
		if m[1] != "" {
			parsed, err := core.ParseMetric(m[1])
			if err != nil {
				return Intent{}, false
			}
			metric = parsed
		}
		return Intent{Kind: KindCompareEntities, Metric: metric, Source: SourceRule}, true
	}

	if m := recentPattern.FindStringSubmatch(text); m != nil {
		limit := DefaultLimit
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > MaxLimit {
				return Intent{}, false
			}
			limit = n
		}
		return Intent{Kind: KindListRecent, Limit: limit, Source: SourceRule}, true
	}

	if m := clearPattern.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindClearLedger, IncludeTracked: m[1] != "", Source: SourceRule}, true
	}

	if trackedPattern.MatchString(text) {
		return Intent{Kind: KindListTracked, Source: SourceRule}, true
	}

	if m := trackPattern.FindStringSubmatch(text); m != nil {
		return entityCommand(KindTrackEntity, m[1], entities)
	}
	if m := untrackPattern.FindStringSubmatch(text); m != nil {
		return entityCommand(KindUntrackEntity, m[1], entities)
	}

	return Intent{}, false
}

func entityCommand(kind Kind, name string, entities core.EntitySet) (Intent, bool) {
	entity, ok := entities.Canonical(name)
	if !ok {
		return Intent{}, false
	}
	return Intent{Kind: kind, Entity: entity, Source: SourceRule}, true
}
