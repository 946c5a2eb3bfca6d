// Package dispatch executes resolved intents against the ledger and renders
// the reply in the caller's language.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"tally/internal/core"
	"tally/internal/intent"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/stats"
)

// Resolver is implemented by *intent.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, req intent.Request) intent.Intent
}

type Request struct {
	Text     string
	OwnerID  string
	Language string
}

// Response carries the rendered text plus the structured result of the intent.
type Response struct {
	Text          string            `json:"text"`
	Intent        intent.Kind       `json:"intent"`
	Reason        string            `json:"reason,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Statistics    []StatisticsView  `json:"statistics,omitempty"`
	Metric        core.Metric       `json:"metric,omitempty"`
	Ranking       []RankingView     `json:"ranking,omitempty"`
	Transactions  []TransactionView `json:"transactions,omitempty"`
	Cleared       *int              `json:"cleared,omitempty"`
	// Tracked is the owner's entity list after a tracking intent.
	Tracked        []string `json:"tracked,omitempty"`
	ClearedTracked *int     `json:"cleared_tracked,omitempty"`
}

type StatisticsView struct {
	Entity           string     `json:"entity"`
	TotalConsumed    float64    `json:"total_consumed"`
	TotalReceived    float64    `json:"total_received"`
	NetBalance       float64    `json:"net_balance"`
	TransactionCount int        `json:"transaction_count"`
	LastTransaction  *time.Time `json:"last_transaction,omitempty"`
}

type RankingView struct {
	Entity string  `json:"entity"`
	Value  float64 `json:"value"`
}

type TransactionView struct {
	ID          string    `json:"id"`
	Entity      string    `json:"entity"`
	Kind        core.Kind `json:"kind"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewStatisticsView(s core.EntityStatistics) StatisticsView {
	v := StatisticsView{
		Entity:           s.Entity,
		TotalConsumed:    s.TotalConsumed.Float(),
		TotalReceived:    s.TotalReceived.Float(),
		NetBalance:       s.NetBalance.Float(),
		TransactionCount: s.TransactionCount,
	}
	if !s.LastTransaction.IsZero() {
		last := s.LastTransaction
		v.LastTransaction = &last
	}
	return v
}

func NewRankingView(r core.Ranking) RankingView {
	return RankingView{Entity: r.Entity, Value: r.Value.Float()}
}

func NewTransactionView(t core.Transaction) TransactionView {
	return TransactionView{
		ID:          t.ID,
		Entity:      t.Entity,
		Kind:        t.Kind,
		Amount:      t.Amount.Float(),
		Description: t.Description,
		Timestamp:   t.Timestamp,
	}
}

type Dispatcher struct {
	resolver        Resolver
	store           ledger.Store
	stats           *stats.Aggregator
	entities        core.EntitySet
	defaultLanguage string
	metrics         *metrics.Metrics
	logger          *log.Logger
	structured      *log.StructuredLogger
}

type Config struct {
	Entities        core.EntitySet
	DefaultLanguage string
	Metrics         *metrics.Metrics
	Logger          *log.Logger
}

func New(resolver Resolver, store ledger.Store, cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Wrap(nil, log.ComponentDispatch)
	}
	logger = logger.WithComponent(log.ComponentDispatch)
	return &Dispatcher{
		resolver:        resolver,
		store:           store,
		stats:           stats.NewAggregator(store, cfg.Entities),
		entities:        cfg.Entities,
		defaultLanguage: cfg.DefaultLanguage,
		metrics:         cfg.Metrics,
		logger:          logger,
		structured:      log.NewStructuredLogger(logger),
	}
}

// Aggregator exposes the statistics engine bound to the same store.
func (d *Dispatcher) Aggregator() *stats.Aggregator {
	return d.stats
}

// Handle resolves req.Text and executes the intent. Validation problems and
// unknown intents are answered in Response.Text; only storage failures and an
// invalid owner come back as errors.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Response, error) {
	if err := core.ValidateOwner(req.OwnerID); err != nil {
		return Response{}, err
	}
	lang := NormalizeLanguage(req.Language, d.defaultLanguage)
	c := catalogFor(lang)

	start := time.Now()
	in := d.resolver.Resolve(ctx, intent.Request{Text: req.Text, OwnerID: req.OwnerID, Language: lang})
	if in.Source == intent.SourceOracle {
		d.metrics.OracleLatency(time.Since(start))
	}
	d.metrics.Intent(string(in.Kind), string(in.Source))

	d.logger.DebugContext(ctx, "Dispatching intent",
		log.FieldOwnerID, req.OwnerID,
		log.FieldIntent, in.Kind,
		log.FieldIntentSource, in.Source,
		log.FieldLanguage, lang)

	switch in.Kind {
	case intent.KindRecordTransaction:
		return d.record(ctx, req.OwnerID, in, c)
	case intent.KindQueryStatistics:
		return d.statistics(ctx, req.OwnerID, in, c)
	case intent.KindCompareEntities:
		return d.compare(ctx, req.OwnerID, in, c)
	case intent.KindListRecent:
		return d.recent(ctx, req.OwnerID, in, c)
	case intent.KindClearLedger:
		return d.clear(ctx, req.OwnerID, in, c)
	case intent.KindTrackEntity, intent.KindUntrackEntity:
		return d.track(ctx, req.OwnerID, in, c)
	case intent.KindListTracked:
		return d.listTracked(ctx, req.OwnerID, c)
	case intent.KindHelp:
		return Response{Intent: intent.KindHelp, Text: c.renderHelp(d.entities.Names())}, nil
	default:
		return Response{Intent: intent.KindUnknown, Text: c.unknown, Reason: in.Reason}, nil
	}
}

func (d *Dispatcher) record(ctx context.Context, ownerID string, in intent.Intent, c catalog) (Response, error) {
	tx, err := d.store.Append(ctx, ownerID, in.Entity, in.TxKind, in.Amount, in.Description)
	if core.IsValidation(err) {
		return Response{Intent: intent.KindRecordTransaction, Text: c.renderValidation(err, d.entities.Names()), Reason: err.Error()}, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("record transaction: %w", err)
	}

	d.structured.LogTransactionRecorded(ctx, ownerID, tx.ID, tx.Entity, tx.Kind.String(), tx.Amount.String())

	resp := Response{Intent: intent.KindRecordTransaction, TransactionID: tx.ID}
	current, err := d.stats.Statistics(ctx, ownerID, core.Filter{Entity: tx.Entity})
	if err != nil {
		// The write is durable; only the summary is missing.
		d.logger.WarnContext(ctx, "Statistics after record failed",
			log.FieldOwnerID, ownerID,
			log.FieldTransactionID, tx.ID,
			log.FieldError, err)
		resp.Text = c.renderRecorded(tx, nil)
		return resp, nil
	}
	st := current[tx.Entity]
	resp.Text = c.renderRecorded(tx, &st)
	resp.Statistics = []StatisticsView{NewStatisticsView(st)}
	return resp, nil
}

func (d *Dispatcher) statistics(ctx context.Context, ownerID string, in intent.Intent, c catalog) (Response, error) {
	result, err := d.stats.Statistics(ctx, ownerID, core.Filter{Entity: in.Entity})
	if err != nil {
		return Response{}, fmt.Errorf("query statistics: %w", err)
	}
	rows := stats.Ordered(result)

	resp := Response{Intent: intent.KindQueryStatistics, Text: c.renderStatistics(rows)}
	if in.Entity != "" && len(rows) == 1 && rows[0].TransactionCount == 0 {
		resp.Text = c.noTransactions
	}
	for _, s := range rows {
		resp.Statistics = append(resp.Statistics, NewStatisticsView(s))
	}
	return resp, nil
}

func (d *Dispatcher) compare(ctx context.Context, ownerID string, in intent.Intent, c catalog) (Response, error) {
	ranking, err := d.stats.Compare(ctx, ownerID, in.Metric)
	if err != nil {
		return Response{}, fmt.Errorf("compare entities: %w", err)
	}
	resp := Response{Intent: intent.KindCompareEntities, Metric: in.Metric, Text: c.renderRanking(in.Metric, ranking)}
	for _, r := range ranking {
		resp.Ranking = append(resp.Ranking, NewRankingView(r))
	}
	return resp, nil
}

func (d *Dispatcher) recent(ctx context.Context, ownerID string, in intent.Intent, c catalog) (Response, error) {
	txs, err := d.store.Scan(ctx, ownerID, core.Filter{})
	if err != nil {
		return Response{}, fmt.Errorf("list recent: %w", err)
	}
	latest := Latest(txs, in.Limit)

	resp := Response{Intent: intent.KindListRecent, Text: c.renderRecent(latest)}
	for _, t := range latest {
		resp.Transactions = append(resp.Transactions, NewTransactionView(t))
	}
	return resp, nil
}

func (d *Dispatcher) clear(ctx context.Context, ownerID string, in intent.Intent, c catalog) (Response, error) {
	n, err := d.store.Clear(ctx, ownerID)
	if err != nil {
		return Response{}, fmt.Errorf("clear ledger: %w", err)
	}
	d.logger.InfoContext(ctx, "Ledger cleared",
		log.FieldOwnerID, ownerID,
		log.FieldCount, n,
		log.FieldOperation, log.OpClear)
	resp := Response{Intent: intent.KindClearLedger, Text: fmt.Sprintf(c.cleared, n), Cleared: &n}
	if !in.IncludeTracked {
		return resp, nil
	}

	m, err := d.store.ClearTracked(ctx, ownerID)
	if err != nil {
		return Response{}, fmt.Errorf("clear tracked entities: %w", err)
	}
	resp.Text = fmt.Sprintf(c.clearedAll, n, m)
	resp.ClearedTracked = &m
	return resp, nil
}

func (d *Dispatcher) track(ctx context.Context, ownerID string, in intent.Intent, c catalog) (Response, error) {
	var (
		changed bool
		err     error
		text    string
	)
	if in.Kind == intent.KindTrackEntity {
		changed, err = d.store.Track(ctx, ownerID, in.Entity)
		text = c.alreadyTracked
		if changed {
			text = c.tracking
		}
	} else {
		changed, err = d.store.Untrack(ctx, ownerID, in.Entity)
		text = c.notTracked
		if changed {
			text = c.untracked
		}
	}
	if core.IsValidation(err) {
		return Response{Intent: in.Kind, Text: c.renderValidation(err, d.entities.Names()), Reason: err.Error()}, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", in.Kind, err)
	}

	names, err := d.store.Tracked(ctx, ownerID)
	if err != nil {
		return Response{}, fmt.Errorf("list tracked entities: %w", err)
	}
	return Response{Intent: in.Kind, Text: fmt.Sprintf(text, in.Entity), Tracked: names}, nil
}

func (d *Dispatcher) listTracked(ctx context.Context, ownerID string, c catalog) (Response, error) {
	names, err := d.store.Tracked(ctx, ownerID)
	if err != nil {
		return Response{}, fmt.Errorf("list tracked entities: %w", err)
	}
	return Response{Intent: intent.KindListTracked, Text: c.renderTracked(names), Tracked: names}, nil
}

// Latest returns the last limit transactions of an ascending scan, newest first.
func Latest(txs []core.Transaction, limit int) []core.Transaction {
	if limit <= 0 {
		limit = intent.DefaultLimit
	}
	if len(txs) > limit {
		txs = txs[len(txs)-limit:]
	}
	out := make([]core.Transaction, len(txs))
	for i, t := range txs {
		out[len(txs)-1-i] = t
	}
	return out
}
