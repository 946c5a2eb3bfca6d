package intent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/log"
)

const DefaultOracleTimeout = 10 * time.Second

// clearKeyword guards clear_ledger: the oracle may only clear a ledger when
// the user literally asked for it.
var clearKeyword = regexp.MustCompile(`(?i)\b(clear|delete|reset|erase|wipe)\b|清除|删除|重置|清空`)

type Resolver struct {
	entities core.EntitySet
	oracle   Oracle
	prompts  PromptTemplates
	timeout  time.Duration
	retries  int
	logger   *log.Logger
}

type Option func(*Resolver)

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithPrompts(p PromptTemplates) Option {
	return func(r *Resolver) {
		if len(p) > 0 {
			r.prompts = p
		}
	}
}

// WithRetries sets how many times a transient oracle failure is retried. Capped at one.
func WithRetries(n int) Option {
	return func(r *Resolver) {
		r.retries = min(max(n, 0), 1)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l.WithComponent(log.ComponentIntent)
		}
	}
}

// NewResolver builds a resolver. oracle may be nil, in which case anything the
// deterministic rules miss resolves to Unknown.
func NewResolver(entities core.EntitySet, oracle Oracle, opts ...Option) *Resolver {
	r := &Resolver{
		entities: entities,
		oracle:   oracle,
		prompts:  DefaultPromptTemplates(),
		timeout:  DefaultOracleTimeout,
		retries:  1,
		logger:   log.Wrap(nil, log.ComponentIntent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: every problem degrades to an Unknown intent with a reason.
func (r *Resolver) Resolve(ctx context.Context, req Request) Intent {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Unknown("empty message", SourceNone)
	}

	if in, ok := extract(text, r.entities); ok {
		r.logger.DebugContext(ctx, "Intent resolved by rule",
			log.FieldIntent, in.Kind,
			log.FieldOwnerID, req.OwnerID)
		return in
	}

	if r.oracle == nil {
		return Unknown("no rule matched and no oracle is configured", SourceNone)
	}

	resp, err := r.ask(ctx, req, text)
	if err != nil {
		r.logger.WarnContext(ctx, "Oracle failed, treating message as unknown",
			log.FieldOwnerID, req.OwnerID,
			log.FieldError, err)
		return Unknown(describeOracleError(err), SourceOracle)
	}

	in := r.fromOracle(resp, text)
	if in.IsUnknown() {
		r.logger.InfoContext(ctx, "Oracle answer rejected",
			log.FieldOwnerID, req.OwnerID,
			log.FieldIntent, resp.Intent,
			log.FieldReason, in.Reason)
	}
	return in
}

func (r *Resolver) ask(ctx context.Context, req Request, text string) (OracleResponse, error) {
	instructions, err := r.prompts.Render(req.Language, r.entities.Names())
	if err != nil {
		return OracleResponse{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	prompt := Prompt{Language: req.Language, Instructions: instructions, Message: text}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var resp OracleResponse
	for attempt := 0; attempt <= r.retries; attempt++ {
		resp, err = r.oracle.Resolve(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return OracleResponse{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, ctx.Err())
		}
		if !errors.Is(err, ErrOracleUnavailable) {
			return OracleResponse{}, err
		}
	}
	return OracleResponse{}, err
}

func describeOracleError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "oracle timed out"
	case errors.Is(err, ErrMalformedResponse):
		return "oracle returned a malformed answer"
	default:
		return "oracle unavailable"
	}
}

// fromOracle checks every field of an untrusted oracle answer.
func (r *Resolver) fromOracle(resp OracleResponse, text string) Intent {
	reject := func(format string, args ...any) Intent {
		return Unknown(fmt.Sprintf(format, args...), SourceOracle)
	}

	kind, ok := ParseKind(strings.ToLower(strings.TrimSpace(resp.Intent)))
	if !ok {
		return reject("unsupported intent %q", resp.Intent)
	}
	if resp.Confidence != nil {
		c := *resp.Confidence
		if math.IsNaN(c) || c < MinConfidence {
			return reject("confidence %.2f below %.2f", c, MinConfidence)
		}
	}

	entity, err := r.oracleEntity(resp)
	if err != nil {
		return reject("%v", err)
	}

	in := Intent{Kind: kind, Source: SourceOracle}
	switch kind {
	case KindRecordTransaction:
		if entity == "" {
			return reject("transaction without an entity")
		}
		txKind, err := core.ParseKind(resp.TransactionType)
		if err != nil {
			return reject("transaction type %q is not consumed or received", resp.TransactionType)
		}
		if resp.Amount == nil {
			return reject("transaction without an amount")
		}
		amount, err := core.AmountFromFloat(*resp.Amount)
		if err != nil {
			return reject("amount %v is not a finite non-negative number", *resp.Amount)
		}
		desc := strings.TrimSpace(resp.Description)
		if err := core.ValidateDescription(desc); err != nil {
			return reject("%v", err)
		}
		in.Entity, in.TxKind, in.Amount, in.Description = entity, txKind, amount, desc

	case KindQueryStatistics:
		in.Entity = entity

	case KindCompareEntities:
		in.Metric = core.MetricConsumed
		if resp.Metric != "" {
			m, err := core.ParseMetric(resp.Metric)
			if err != nil {
				return reject("metric %q is not supported", resp.Metric)
			}
			in.Metric = m
		}

	case KindListRecent:
		in.Limit = DefaultLimit
		if resp.Limit != nil {
			l := *resp.Limit
			if l != math.Trunc(l) || l < 1 || l > MaxLimit {
				return reject("limit %v outside 1..%d", l, MaxLimit)
			}
			in.Limit = int(l)
		}

	case KindClearLedger:
		if !clearKeyword.MatchString(text) {
			return reject("clear requested without an explicit clear keyword")
		}
		in.IncludeTracked = resp.IncludeTracked

	case KindTrackEntity, KindUntrackEntity:
		if entity == "" {
			return reject("%s without an entity", kind)
		}
		in.Entity = entity

	case KindListTracked:

	case KindHelp:

	case KindUnknown:
		return reject("oracle could not classify the message")
	}
	return in
}

// oracleEntity resolves the entity the oracle named, if any, against the
// configured set. Several distinct entities are rejected.
func (r *Resolver) oracleEntity(resp OracleResponse) (string, error) {
	names := make([]string, 0, 1+len(resp.Entities))
	if e := strings.TrimSpace(resp.Entity); e != "" {
		names = append(names, e)
	}
	for _, e := range resp.Entities {
		if e = strings.TrimSpace(e); e != "" {
			names = append(names, e)
		}
	}

	var entity string
	for _, n := range names {
		switch strings.ToLower(n) {
		case "all", "everything":
			continue
		}
		c, ok := r.entities.Canonical(n)
		if !ok {
			return "", fmt.Errorf("entity %q is not tracked", n)
		}
		if entity != "" && entity != c {
			return "", fmt.Errorf("more than one entity named")
		}
		entity = c
	}
	return entity, nil
}
