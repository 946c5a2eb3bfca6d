package http

import (
	"context"
	"net/http"
	"time"

	"tally/internal/core"
	"tally/internal/dispatch"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/stats"
)

type statisticsResponse struct {
	Statistics []dispatch.StatisticsView `json:"statistics"`
}

type compareResponse struct {
	Metric  core.Metric            `json:"metric"`
	Ranking []dispatch.RankingView `json:"ranking"`
	Most    string                 `json:"most,omitempty"`
	Least   string                 `json:"least,omitempty"`
}

type transactionsResponse struct {
	Transactions []dispatch.TransactionView `json:"transactions"`
}

type clearResponse struct {
	Cleared        int  `json:"cleared"`
	ClearedTracked *int `json:"cleared_tracked,omitempty"`
}

type entitiesResponse struct {
	Configured []string `json:"configured"`
	Tracked    []string `json:"tracked"`
	Changed    *bool    `json:"changed,omitempty"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.readiness.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ServiceUnavailableError("not ready").Write(w)
			return
		}
	}
	NewJSONResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

// handleMessage runs free text through the dispatcher.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	owner, err := ParseOwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	msg, err := ParseMessageRequest(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	lang := msg.Language
	if lang == "" {
		lang = s.defaultLanguage
	}
	resp, err := s.dispatcher.Handle(r.Context(), dispatch.Request{
		Text:     msg.Text,
		OwnerID:  owner,
		Language: lang,
	})
	if err != nil {
		s.writeError(w, r, "Message dispatch failed", err, log.OpDispatch)
		return
	}
	NewJSONResponse().JSON(resp).Write(w)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	owner, err := ParseOwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	filter, err := ParseStatisticsQuery(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	result, err := s.stats.Statistics(r.Context(), owner, filter)
	if err != nil {
		s.writeError(w, r, "Statistics query failed", err, log.OpScan)
		return
	}
	out := statisticsResponse{Statistics: []dispatch.StatisticsView{}}
	for _, st := range stats.Ordered(result) {
		out.Statistics = append(out.Statistics, dispatch.NewStatisticsView(st))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	owner, err := ParseOwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	metric, err := ParseMetric(r.URL.Query())
	if err != nil {
		ErrorResponseFor(err).Write(w)
		return
	}

	ranking, err := s.stats.Compare(r.Context(), owner, metric)
	if err != nil {
		s.writeError(w, r, "Entity comparison failed", err, log.OpScan)
		return
	}
	out := compareResponse{Metric: metric, Ranking: []dispatch.RankingView{}}
	for _, rk := range ranking {
		out.Ranking = append(out.Ranking, dispatch.NewRankingView(rk))
	}
	if len(ranking) > 0 {
		out.Most = ranking[0].Entity
		out.Least = ranking[len(ranking)-1].Entity
	}
	NewJSONResponse().JSON(out).Write(w)
}

// handleTransactions lists (GET) or clears (DELETE) the owner's ledger.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodDelete); resp != nil {
		resp.Write(w)
		return
	}
	owner, err := ParseOwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	if r.Method == http.MethodDelete {
		s.clearTransactions(w, r, owner)
		return
	}

	q, err := ParseTransactionQuery(r.URL.Query())
	if err != nil {
		if core.IsValidation(err) {
			ErrorResponseFor(err).Write(w)
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}
	filter, err := ledger.CanonicalFilter(s.entities, q.Filter)
	if err != nil {
		ErrorResponseFor(err).Write(w)
		return
	}

	txs, err := s.store.Scan(r.Context(), owner, filter)
	if err != nil {
		s.writeError(w, r, "Transaction scan failed", err, log.OpScan)
		return
	}
	out := transactionsResponse{Transactions: []dispatch.TransactionView{}}
	for _, t := range dispatch.Latest(txs, q.Limit) {
		out.Transactions = append(out.Transactions, dispatch.NewTransactionView(t))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (s *Server) clearTransactions(w http.ResponseWriter, r *http.Request, owner string) {
	includeTracked, err := ParseBoolParam(r.URL.Query(), "include_tracked")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	n, err := s.store.Clear(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, "Ledger clear failed", err, log.OpClear)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger cleared",
		log.FieldOwnerID, owner,
		log.FieldCount, n,
		log.FieldOperation, log.OpClear)

	out := clearResponse{Cleared: n}
	if includeTracked {
		m, err := s.store.ClearTracked(r.Context(), owner)
		if err != nil {
			s.writeError(w, r, "Tracked entities clear failed", err, log.OpClear)
			return
		}
		out.ClearedTracked = &m
	}
	NewJSONResponse().JSON(out).Write(w)
}

// handleEntities lists the configured and tracked entities (GET), tracks one
// (POST) or untracks one (DELETE).
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost, http.MethodDelete); resp != nil {
		resp.Write(w)
		return
	}
	owner, err := ParseOwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	out := entitiesResponse{Configured: s.entities.Names()}
	switch r.Method {
	case http.MethodPost:
		entity, err := ParseEntityRequest(w, r)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		added, err := s.store.Track(r.Context(), owner, entity)
		if err != nil {
			s.writeError(w, r, "Track entity failed", err, log.OpTrack)
			return
		}
		out.Changed = &added
	case http.MethodDelete:
		entity := sanitizeInput(r.URL.Query().Get("entity"))
		if entity == "" {
			BadRequestError("entity is required").Write(w)
			return
		}
		removed, err := s.store.Untrack(r.Context(), owner, entity)
		if err != nil {
			s.writeError(w, r, "Untrack entity failed", err, log.OpTrack)
			return
		}
		out.Changed = &removed
	}

	if out.Tracked, err = s.store.Tracked(r.Context(), owner); err != nil {
		s.writeError(w, r, "Tracked entities query failed", err, log.OpScan)
		return
	}
	NewJSONResponse().JSON(out).Write(w)
}

// writeError logs failures the caller cannot fix and writes the mapped response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, msg string, err error, op string) {
	resp := ErrorResponseFor(err)
	if resp.StatusCode() >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), msg, err, log.ComponentHTTP, op, nil)
	}
	resp.Write(w)
}
