package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tally/internal/core"
	"tally/internal/dispatch"
	"tally/internal/intent"
	"tally/internal/ledger/memory"
	"tally/internal/log"
)

type failingHandler struct{}

func (failingHandler) Handle(context.Context, dispatch.Request) (dispatch.Response, error) {
	return dispatch.Response{}, core.StorageError("append", errors.New("locked"))
}

func TestRunRecordsAndAnswers(t *testing.T) {
	entities := core.NewEntitySet(core.DefaultEntities)
	store := memory.New(entities)
	d := dispatch.New(intent.NewResolver(entities, nil, intent.WithLogger(log.Discard())), store,
		dispatch.Config{Entities: entities, Logger: log.Discard()})

	in := strings.NewReader("A consumed 12\n\nB received 3\nexit\nA consumed 99\n")
	var out strings.Builder
	if err := run(context.Background(), in, &out, d, "repl", "en"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := strings.Count(out.String(), "Recorded:"); got != 2 {
		t.Fatalf("expected 2 recorded replies, got %d in %q", got, out.String())
	}
	txs, _ := store.Scan(context.Background(), "repl", core.Filter{})
	if len(txs) != 2 {
		t.Fatalf("lines after exit must not run, got %d transactions", len(txs))
	}
}

func TestRunKeepsGoingAfterErrors(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), strings.NewReader("A consumed 1\nA consumed 2\n"), &out, failingHandler{}, "o", ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Count(out.String(), "error: storage failure"); got != 2 {
		t.Fatalf("expected both failures printed, got %q", out.String())
	}
}
