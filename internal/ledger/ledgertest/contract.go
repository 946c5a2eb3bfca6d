// Package ledgertest holds the behavioural tests every ledger backend must pass.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Entities is the entity set the contract tests expect the backend to be built with.
var Entities = core.NewEntitySet([]string{"A", "B", "C", "D"})

// RunContract exercises a backend created by newStore. Each subtest gets a fresh store.
func RunContract(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Helper()

	t.Run("append then scan round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tx, err := s.Append(ctx, "owner-x", "a", core.Consumed, core.Units(100), "morning batch")
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if tx.ID == "" {
			t.Fatalf("expected generated id")
		}
		got, err := s.Scan(ctx, "owner-x", core.Filter{})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(got))
		}
		g := got[0]
		if g.ID != tx.ID || g.OwnerID != "owner-x" || g.Entity != "A" || g.Kind != core.Consumed ||
			g.Amount != core.Units(100) || g.Description != "morning batch" {
			t.Fatalf("unexpected transaction: %+v", g)
		}
		if !g.Timestamp.Equal(tx.Timestamp) {
			t.Fatalf("timestamp changed: %v vs %v", g.Timestamp, tx.Timestamp)
		}
	})

	t.Run("validation rejects bad input without writing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		bad := []struct {
			owner, entity string
			kind          core.Kind
			amount        core.Amount
			want          error
		}{
			{"o", "A", core.Consumed, core.Amount{Hundredths: -500}, core.ErrInvalidAmount},
			{"o", "E", core.Consumed, core.Units(1), core.ErrUnknownEntity},
			{"o", "A", core.Kind("spent"), core.Units(1), core.ErrInvalidKind},
			{"", "A", core.Received, core.Units(1), core.ErrEmptyOwner},
		}
		for i, tc := range bad {
			_, err := s.Append(ctx, tc.owner, tc.entity, tc.kind, tc.amount, "")
			if !errors.Is(err, tc.want) || !core.IsValidation(err) {
				t.Fatalf("case %d: expected validation error %v, got %v", i, tc.want, err)
			}
		}
		got, err := s.Scan(ctx, "o", core.Filter{})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no writes, got %d", len(got))
		}
	})

	t.Run("zero amount is accepted", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Append(context.Background(), "o", "B", core.Received, core.Amount{}, ""); err != nil {
			t.Fatalf("expected zero amount to be valid, got %v", err)
		}
	})

	t.Run("scan is ordered and filtered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var ids []string
		inputs := []struct {
			entity string
			kind   core.Kind
		}{{"A", core.Consumed}, {"B", core.Received}, {"A", core.Received}, {"C", core.Consumed}}
		for _, in := range inputs {
			tx, err := s.Append(ctx, "o", in.entity, in.kind, core.Units(1), "")
			if err != nil {
				t.Fatalf("append: %v", err)
			}
			ids = append(ids, tx.ID)
		}
		all, err := s.Scan(ctx, "o", core.Filter{})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(all) != len(ids) {
			t.Fatalf("expected %d, got %d", len(ids), len(all))
		}
		for i := range all {
			if all[i].ID != ids[i] {
				t.Fatalf("position %d: expected %s, got %s", i, ids[i], all[i].ID)
			}
			if i > 0 && all[i].Timestamp.Before(all[i-1].Timestamp) {
				t.Fatalf("scan not ascending at %d", i)
			}
		}

		onlyA, _ := s.Scan(ctx, "o", core.Filter{Entity: "a"})
		if len(onlyA) != 2 {
			t.Fatalf("expected 2 for entity A, got %d", len(onlyA))
		}
		received, _ := s.Scan(ctx, "o", core.Filter{Kind: core.Received})
		if len(received) != 2 {
			t.Fatalf("expected 2 received, got %d", len(received))
		}
		future, _ := s.Scan(ctx, "o", core.Filter{Since: time.Now().Add(time.Hour)})
		if len(future) != 0 {
			t.Fatalf("expected nothing since the future, got %d", len(future))
		}
		past, _ := s.Scan(ctx, "o", core.Filter{Until: all[0].Timestamp.Add(-time.Hour)})
		if len(past) != 0 {
			t.Fatalf("expected nothing before the first transaction, got %d", len(past))
		}
		window, _ := s.Scan(ctx, "o", core.Filter{Since: all[0].Timestamp, Until: all[len(all)-1].Timestamp})
		if len(window) != len(all) {
			t.Fatalf("inclusive window should return all, got %d", len(window))
		}
		if _, err := s.Scan(ctx, "o", core.Filter{Entity: "Z"}); !errors.Is(err, core.ErrUnknownEntity) {
			t.Fatalf("expected ErrUnknownEntity for unknown filter entity, got %v", err)
		}
	})

	t.Run("owners are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Append(ctx, "x", "A", core.Consumed, core.Units(5), ""); err != nil {
			t.Fatalf("append: %v", err)
		}
		tx, err := s.Append(ctx, "y", "B", core.Received, core.Units(7), "")
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		gotY, _ := s.Scan(ctx, "y", core.Filter{})
		if len(gotY) != 1 || gotY[0].OwnerID != "y" {
			t.Fatalf("owner y sees %+v", gotY)
		}
		if _, err := s.Get(ctx, "x", tx.ID); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("owner x must not read owner y's transaction, got %v", err)
		}
		if got, err := s.Get(ctx, "y", tx.ID); err != nil || got.ID != tx.ID {
			t.Fatalf("get own transaction: %+v %v", got, err)
		}
	})

	t.Run("clear is scoped to one owner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			if _, err := s.Append(ctx, "x", "A", core.Consumed, core.Units(1), ""); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		if _, err := s.Append(ctx, "y", "A", core.Consumed, core.Units(1), ""); err != nil {
			t.Fatalf("append: %v", err)
		}
		n, err := s.Clear(ctx, "x")
		if err != nil || n != 3 {
			t.Fatalf("clear: n=%d err=%v", n, err)
		}
		if got, _ := s.Scan(ctx, "x", core.Filter{}); len(got) != 0 {
			t.Fatalf("expected empty ledger after clear, got %d", len(got))
		}
		if got, _ := s.Scan(ctx, "y", core.Filter{}); len(got) != 1 {
			t.Fatalf("other owner affected by clear: %d", len(got))
		}
		if n, err := s.Clear(ctx, "x"); err != nil || n != 0 {
			t.Fatalf("second clear: n=%d err=%v", n, err)
		}
	})

	t.Run("concurrent appends are all persisted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const workers = 25
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Append(ctx, "busy", "D", core.Received, core.Units(int64(i)), fmt.Sprintf("w%d", i))
				if err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent append: %v", err)
		}
		got, err := s.Scan(ctx, "busy", core.Filter{})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(got) != workers {
			t.Fatalf("expected %d transactions, got %d", workers, len(got))
		}
	})

	t.Run("clear is all or nothing for concurrent scans", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const n = 20
		for i := 0; i < n; i++ {
			if _, err := s.Append(ctx, "atomic", "B", core.Consumed, core.Units(1), ""); err != nil {
				t.Fatalf("append: %v", err)
			}
		}

		const scanners = 4
		var wg sync.WaitGroup
		seen := make(chan int, scanners*64)
		errs := make(chan error, scanners)
		start := make(chan struct{})
		for i := 0; i < scanners; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 50; j++ {
					got, err := s.Scan(ctx, "atomic", core.Filter{})
					if err != nil {
						errs <- err
						return
					}
					if len(got) != 0 && len(got) != n {
						seen <- len(got)
					}
				}
			}()
		}
		close(start)
		cleared, err := s.Clear(ctx, "atomic")
		wg.Wait()
		close(seen)
		close(errs)
		if err != nil || cleared != n {
			t.Fatalf("clear: n=%d err=%v", cleared, err)
		}
		for err := range errs {
			t.Fatalf("scan during clear: %v", err)
		}
		for partial := range seen {
			t.Fatalf("scan observed a partial ledger of %d transactions", partial)
		}
	})

	t.Run("tracked entities are per owner and canonical", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if added, err := s.Track(ctx, "x", "b"); err != nil || !added {
			t.Fatalf("track b: added=%v err=%v", added, err)
		}
		if added, err := s.Track(ctx, "x", "B"); err != nil || added {
			t.Fatalf("second track must be a no-op: added=%v err=%v", added, err)
		}
		if _, err := s.Track(ctx, "x", "A"); err != nil {
			t.Fatalf("track A: %v", err)
		}
		if _, err := s.Track(ctx, "x", "E"); !errors.Is(err, core.ErrUnknownEntity) {
			t.Fatalf("expected ErrUnknownEntity, got %v", err)
		}
		if _, err := s.Track(ctx, "", "A"); !errors.Is(err, core.ErrEmptyOwner) {
			t.Fatalf("expected ErrEmptyOwner, got %v", err)
		}

		got, err := s.Tracked(ctx, "x")
		if err != nil || len(got) != 2 || got[0] != "A" || got[1] != "B" {
			t.Fatalf("tracked for x: %v %v", got, err)
		}
		if other, _ := s.Tracked(ctx, "y"); len(other) != 0 {
			t.Fatalf("owner y sees %v", other)
		}

		if removed, err := s.Untrack(ctx, "x", "a"); err != nil || !removed {
			t.Fatalf("untrack a: removed=%v err=%v", removed, err)
		}
		if removed, err := s.Untrack(ctx, "x", "C"); err != nil || removed {
			t.Fatalf("untrack of an untracked entity: removed=%v err=%v", removed, err)
		}

		// Tracking never gates appends, and clearing transactions keeps the list.
		if _, err := s.Append(ctx, "x", "D", core.Received, core.Units(1), ""); err != nil {
			t.Fatalf("append for untracked entity: %v", err)
		}
		if _, err := s.Clear(ctx, "x"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if got, _ := s.Tracked(ctx, "x"); len(got) != 1 || got[0] != "B" {
			t.Fatalf("clear touched tracked entities: %v", got)
		}
		if n, err := s.ClearTracked(ctx, "x"); err != nil || n != 1 {
			t.Fatalf("clear tracked: n=%d err=%v", n, err)
		}
		if got, _ := s.Tracked(ctx, "x"); len(got) != 0 {
			t.Fatalf("expected empty list, got %v", got)
		}
	})
}
