package google

import (
	"testing"
	"time"

	"tally/internal/core"
)

func TestTransactionRow(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	row := transactionRow(core.Transaction{
		ID:          "id-1",
		OwnerID:     "owner",
		Entity:      "A",
		Kind:        core.Consumed,
		Amount:      core.Amount{Hundredths: 1250},
		Description: "=SUM(A1)",
		Timestamp:   ts,
	})

	if len(row) != len(headers) {
		t.Fatalf("expected %d columns, got %d", len(headers), len(row))
	}
	if row[colTimestamp] != "2025-03-04T04:06:07Z" {
		t.Fatalf("timestamp must be UTC RFC3339, got %v", row[colTimestamp])
	}
	if row[colAmount] != 12.5 {
		t.Fatalf("amount must be numeric, got %#v", row[colAmount])
	}
	if row[colKind] != "consumed" || row[colEntity] != "A" || row[colOwner] != "owner" {
		t.Fatalf("unexpected row %v", row)
	}
	if row[colDescription] != "=SUM(A1)" || row[colID] != "id-1" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestOwnerRowIndexes(t *testing.T) {
	values := [][]interface{}{
		headerRow(),
		{"2025-01-01T00:00:00Z", "alice", "A", "consumed", 1.0, "", "1"},
		{"2025-01-01T00:00:00Z", "bob", "B", "received", 2.0, "", "2"},
		{"2025-01-01T00:00:00Z", "alice", "C", "consumed", 3.0, "", "3"},
		{},
		{"2025-01-01T00:00:00Z", " alice ", "D", "consumed", 4.0},
	}

	got := ownerRowIndexes(values, "alice")
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if got := ownerRowIndexes(values, "owner_id"); len(got) != 0 {
		t.Fatalf("header row must never match, got %v", got)
	}
	if got := ownerRowIndexes(nil, "alice"); len(got) != 0 {
		t.Fatalf("expected no rows, got %v", got)
	}
}

func TestDeleteRowRequestsBottomUp(t *testing.T) {
	reqs := deleteRowRequests(42, []int{1, 7, 3})
	want := []int64{7, 3, 1}
	if len(reqs) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(reqs))
	}
	for i, r := range reqs {
		rng := r.DeleteDimension.Range
		if rng.SheetId != 42 || rng.Dimension != "ROWS" {
			t.Fatalf("unexpected range %+v", rng)
		}
		if rng.StartIndex != want[i] || rng.EndIndex != want[i]+1 {
			t.Fatalf("request %d: expected row %d, got %d..%d", i, want[i], rng.StartIndex, rng.EndIndex)
		}
	}
}

func TestIDsFromColumn(t *testing.T) {
	ids := idsFromColumn([][]interface{}{{"id"}, {"a"}, {}, {" b "}, {""}})
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	for _, id := range []string{"a", "b"} {
		if _, ok := ids[id]; !ok {
			t.Fatalf("missing id %q in %v", id, ids)
		}
	}
}
