package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEntitySet(t *testing.T) {
	s := NewEntitySet([]string{"A", " b ", "a", "", "Coffee"})
	if got := s.Names(); len(got) != 3 || got[0] != "A" || got[1] != "b" || got[2] != "Coffee" {
		t.Fatalf("unexpected names: %v", got)
	}
	if c, ok := s.Canonical("coffee"); !ok || c != "Coffee" {
		t.Fatalf("expected canonical Coffee, got %q ok=%v", c, ok)
	}
	if _, err := s.Resolve("E"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" Consumed "); err != nil || k != Consumed {
		t.Fatalf("expected consumed, got %q err=%v", k, err)
	}
	if _, err := ParseKind("spent"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if err := Kind("").Validate(); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestParseMetric(t *testing.T) {
	for in, want := range map[string]Metric{"consumed": MetricConsumed, "Receipts": MetricReceived, "net": MetricBalance} {
		if got, err := ParseMetric(in); err != nil || got != want {
			t.Fatalf("%q: expected %q, got %q err=%v", in, want, got, err)
		}
	}
	if _, err := ParseMetric("volume"); !errors.Is(err, ErrInvalidMetric) {
		t.Fatalf("expected ErrInvalidMetric, got %v", err)
	}
}

func TestFilterMatches(t *testing.T) {
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tx := Transaction{Entity: "A", Kind: Consumed, Timestamp: ts}
	cases := []struct {
		f  Filter
		ok bool
	}{
		{Filter{}, true},
		{Filter{Entity: "A"}, true},
		{Filter{Entity: "B"}, false},
		{Filter{Kind: Received}, false},
		{Filter{Since: ts, Until: ts}, true},
		{Filter{Since: ts.Add(time.Second)}, false},
		{Filter{Until: ts.Add(-time.Second)}, false},
	}
	for i, tc := range cases {
		if got := tc.f.Matches(tx); got != tc.ok {
			t.Fatalf("case %d: expected %v, got %v", i, tc.ok, got)
		}
	}
}

func TestValidateOwnerAndDescription(t *testing.T) {
	if err := ValidateOwner("  "); !errors.Is(err, ErrEmptyOwner) {
		t.Fatalf("expected ErrEmptyOwner, got %v", err)
	}
	if err := ValidateDescription(strings.Repeat("x", MaxDescriptionLength)); err != nil {
		t.Fatalf("expected ok at limit, got %v", err)
	}
	if err := ValidateDescription(strings.Repeat("x", MaxDescriptionLength+1)); !errors.Is(err, ErrDescriptionTooLong) {
		t.Fatalf("expected ErrDescriptionTooLong, got %v", err)
	}
}
