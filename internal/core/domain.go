package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Consumed Kind = "consumed"
	Received Kind = "received"
)

// MaxDescriptionLength bounds the free-text description of a transaction.
const MaxDescriptionLength = 200

type (
	// Kind tells whether an entity consumed or received a quantity.
	Kind string

	Transaction struct {
		ID          string
		OwnerID     string
		Entity      string
		Kind        Kind
		Amount      Amount
		Description string
		Timestamp   time.Time
	}

	// Filter narrows a ledger scan. Zero values mean "no constraint".
	// Since and Until are inclusive.
	Filter struct {
		Entity string
		Kind   Kind
		Since  time.Time
		Until  time.Time
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnknownEntity      = errors.New("unknown entity")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrInvalidMetric      = errors.New("invalid metric")
	ErrEmptyOwner         = errors.New("empty owner id")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)

	// ErrStorage marks failures of the durable backend. Callers may retry.
	ErrStorage = errors.New("storage failure")
	// ErrAmountOverflow means a running total no longer fits an Amount.
	ErrAmountOverflow = errors.New("amount overflow")
)

// ParseKind accepts the canonical kind names, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Consumed:
		return Consumed, nil
	case Received:
		return Received, nil
	}
	return "", &ValidationError{Field: "kind", Value: s, Err: ErrInvalidKind}
}

func (k Kind) Validate() error {
	switch k {
	case Consumed, Received:
		return nil
	}
	return &ValidationError{Field: "kind", Value: string(k), Err: ErrInvalidKind}
}

func (k Kind) String() string {
	return string(k)
}

// Matches reports whether t satisfies every constraint set on f.
// Entity comparison is exact; callers canonicalize before filtering.
func (f Filter) Matches(t Transaction) bool {
	if f.Entity != "" && t.Entity != f.Entity {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && t.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && t.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// ValidateOwner rejects blank owner ids.
func ValidateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return &ValidationError{Field: "owner_id", Err: ErrEmptyOwner}
	}
	return nil
}

// ValidateDescription enforces the description length limit.
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	return nil
}
