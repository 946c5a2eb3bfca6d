// Package ledger defines the owner-scoped transaction ledger contract
// shared by the memory and SQLite backends.
package ledger

import (
	"tally/internal/core"
)

// Draft is a transaction that passed validation but has no id or timestamp yet.
type Draft struct {
	OwnerID     string
	Entity      string
	Kind        core.Kind
	Amount      core.Amount
	Description string
}

// Validate checks every append argument against the entity set and returns the
// canonicalized draft. Backends call it before touching storage.
func Validate(entities core.EntitySet, ownerID, entity string, kind core.Kind, amount core.Amount, description string) (Draft, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return Draft{}, err
	}
	canonical, err := entities.Resolve(entity)
	if err != nil {
		return Draft{}, err
	}
	if err := kind.Validate(); err != nil {
		return Draft{}, err
	}
	if err := amount.Validate(); err != nil {
		return Draft{}, err
	}
	if err := core.ValidateDescription(description); err != nil {
		return Draft{}, err
	}
	return Draft{
		OwnerID:     ownerID,
		Entity:      canonical,
		Kind:        kind,
		Amount:      amount,
		Description: description,
	}, nil
}

// CanonicalFilter resolves the filter's entity to its configured spelling.
func CanonicalFilter(entities core.EntitySet, f core.Filter) (core.Filter, error) {
	if f.Entity != "" {
		c, err := entities.Resolve(f.Entity)
		if err != nil {
			return f, err
		}
		f.Entity = c
	}
	if f.Kind != "" {
		if err := f.Kind.Validate(); err != nil {
			return f, err
		}
	}
	return f, nil
}

// ValidateTracked checks the owner and resolves entity for the Tracker calls.
func ValidateTracked(entities core.EntitySet, ownerID, entity string) (string, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return "", err
	}
	return entities.Resolve(entity)
}
