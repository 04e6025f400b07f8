// Package entity provides core domain entities of the stall inventory ledger.
package entity

import (
	"context"
	"fmt"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// Kind names a collection of records. It doubles as the table name of queued
// operations and of the remote REST resources.
type Kind string

const (
	KindItems         Kind = "items"
	KindSales         Kind = "sales"
	KindDistributions Kind = "distributions"
	KindAdditions     Kind = "additions"
	KindWithdrawals   Kind = "withdrawals"
)

// Kinds returns every record kind in refresh order: items first, events after.
func Kinds() []Kind {
	return []Kind{KindItems, KindAdditions, KindDistributions, KindSales, KindWithdrawals}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// Record is anything the local event store can hold.
type Record interface {
	RecordID() string
	RecordKind() Kind
}

// ItemScoped is implemented by event records that belong to one item.
type ItemScoped interface {
	Record
	ItemRef() string
}
