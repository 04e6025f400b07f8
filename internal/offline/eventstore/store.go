// Package eventstore is the local durable cache of every row needed to compute
// stock and render history without network access.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stallpos/internal/core/entity"
)

// ErrUnavailable is returned by writes when the local store could not be initialised.
var ErrUnavailable = errors.New("local event store unavailable")

// Store holds server rows (and optimistic local rows) per record kind.
//
// Upsert is idempotent: writing the same record twice leaves one row. GetAll
// returns rows in first-insertion order; callers sort when chronology matters.
type Store interface {
	Upsert(ctx context.Context, rec entity.Record) error
	GetAll(ctx context.Context, kind entity.Kind) ([]entity.Record, error)
	Delete(ctx context.Context, kind entity.Kind, id string) error

	// Replace swaps every row of kind for recs in one step (server snapshot wins).
	Replace(ctx context.Context, kind entity.Kind, recs []entity.Record) error

	// Clear wipes all local state, including the last sync time.
	Clear(ctx context.Context) error

	LastSync(ctx context.Context) (time.Time, error)
	SetLastSync(ctx context.Context, at time.Time) error

	Close() error
}

// All returns every row of kind as its concrete type.
func All[T entity.Record](ctx context.Context, s Store, kind entity.Kind) ([]T, error) {
	recs, err := s.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("%s row %s has type %T", kind, r.RecordID(), r)
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one row of kind by id.
func Get[T entity.Record](ctx context.Context, s Store, kind entity.Kind, id string) (T, bool, error) {
	var zero T
	rows, err := All[T](ctx, s, kind)
	if err != nil {
		return zero, false, err
	}
	for _, r := range rows {
		if r.RecordID() == id {
			return r, true, nil
		}
	}
	return zero, false, nil
}

// Encode serialises a record for storage.
func Encode(rec entity.Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", rec.RecordKind(), rec.RecordID(), err)
	}
	return b, nil
}

// Decode restores a record of kind. Rows always come back as value types.
func Decode(kind entity.Kind, payload []byte) (entity.Record, error) {
	var (
		rec entity.Record
		err error
	)
	switch kind {
	case entity.KindItems:
		var v entity.Item
		err = json.Unmarshal(payload, &v)
		rec = v
	case entity.KindSales:
		var v entity.Sale
		err = json.Unmarshal(payload, &v)
		rec = v
	case entity.KindDistributions:
		var v entity.StockDistribution
		err = json.Unmarshal(payload, &v)
		rec = v
	case entity.KindAdditions:
		var v entity.StockAddition
		err = json.Unmarshal(payload, &v)
		rec = v
	case entity.KindWithdrawals:
		var v entity.Withdrawal
		err = json.Unmarshal(payload, &v)
		rec = v
	default:
		return nil, fmt.Errorf("decode: unknown record kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return rec, nil
}
