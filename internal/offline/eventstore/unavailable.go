package eventstore

import (
	"context"
	"fmt"
	"time"

	"stallpos/internal/core/entity"
)

// Unavailable stands in for a store that failed to initialise. Reads see no
// offline data; writes fail loudly so nothing is silently lost.
type Unavailable struct {
	Cause error
}

var _ Store = Unavailable{}

func (u Unavailable) err() error {
	if u.Cause != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, u.Cause)
	}
	return ErrUnavailable
}

func (u Unavailable) Upsert(context.Context, entity.Record) error { return u.err() }

func (u Unavailable) GetAll(context.Context, entity.Kind) ([]entity.Record, error) {
	return nil, nil
}

func (u Unavailable) Delete(context.Context, entity.Kind, string) error { return u.err() }

func (u Unavailable) Replace(context.Context, entity.Kind, []entity.Record) error {
	return u.err()
}

func (u Unavailable) Clear(context.Context) error { return u.err() }

func (u Unavailable) LastSync(context.Context) (time.Time, error) { return time.Time{}, nil }

func (u Unavailable) SetLastSync(context.Context, time.Time) error { return u.err() }

func (u Unavailable) Close() error { return nil }
