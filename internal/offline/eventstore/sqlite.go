package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stallpos/internal/core/entity"
)

const lastSyncKey = "last_sync"

// localRecord is one cached row. Seq preserves first-insertion order; upserts
// keep the original Seq.
type localRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	Kind      string    `gorm:"not null;uniqueIndex:idx_local_records_kind_id"`
	RecordID  string    `gorm:"not null;uniqueIndex:idx_local_records_kind_id"`
	Payload   []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (localRecord) TableName() string { return "local_records" }

type localMeta struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (localMeta) TableName() string { return "local_meta" }

// SQLiteStore persists the event store in the agent's local database.
type SQLiteStore struct {
	db *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite migrates the store tables and returns the store.
func NewSQLite(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&localRecord{}, &localMeta{}); err != nil {
		return nil, fmt.Errorf("migrate event store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec entity.Record) error {
	payload, err := Encode(rec)
	if err != nil {
		return err
	}
	row := localRecord{
		Kind:      string(rec.RecordKind()),
		RecordID:  rec.RecordID(),
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", rec.RecordKind(), rec.RecordID(), err)
	}
	return nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, kind entity.Kind) ([]entity.Record, error) {
	var rows []localRecord
	err := s.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", kind, err)
	}

	out := make([]entity.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := Decode(kind, r.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, kind entity.Kind, id string) error {
	err := s.db.WithContext(ctx).
		Where("kind = ? AND record_id = ?", string(kind), id).
		Delete(&localRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) Replace(ctx context.Context, kind entity.Kind, recs []entity.Record) error {
	now := time.Now().UTC()
	rows := make([]localRecord, 0, len(recs))
	seen := make(map[string]int, len(recs))
	for _, rec := range recs {
		payload, err := Encode(rec)
		if err != nil {
			return err
		}
		row := localRecord{Kind: string(kind), RecordID: rec.RecordID(), Payload: payload, UpdatedAt: now}
		if i, dup := seen[row.RecordID]; dup {
			rows[i] = row
			continue
		}
		seen[row.RecordID] = len(rows)
		rows = append(rows, row)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ?", string(kind)).Delete(&localRecord{}).Error; err != nil {
			return fmt.Errorf("replace %s: delete: %w", kind, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
			return fmt.Errorf("replace %s: insert: %w", kind, err)
		}
		return nil
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&localRecord{}).Error; err != nil {
			return fmt.Errorf("clear records: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&localMeta{}).Error; err != nil {
			return fmt.Errorf("clear meta: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) LastSync(ctx context.Context) (time.Time, error) {
	var m localMeta
	err := s.db.WithContext(ctx).Where("key = ?", lastSyncKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read last sync: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, m.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last sync: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) SetLastSync(ctx context.Context, at time.Time) error {
	m := localMeta{Key: lastSyncKey, Value: at.UTC().Format(time.RFC3339Nano)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("write last sync: %w", err)
	}
	return nil
}

// Close is a no-op; the database handle is owned by whoever opened it.
func (s *SQLiteStore) Close() error { return nil }
