package queue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
)

// queuedRow mirrors the queued_operations table.
type queuedRow struct {
	Seq       uint64     `gorm:"primaryKey;autoIncrement"`
	OpID      string     `gorm:"column:op_id;not null;uniqueIndex"`
	Type      string     `gorm:"column:op_type;not null"`
	Target    string     `gorm:"column:table_name;not null"`
	Payload   []byte     `gorm:"not null"`
	CreatedAt time.Time  `gorm:"not null"`
	Synced    bool       `gorm:"not null;default:false;index"`
	SyncedAt  *time.Time `gorm:"column:synced_at"`
	Attempts  int        `gorm:"not null;default:0"`
	LastError string     `gorm:"not null;default:''"`
}

func (queuedRow) TableName() string { return "queued_operations" }

func (r queuedRow) toOperation() (QueuedOperation, error) {
	op, err := Decode(OpType(r.Type), entity.Kind(r.Target), r.Payload)
	if err != nil {
		return QueuedOperation{}, fmt.Errorf("operation %s: %w", r.OpID, err)
	}
	return QueuedOperation{
		ID:        r.OpID,
		Seq:       r.Seq,
		Type:      OpType(r.Type),
		Table:     entity.Kind(r.Target),
		Op:        op,
		CreatedAt: r.CreatedAt,
		Synced:    r.Synced,
		Attempts:  r.Attempts,
		LastError: r.LastError,
	}, nil
}

// SQLiteQueue stores the queue in the agent's local database so pending work
// survives restarts.
type SQLiteQueue struct {
	db *gorm.DB
}

var _ Queue = (*SQLiteQueue)(nil)

// NewSQLite migrates the queue table and returns the queue.
func NewSQLite(db *gorm.DB) (*SQLiteQueue, error) {
	if err := db.AutoMigrate(&queuedRow{}); err != nil {
		return nil, fmt.Errorf("migrate operation queue: %w", err)
	}
	return &SQLiteQueue{db: db}, nil
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, op Operation) (string, error) {
	payload, err := Encode(op)
	if err != nil {
		return "", err
	}
	row := queuedRow{
		OpID:      id.New(),
		Type:      string(op.Type()),
		Target:    string(op.Table()),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("enqueue %s %s: %w", op.Type(), op.Table(), err)
	}
	return row.OpID, nil
}

func (q *SQLiteQueue) ListPending(ctx context.Context) ([]QueuedOperation, error) {
	var rows []queuedRow
	err := q.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}

	out := make([]QueuedOperation, 0, len(rows))
	for _, r := range rows {
		op, err := r.toOperation()
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func (q *SQLiteQueue) MarkSynced(ctx context.Context, opID string) error {
	now := time.Now().UTC()
	err := q.db.WithContext(ctx).Model(&queuedRow{}).
		Where("op_id = ? AND synced = ?", opID, false).
		Updates(map[string]any{"synced": true, "synced_at": now}).Error
	if err != nil {
		return fmt.Errorf("mark %s synced: %w", opID, err)
	}
	return nil
}

func (q *SQLiteQueue) PurgeSynced(ctx context.Context) error {
	if err := q.db.WithContext(ctx).Where("synced = ?", true).Delete(&queuedRow{}).Error; err != nil {
		return fmt.Errorf("purge synced operations: %w", err)
	}
	return nil
}

func (q *SQLiteQueue) RecordFailure(ctx context.Context, opID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res := q.db.WithContext(ctx).Model(&queuedRow{}).
		Where("op_id = ?", opID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		})
	if res.Error != nil {
		return fmt.Errorf("record failure of %s: %w", opID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *SQLiteQueue) Rewrite(ctx context.Context, opID string, op Operation) error {
	payload, err := Encode(op)
	if err != nil {
		return err
	}
	res := q.db.WithContext(ctx).Model(&queuedRow{}).
		Where("op_id = ?", opID).
		Update("payload", payload)
	if res.Error != nil {
		return fmt.Errorf("rewrite %s: %w", opID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *SQLiteQueue) PendingCount(ctx context.Context) (int, error) {
	var n int64
	if err := q.db.WithContext(ctx).Model(&queuedRow{}).Where("synced = ?", false).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count pending operations: %w", err)
	}
	return int(n), nil
}
