package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"stallpos/internal/core/apperror"
)

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// stalePending is how long a pending key may sit before another request may reclaim it.
const stalePending = time.Minute

// IdempotencyReplay is the cached HTTP response for replay.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore keeps X-Idempotency-Key outcomes in sys_idempotency so a
// queued operation resent after a lost acknowledgement is applied once.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, ttl: ttl}
}

// AcquireKey attempts to acquire an idempotency key.
// Returns:
//   - (nil, nil) if the key is new and the request should run
//   - (replay, nil) if the operation already finished
//   - (nil, error) if the key is in flight or was used for a different request
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, operatorID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := time.Now().UTC()

	var (
		inserted    bool
		storedOp    string
		storedOpID  string
		storedHash  string
		status      IdempotencyStatus
		response    []byte
		statusCode  *int
		contentType *string
		updatedAt   time.Time
	)
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, operator_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING (xmax = 0), operator_id, operation, request_hash, status, response, response_status, response_content_type, updated_at
	`, key, operatorID, operation, IdempotencyStatusPending, requestHash, now, now.Add(s.ttl)).Scan(
		&inserted, &storedOpID, &storedOp, &storedHash, &status, &response, &statusCode, &contentType, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	if storedOpID != operatorID || storedOp != operation || storedHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", storedOp).
			WithDetail("request_operation", operation)
	}

	switch status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		replay := &IdempotencyReplay{StatusCode: http.StatusOK, ContentType: "application/json", Body: response}
		if statusCode != nil && *statusCode != 0 {
			replay.StatusCode = *statusCode
		}
		if contentType != nil {
			replay.ContentType = *contentType
		}
		return replay, nil
	}

	if now.Sub(updatedAt) > stalePending {
		// the request holding the key most likely died
		if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
			UPDATE sys_idempotency SET updated_at = $1
			WHERE idempotency_key = $2 AND status = $3
		`, now, key, IdempotencyStatusPending); err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		return nil, nil
	}
	return nil, apperror.NewIdempotencyConflict(key)
}

// CompleteKey stores the successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, response)
}

// FailKey stores a client error for replay. Server errors release the key
// instead, so the sender's retry runs the operation again.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	if statusCode >= http.StatusInternalServerError {
		_, err := s.txManager.GetQuerier(ctx).Exec(ctx,
			`DELETE FROM sys_idempotency WHERE idempotency_key = $1`, key)
		return err
	}
	return s.finish(ctx, key, IdempotencyStatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, response any) error {
	var body []byte
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		body = b
	}

	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, status, body, statusCode, contentType, time.Now().UTC(), key)
	return err
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
