package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sheetsync/internal/models"
)

// ArchiveOperations stores terminal operations removed from the ledger.
// Re-archiving an id overwrites the earlier row.
func (db *DB) ArchiveOperations(ctx context.Context, ops []models.Operation) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO operation_archive
            (id, kind, store_id, range_a1, payload, status, error_code, error_message,
             error_cause, submitted_at, started_at, finished_at, archived_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range ops {
		op := &ops[i]
		payload, err := encodePayload(op.Payload)
		if err != nil {
			return fmt.Errorf("operation %s: %w", op.ID, err)
		}
		var code, msg, cause sql.NullString
		if op.Error != nil {
			code = sql.NullString{String: string(op.Error.Code), Valid: true}
			msg = sql.NullString{String: op.Error.Message, Valid: true}
			if op.Error.Cause != nil {
				cause = sql.NullString{String: op.Error.Cause.Error(), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx,
			string(op.ID),
			string(op.Kind),
			op.StoreID,
			op.Range,
			payload,
			string(op.Status),
			code,
			msg,
			cause,
			op.SubmittedAt.UTC(),
			nullTime(op.StartedAt),
			nullTime(op.FinishedAt),
			now,
		); err != nil {
			return fmt.Errorf("failed to archive operation %s: %w", op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive tx: %w", err)
	}
	db.logger.Debug().Int("count", len(ops)).Msg("Operations archived")
	return nil
}

// ListArchivedOperations returns up to limit archived operations, most
// recently archived first.
func (db *DB) ListArchivedOperations(ctx context.Context, limit int) ([]models.Operation, error) {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}
	rows, err := db.QueryContext(ctx, `
        SELECT id, kind, store_id, range_a1, payload, status, error_code, error_message,
               error_cause, submitted_at, started_at, finished_at
        FROM operation_archive
        ORDER BY archived_at DESC, submitted_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived operations: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var (
			op                 models.Operation
			id, kind, status   string
			payload, code, msg sql.NullString
			cause              sql.NullString
			started, finished  sql.NullTime
		)
		if err := rows.Scan(&id, &kind, &op.StoreID, &op.Range, &payload, &status, &code, &msg,
			&cause, &op.SubmittedAt, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan archived operation: %w", err)
		}
		op.ID = models.OperationID(id)
		op.Kind = models.OperationKind(kind)
		op.Status = models.OperationStatus(status)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &op.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload of %s: %w", id, err)
			}
		}
		if code.Valid {
			op.Error = &models.OperationError{Code: models.ErrorCode(code.String), Message: msg.String}
			if cause.Valid && cause.String != "" {
				op.Error.Cause = errors.New(cause.String)
			}
		}
		if started.Valid {
			t := started.Time
			op.StartedAt = &t
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// CountArchived returns the number of archived operations with status, or
// all of them when status is empty.
func (db *DB) CountArchived(ctx context.Context, status models.OperationStatus) (int, error) {
	query := `SELECT COUNT(*) FROM operation_archive`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	var count int
	err := db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// PurgeArchivedBefore deletes rows archived before cutoff.
func (db *DB) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM operation_archive WHERE archived_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge archive: %w", err)
	}
	return res.RowsAffected()
}

func encodePayload(m models.Matrix) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
