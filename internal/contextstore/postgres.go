// Package contextstore provides the durable Postgres implementation of the
// pipeline context store. Each task context is one row holding JSONB
// snapshots of the field bag, error, and attempt history, guarded by an
// optimistic version check so concurrent writers cannot silently clobber
// each other's snapshots.
package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/pipeline"
	"github.com/tiptoro/gateway/pkg/repository"
)

type postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Postgres-backed pipeline store.
func New(db *sql.DB, logger *slog.Logger) pipeline.Store {
	return &postgres{
		db:     db,
		logger: logger.With("system", "contextstore"),
	}
}

const projection = `
	task_id, owner_id, status, current_stage, fields, error, history,
	version, created_at, updated_at`

func scanContext(s repository.Scanner) (pipeline.Context, error) {
	var (
		tc      pipeline.Context
		status  string
		fields  []byte
		taskErr []byte
		history []byte
	)
	err := s.Scan(
		&tc.TaskID,
		&tc.OwnerID,
		&status,
		&tc.CurrentStage,
		&fields,
		&taskErr,
		&history,
		&tc.Version,
		&tc.CreatedAt,
		&tc.UpdatedAt,
	)
	if err != nil {
		return tc, err
	}

	tc.Status = pipeline.Status(status)
	if err := json.Unmarshal(fields, &tc.Fields); err != nil {
		return tc, fmt.Errorf("decode fields: %w", err)
	}
	if len(taskErr) > 0 {
		tc.Error = &pipeline.TaskError{}
		if err := json.Unmarshal(taskErr, tc.Error); err != nil {
			return tc, fmt.Errorf("decode error: %w", err)
		}
	}
	if err := json.Unmarshal(history, &tc.History); err != nil {
		return tc, fmt.Errorf("decode history: %w", err)
	}
	return tc, nil
}

func (p *postgres) Save(ctx context.Context, tc *pipeline.Context) error {
	fields, err := json.Marshal(tc.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	history, err := json.Marshal(tc.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	var taskErr []byte
	if tc.Error != nil {
		taskErr, err = json.Marshal(tc.Error)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}
	}

	next := tc.Version + 1
	now := time.Now().UTC()

	_, err = repository.WithTx(ctx, p.db, func(tx *sql.Tx) (struct{}, error) {
		// Serialize writers per task so the version check and the write
		// are atomic across connections.
		if _, err := tx.ExecContext(
			ctx,
			"SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))",
			tc.TaskID,
		); err != nil {
			return struct{}{}, fmt.Errorf("acquire task lock: %w", err)
		}

		result, err := tx.ExecContext(
			ctx, `
			UPDATE task_contexts
			SET status = $2, current_stage = $3, fields = $4, error = $5,
			    history = $6, version = $7, updated_at = $8
			WHERE task_id = $1 AND version = $9`,
			tc.TaskID, string(tc.Status), tc.CurrentStage, fields, taskErr,
			history, next, now, tc.Version,
		)
		if err != nil {
			return struct{}{}, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return struct{}{}, err
		}
		if affected == 1 {
			return struct{}{}, nil
		}

		var exists bool
		row := tx.QueryRowContext(
			ctx,
			"SELECT EXISTS (SELECT 1 FROM task_contexts WHERE task_id = $1)",
			tc.TaskID,
		)
		if err := row.Scan(&exists); err != nil {
			return struct{}{}, err
		}
		if exists || tc.Version != 0 {
			return struct{}{}, pipeline.ErrVersionConflict
		}

		_, err = tx.ExecContext(
			ctx, `
			INSERT INTO task_contexts(task_id, owner_id, status, current_stage, fields, error, history, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			tc.TaskID, tc.OwnerID, string(tc.Status), tc.CurrentStage, fields,
			taskErr, history, next, tc.CreatedAt, now,
		)
		return struct{}{}, err
	})
	if err != nil {
		return err
	}

	tc.Version = next
	tc.UpdatedAt = now
	return nil
}

func (p *postgres) Load(ctx context.Context, taskID uuid.UUID) (*pipeline.Context, error) {
	q := fmt.Sprintf("SELECT %s FROM task_contexts WHERE task_id = $1", projection)

	tc, err := repository.QueryOne(ctx, p.db, q, []any{taskID}, scanContext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	return &tc, nil
}

func (p *postgres) Exists(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var exists bool
	row := p.db.QueryRowContext(
		ctx,
		"SELECT EXISTS (SELECT 1 FROM task_contexts WHERE task_id = $1)",
		taskID,
	)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check task existence: %w", err)
	}
	return exists, nil
}
