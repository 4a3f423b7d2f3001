package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists voice tasks in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voice_tasks (
			owner TEXT PRIMARY KEY,
			active_task TEXT NOT NULL,
			task_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			awaiting_response TEXT NOT NULL,
			pending_navigation TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, owner string) (VoiceTask, error) {
	var (
		t    VoiceTask
		data []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT active_task, task_data, awaiting_response, pending_navigation, updated_at
		 FROM voice_tasks WHERE owner=$1`,
		owner,
	).Scan(&t.ActiveTask, &data, &t.Awaiting, &t.PendingNavigation, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return VoiceTask{}, ErrNotFound
	}
	if err != nil {
		return VoiceTask{}, fmt.Errorf("load voice task: %w", err)
	}
	if err := json.Unmarshal(data, &t.TaskData); err != nil {
		return VoiceTask{}, fmt.Errorf("decode task data: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Save(ctx context.Context, owner string, task VoiceTask) error {
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now().UTC()
	}
	if task.TaskData == nil {
		task.TaskData = map[string]string{}
	}
	data, err := json.Marshal(task.TaskData)
	if err != nil {
		return fmt.Errorf("encode task data: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO voice_tasks (owner, active_task, task_data, awaiting_response, pending_navigation, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (owner) DO UPDATE SET
		   active_task = EXCLUDED.active_task,
		   task_data = EXCLUDED.task_data,
		   awaiting_response = EXCLUDED.awaiting_response,
		   pending_navigation = EXCLUDED.pending_navigation,
		   updated_at = EXCLUDED.updated_at`,
		owner,
		string(task.ActiveTask),
		data,
		string(task.Awaiting),
		task.PendingNavigation,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save voice task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, owner string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM voice_tasks WHERE owner=$1`, owner); err != nil {
		return fmt.Errorf("clear voice task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
