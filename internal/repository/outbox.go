package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type EventStatus string

const (
	EventStatusCreated        EventStatus = "CREATED"
	EventStatusProcessing     EventStatus = "PROCESSING"
	EventStatusFailed         EventStatus = "FAILED"
	EventStatusNoAttemptsLeft EventStatus = "NO_ATTEMPTS_LEFT"
)

// OutboxEvent is an audit record of an order or a conversation waiting to
// be published. Key is the order id, or the session id when the record has
// no order; it becomes the Kafka message key.
type OutboxEvent struct {
	ID            int
	Action        string
	Key           string
	Payload       []byte
	Status        EventStatus
	AttemptCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	NextAttemptAt sql.NullTime
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	Pending(ctx context.Context, limit, maxAttempts int) ([]*OutboxEvent, error)
	MarkProcessing(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
	MarkFailed(ctx context.Context, id int, attemptCount int, status EventStatus, nextAttemptAt time.Time) error
}

type PostgresOutboxRepository struct {
	db *sql.DB
}

func NewPostgresOutboxRepository(db *sql.DB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

func (r *PostgresOutboxRepository) Enqueue(ctx context.Context, event OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (created_at, updated_at, action, event_key, payload, status, attempt_count)
		VALUES (NOW(), NOW(), $1, $2, $3, $4, 0)
	`
	if _, err := r.db.ExecContext(ctx, query, event.Action, event.Key, event.Payload, EventStatusCreated); err != nil {
		return fmt.Errorf("enqueue %s event: %w", event.Action, err)
	}
	return nil
}

// Pending returns created and retryable events, oldest first.
func (r *PostgresOutboxRepository) Pending(ctx context.Context, limit, maxAttempts int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, action, event_key, payload, status, attempt_count, created_at, updated_at, next_attempt_at
		FROM outbox_events
		WHERE status IN ($1, $2)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		  AND attempt_count < $3
		ORDER BY created_at, id
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, EventStatusCreated, EventStatusFailed, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending events: %w", err)
	}
	defer rows.Close()
	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.Action, &e.Key, &e.Payload, &e.Status,
			&e.AttemptCount, &e.CreatedAt, &e.UpdatedAt, &e.NextAttemptAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (r *PostgresOutboxRepository) MarkProcessing(ctx context.Context, id int) error {
	query := `
		UPDATE outbox_events SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, EventStatusProcessing, id)
	return err
}

func (r *PostgresOutboxRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM outbox_events WHERE id = $1`, id)
	return err
}

func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id int, attemptCount int, status EventStatus, nextAttemptAt time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = $1, attempt_count = $2, updated_at = NOW(), next_attempt_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, attemptCount, nextAttemptAt, id)
	return err
}
