package repository_test

import (
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwestard/codassistant/internal/db"
	"github.com/qwestard/codassistant/internal/repository"
)

var (
	database *sql.DB
	repo     *repository.PostgresOutboxRepository
)

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		log.Println("TEST_DSN is not set, skipping postgres outbox repository tests")
		os.Exit(0)
	}
	var err error
	database, err = db.NewDB(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	repo = repository.NewPostgresOutboxRepository(database)

	code := m.Run()

	database.Exec("DELETE FROM outbox_events")
	database.Close()

	os.Exit(code)
}

func TestEnqueueAndFetchPending(t *testing.T) {
	ctx := context.Background()
	_, err := database.Exec("DELETE FROM outbox_events")
	require.NoError(t, err)

	err = repo.Enqueue(ctx, repository.OutboxEvent{
		Action:  "order_created",
		Key:     "104",
		Payload: []byte(`{"action":"order_created","order_id":"104"}`),
	})
	assert.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, repository.OutboxEvent{
		Action:  "step_change",
		Key:     "session-1",
		Payload: []byte(`{"action":"step_change","session_id":"session-1"}`),
	}))

	events, err := repo.Pending(ctx, 10, 3)
	assert.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, repository.EventStatusCreated, events[0].Status)
	assert.Equal(t, "order_created", events[0].Action)
	assert.Equal(t, "104", events[0].Key)
	assert.JSONEq(t, `{"action":"order_created","order_id":"104"}`, string(events[0].Payload))
	assert.Equal(t, "session-1", events[1].Key)

	events, err = repo.Pending(ctx, 1, 3)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFailureBackoffAndDelete(t *testing.T) {
	ctx := context.Background()
	_, err := database.Exec("DELETE FROM outbox_events")
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, repository.OutboxEvent{
		Action:  "status_change",
		Key:     "101",
		Payload: []byte(`{"action":"status_change"}`),
	}))

	events, err := repo.Pending(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, events, 1)
	id := events[0].ID

	assert.NoError(t, repo.MarkProcessing(ctx, id))
	events, err = repo.Pending(ctx, 10, 3)
	assert.NoError(t, err)
	assert.Empty(t, events, "processing events are not pending")

	err = repo.MarkFailed(ctx, id, 1, repository.EventStatusFailed, time.Now().Add(time.Hour))
	assert.NoError(t, err)
	events, err = repo.Pending(ctx, 10, 3)
	assert.NoError(t, err)
	assert.Empty(t, events, "failed events wait for next_attempt_at")

	err = repo.MarkFailed(ctx, id, 1, repository.EventStatusFailed, time.Now().Add(-time.Second))
	assert.NoError(t, err)
	events, err = repo.Pending(ctx, 10, 3)
	assert.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].AttemptCount)

	err = repo.MarkFailed(ctx, id, 3, repository.EventStatusNoAttemptsLeft, time.Now().Add(-time.Second))
	assert.NoError(t, err)
	events, err = repo.Pending(ctx, 10, 3)
	assert.NoError(t, err)
	assert.Empty(t, events, "exhausted events are never retried")

	assert.NoError(t, repo.Delete(ctx, id))
	var n int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM outbox_events").Scan(&n))
	assert.Zero(t, n)
}
