package processor

import (
	"context"
	"log"
	"time"

	"github.com/qwestard/codassistant/internal/repository"
)

type Publisher interface {
	Publish(topic, key string, message []byte) error
}

// OutboxRelay moves order and conversation events from the outbox table to
// Kafka. Events sharing a key land on one partition in enqueue order.
type OutboxRelay struct {
	repo         repository.OutboxRepository
	producer     Publisher
	topic        string
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
}

func NewOutboxRelay(repo repository.OutboxRepository, producer Publisher, topic string, pollInterval time.Duration, limit int) *OutboxRelay {
	return &OutboxRelay{
		repo:         repo,
		producer:     producer,
		topic:        topic,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
	}
}

func (p *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RelayPending(ctx)
		}
	}
}

func (p *OutboxRelay) RelayPending(ctx context.Context) {
	events, err := p.repo.Pending(ctx, p.limit, p.maxAttempts)
	if err != nil {
		log.Printf("Error fetching pending outbox events: %v", err)
		return
	}
	for _, ev := range events {
		if err := p.repo.MarkProcessing(ctx, ev.ID); err != nil {
			log.Printf("Error marking outbox event %d as PROCESSING: %v", ev.ID, err)
			continue
		}

		if err := p.producer.Publish(p.topic, ev.Key, ev.Payload); err != nil {
			p.fail(ctx, ev, err)
			continue
		}
		log.Printf("Outbox event %d (%s, key=%s) published", ev.ID, ev.Action, ev.Key)
		if err := p.repo.Delete(ctx, ev.ID); err != nil {
			log.Printf("Error deleting outbox event %d after publish: %v", ev.ID, err)
		}
	}
}

func (p *OutboxRelay) fail(ctx context.Context, ev *repository.OutboxEvent, err error) {
	attempt := ev.AttemptCount + 1
	status := repository.EventStatusFailed
	if attempt >= p.maxAttempts {
		status = repository.EventStatusNoAttemptsLeft
	}
	if errUpd := p.repo.MarkFailed(ctx, ev.ID, attempt, status, time.Now().Add(p.retryDelay)); errUpd != nil {
		log.Printf("Error updating outbox event %d on failure: %v", ev.ID, errUpd)
	}
	log.Printf("Failed to publish outbox event %d (%s): %v", ev.ID, ev.Action, err)
}
