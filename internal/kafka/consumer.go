package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/IBM/sarama"
)

type MessageHandler func(topic string, value []byte)

type ConsumerGroupHandler struct {
	handle MessageHandler
}

func NewConsumerGroupHandler(handle MessageHandler) ConsumerGroupHandler {
	return ConsumerGroupHandler{handle: handle}
}

func (ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		log.Printf("Consumed message: topic=%s partition=%d offset=%d", msg.Topic, msg.Partition, msg.Offset)
		if h.handle != nil {
			h.handle(msg.Topic, msg.Value)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// StartSaramaConsumer consumes topics until ctx is done.
func StartSaramaConsumer(ctx context.Context, cfg *sarama.Config, brokers []string, groupID string, topics []string, handle MessageHandler) error {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			log.Printf("Error closing consumer group: %v", err)
		}
	}()

	handler := NewConsumerGroupHandler(handle)

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Printf("Error from consumer: %v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
