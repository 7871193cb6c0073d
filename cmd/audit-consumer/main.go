package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/config"
	"github.com/qwestard/codassistant/internal/kafka"
)

func main() {
	cfg := config.LoadConfig()
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	printer := &audit.StdoutProcessor{Filter: cfg.FilterWord}
	handle := func(topic string, value []byte) {
		var rec audit.AuditLog
		if err := json.Unmarshal(value, &rec); err != nil {
			log.Printf("Skipping malformed audit record on %s: %v", topic, err)
			return
		}
		if err := printer.Process(ctx, []audit.AuditLog{rec}); err != nil {
			log.Printf("Error printing audit record: %v", err)
		}
	}

	log.Printf("Consuming %s as %s", cfg.KafkaTopic, cfg.KafkaGroupID)
	if err := kafka.StartSaramaConsumer(ctx, saramaCfg, cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.KafkaTopic}, handle); err != nil {
		log.Fatalf("Consumer stopped: %v", err)
	}
}
