package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/cache"
	"github.com/qwestard/codassistant/internal/catalog"
	"github.com/qwestard/codassistant/internal/config"
	"github.com/qwestard/codassistant/internal/conversation"
	"github.com/qwestard/codassistant/internal/db"
	"github.com/qwestard/codassistant/internal/delivery"
	"github.com/qwestard/codassistant/internal/kafka"
	"github.com/qwestard/codassistant/internal/linking"
	"github.com/qwestard/codassistant/internal/llm"
	"github.com/qwestard/codassistant/internal/metrics"
	"github.com/qwestard/codassistant/internal/processor"
	"github.com/qwestard/codassistant/internal/repository"
	"github.com/qwestard/codassistant/internal/server"
	"github.com/qwestard/codassistant/internal/service"
	"github.com/qwestard/codassistant/internal/storage"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processors := []audit.AuditLogProcessor{&audit.StdoutProcessor{Filter: cfg.FilterWord}}

	if cfg.DSN != "" {
		database, err := db.NewDB(cfg.DSN)
		if err != nil {
			log.Fatalf("Error in connection to db: %v", err)
		}
		defer database.Close()
		processors = append(processors, audit.NewDBProcessor(database))

		if len(cfg.KafkaBrokers) > 0 {
			producer, err := kafka.NewSaramaProducer(cfg.KafkaBrokers)
			if err != nil {
				log.Fatalf("Error creating Kafka producer: %v", err)
			}
			defer producer.Close()

			outbox := repository.NewPostgresOutboxRepository(database)
			processors = append(processors, audit.NewOutboxProcessor(outbox))
			relay := processor.NewOutboxRelay(outbox, producer, cfg.KafkaTopic, cfg.OutboxPollInterval, 10)
			go relay.Start(ctx)
		}
	}

	auditCtx, cancelAudit := context.WithCancel(context.Background())
	auditPool := audit.NewAuditWorkerPool(audit.AuditPoolConfig{
		BatchSize:   cfg.AuditBatchSize,
		Timeout:     cfg.AuditTimeout,
		ChannelSize: 100,
	}, processors...)
	auditPool.Start(auditCtx, cfg.AuditWorkers)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st := storage.New(100)
	if cfg.SeedDemo {
		if err := st.Seed(storage.DemoOrders()); err != nil {
			log.Fatalf("Error seeding demo orders: %v", err)
		}
	}
	orders := service.NewOrderService(st, auditPool, cfg.DefaultCountry)

	var gen llm.Generator = llm.Unavailable{}
	if cfg.APIKey != "" {
		g, err := llm.NewGeminiGenerator(ctx, cfg.APIKey, cfg.GeminiModel, cfg.LLMTimeout)
		if err != nil {
			log.Printf("Language model unavailable, every turn will fall back: %v", err)
		} else {
			gen = g
		}
	} else {
		log.Printf("API_KEY is not set, every turn will fall back")
	}

	cat := catalog.NewCatalog()
	controller := conversation.NewController(llm.NewInterpreter(gen, cat.List()), orders, cat, cfg.DefaultCountry)
	chat := service.NewChatService(controller, cache.NewSessionCache(cfg.SessionTTL), auditPool, metrics.NewChatMetrics(reg))
	go chat.EvictIdle(ctx, time.Minute)

	var creds *delivery.Credentials
	if cfg.CloudCredentials() {
		creds = &delivery.Credentials{AccessToken: cfg.WAToken, PhoneNumberID: cfg.WAPhoneID}
	}

	srv := server.NewServer(cfg.Addr(), server.Deps{
		Chat:        chat,
		Orders:      orders,
		Linker:      linking.NewLinker(),
		Sender:      delivery.NewSender(cfg.WABridgeURL, cfg.WAAPIBase, 15*time.Second),
		Credentials: creds,
		Audit:       auditPool,
		Metrics:     metrics.NewServerMetrics(reg),
		Gatherer:    reg,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	auditPool.Shutdown(cancelAudit)
	log.Printf("Server stopped")
}
