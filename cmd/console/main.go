package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/cache"
	"github.com/qwestard/codassistant/internal/catalog"
	"github.com/qwestard/codassistant/internal/config"
	"github.com/qwestard/codassistant/internal/conversation"
	"github.com/qwestard/codassistant/internal/handler"
	"github.com/qwestard/codassistant/internal/llm"
	"github.com/qwestard/codassistant/internal/metrics"
	"github.com/qwestard/codassistant/internal/service"
	"github.com/qwestard/codassistant/internal/storage"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	auditCtx, cancelAudit := context.WithCancel(context.Background())
	auditPool := audit.NewAuditWorkerPool(audit.AuditPoolConfig{
		BatchSize:   cfg.AuditBatchSize,
		Timeout:     cfg.AuditTimeout,
		ChannelSize: 100,
	}, &audit.StdoutProcessor{Filter: cfg.FilterWord})
	auditPool.Start(auditCtx, 1)
	defer auditPool.Shutdown(cancelAudit)

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
			log.Printf("Language model unavailable: %v", err)
		} else {
			gen = g
		}
	}

	cat := catalog.NewCatalog()
	controller := conversation.NewController(llm.NewInterpreter(gen, cat.List()), orders, cat, cfg.DefaultCountry)
	chat := service.NewChatService(controller, cache.NewSessionCache(0), auditPool, metrics.NewChatMetrics(prometheus.NewRegistry()))
	h := handler.New(chat, orders, os.Stdout)

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("COD assistant console. Type 'help' for commands.")
	for {
		fmt.Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if err := h.Execute(ctx, parts[0], parts[1:]); err != nil {
			if errors.Is(err, handler.ErrExit) {
				return
			}
			fmt.Println(err)
		}
	}
}
