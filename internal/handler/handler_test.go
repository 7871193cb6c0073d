package handler

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/cache"
	"github.com/qwestard/codassistant/internal/catalog"
	"github.com/qwestard/codassistant/internal/conversation"
	"github.com/qwestard/codassistant/internal/llm"
	"github.com/qwestard/codassistant/internal/metrics"
	"github.com/qwestard/codassistant/internal/service"
	"github.com/qwestard/codassistant/internal/storage"
)

type fakeGenerator struct{ replies []string }

func (g *fakeGenerator) Generate(context.Context, string, string) (string, error) {
	if len(g.replies) == 0 {
		return "", llm.ErrEmptyResponse
	}
	next := g.replies[0]
	g.replies = g.replies[1:]
	return next, nil
}

func newTestHandler(t *testing.T, replies ...string) (*Handler, *bytes.Buffer) {
	t.Helper()
	st := storage.New(100)
	require.NoError(t, st.Seed(storage.DemoOrders()))
	orders := service.NewOrderService(st, audit.Discard{}, "Morocco")
	cat := catalog.NewCatalog()
	ctrl := conversation.NewController(llm.NewInterpreter(&fakeGenerator{replies: replies}, cat.List()), orders, cat, "Morocco")
	chat := service.NewChatService(ctrl, cache.NewSessionCache(time.Hour), audit.Discard{}, metrics.NewChatMetrics(prometheus.NewRegistry()))
	out := &bytes.Buffer{}
	return New(chat, orders, out), out
}

func TestExecuteUnknownAndExit(t *testing.T) {
	h, out := newTestHandler(t)
	assert.ErrorIs(t, h.Execute(context.Background(), "dance", nil), ErrUnknownCommand)
	assert.ErrorIs(t, h.Execute(context.Background(), "exit", nil), ErrExit)
	assert.Contains(t, out.String(), "Bye.")
}

func TestSayAndState(t *testing.T) {
	h, out := newTestHandler(t,
		`{"intent":"order","message":"Where should we deliver?","extractedData":{"customerName":"Omar"},"nextStep":"collecting_address"}`,
	)
	ctx := context.Background()

	require.NoError(t, h.Execute(ctx, "say", []string{"I'm", "Omar"}))
	assert.Contains(t, out.String(), "bot [order]: Where should we deliver?")

	out.Reset()
	require.NoError(t, h.Execute(ctx, "state", nil))
	assert.Contains(t, out.String(), "Step: collecting_address")
	assert.Contains(t, out.String(), `Name="Omar"`)
	assert.Contains(t, out.String(), "Price=49.00")

	out.Reset()
	require.NoError(t, h.Execute(ctx, "reset", nil))
	require.NoError(t, h.Execute(ctx, "state", nil))
	assert.Contains(t, out.String(), "Step: greeting")
	assert.Contains(t, out.String(), `Name=""`)
}

func TestOrderCommands(t *testing.T) {
	h, out := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.Execute(ctx, "orders", []string{"john"}))
	assert.Contains(t, out.String(), "#103 John Doe")
	assert.NotContains(t, out.String(), "#101")

	out.Reset()
	require.NoError(t, h.Execute(ctx, "status", []string{"101", "shipped"}))
	assert.Contains(t, out.String(), "Order 101 is now SHIPPED")

	out.Reset()
	require.NoError(t, h.Execute(ctx, "status", []string{"999", "SHIPPED"}))
	assert.Contains(t, out.String(), "order not found")

	out.Reset()
	require.NoError(t, h.Execute(ctx, "order", []string{"102"}))
	assert.Contains(t, out.String(), "Sara Al-Farsi")

	out.Reset()
	require.NoError(t, h.Execute(ctx, "stats", nil))
	assert.Contains(t, out.String(), "Orders: 3")
	assert.Contains(t, out.String(), "Revenue: $147.00")
}

func TestExport(t *testing.T) {
	h, out := newTestHandler(t)
	path := filepath.Join(t.TempDir(), "orders.json")

	require.NoError(t, h.Execute(context.Background(), "export", []string{path}))
	assert.Contains(t, out.String(), "Orders written to")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ahmed Mansour")
}
