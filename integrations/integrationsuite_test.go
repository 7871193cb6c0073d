package integrations

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/cache"
	"github.com/qwestard/codassistant/internal/catalog"
	"github.com/qwestard/codassistant/internal/conversation"
	"github.com/qwestard/codassistant/internal/db"
	"github.com/qwestard/codassistant/internal/delivery"
	"github.com/qwestard/codassistant/internal/linking"
	"github.com/qwestard/codassistant/internal/llm"
	"github.com/qwestard/codassistant/internal/metrics"
	"github.com/qwestard/codassistant/internal/models"
	"github.com/qwestard/codassistant/internal/server"
	"github.com/qwestard/codassistant/internal/service"
	"github.com/qwestard/codassistant/internal/storage"
)

// keyedGenerator answers with the reply whose key occurs in the customer message.
type keyedGenerator struct {
	replies map[string]string
}

func (g keyedGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	_, msg, _ := strings.Cut(prompt, "User Message:")
	for key, reply := range g.replies {
		if strings.Contains(msg, key) {
			return reply, nil
		}
	}
	return "", llm.ErrEmptyResponse
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type IntegrationSuite struct {
	suite.Suite

	db          *sql.DB
	testServer  *httptest.Server
	bridge      *httptest.Server
	auditOut    *syncBuffer
	auditPool   *audit.AuditWorkerPool
	cancelAudit context.CancelFunc

	mu        sync.Mutex
	delivered []map[string]string
}

func (suite *IntegrationSuite) SetupSuite() {
	processors := []audit.AuditLogProcessor{}
	suite.auditOut = &syncBuffer{}
	processors = append(processors, &audit.StdoutProcessor{Out: suite.auditOut})

	if dsn := os.Getenv("TEST_DSN"); dsn != "" {
		database, err := db.NewDB(dsn)
		if err != nil {
			suite.T().Fatalf("db.NewDB error: %v", err)
		}
		if _, err := database.Exec("TRUNCATE audit_logs"); err != nil {
			suite.T().Logf("truncate error: %v", err)
		}
		suite.db = database
		processors = append(processors, audit.NewDBProcessor(database))
	}

	var auditCtx context.Context
	auditCtx, suite.cancelAudit = context.WithCancel(context.Background())
	suite.auditPool = audit.NewAuditWorkerPool(audit.AuditPoolConfig{
		BatchSize:   1,
		Timeout:     50 * time.Millisecond,
		ChannelSize: 100,
	}, processors...)
	suite.auditPool.Start(auditCtx, 2)

	suite.bridge = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		suite.mu.Lock()
		suite.delivered = append(suite.delivered, body)
		suite.mu.Unlock()
		w.Write([]byte(`{"success":true}`))
	}))

	gen := keyedGenerator{replies: map[string]string{
		"how much":  `{"intent":"price","message":"The Premium Wireless Headphones cost $49.00 with cash on delivery."}`,
		"buy":       `{"intent":"order","message":"Great choice! What is your full name?","nextStep":"collecting_name"}`,
		"Layla":     `{"intent":"order","message":"Thanks Layla. Where should we deliver?","extractedData":{"customerName":"Layla Haddad"},"nextStep":"collecting_address"}`,
		"Fes":       `{"intent":"order","message":"And a phone number?","extractedData":{"address":"7 Derb Lmitar, Fes"},"nextStep":"collecting_phone"}`,
		"0677":      `{"intent":"order","message":"Layla Haddad, 7 Derb Lmitar, Fes, 0677 445566. Confirm?","extractedData":{"phone":"0677 445566"},"nextStep":"confirming_order"}`,
		"confirm":   `{"intent":"confirmation","message":"Your order is confirmed. Pay on delivery!","nextStep":"idle"}`,
		"broken":    "```json\n{\"intent\":\"teleport\",\"message\":\"??\"}\n```",
		"not today": `{"intent":"cancel","message":"No problem, come back anytime.","nextStep":"idle"}`,
	}}

	reg := prometheus.NewRegistry()
	st := storage.New(100)
	if err := st.Seed(storage.DemoOrders()); err != nil {
		suite.T().Fatalf("seed error: %v", err)
	}
	orders := service.NewOrderService(st, suite.auditPool, "Morocco")
	cat := catalog.NewCatalog()
	ctrl := conversation.NewController(llm.NewInterpreter(gen, cat.List()), orders, cat, "Morocco")
	chat := service.NewChatService(ctrl, cache.NewSessionCache(time.Hour), suite.auditPool, metrics.NewChatMetrics(reg))

	srv := server.NewServer(":0", server.Deps{
		Chat:     chat,
		Orders:   orders,
		Linker:   linking.NewLinker(),
		Sender:   delivery.NewSender(suite.bridge.URL, "", time.Second),
		Audit:    suite.auditPool,
		Metrics:  metrics.NewServerMetrics(reg),
		Gatherer: reg,
	})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	suite.testServer = httptest.NewServer(mux)
}

func (suite *IntegrationSuite) TearDownSuite() {
	suite.testServer.Close()
	suite.bridge.Close()
	suite.auditPool.Shutdown(suite.cancelAudit)
	if suite.db != nil {
		_ = suite.db.Close()
	}
}

func (suite *IntegrationSuite) TestConversationCreatesOrder() {
	sess := suite.startSession()

	var last map[string]json.RawMessage
	script := []string{
		"hi, how much are these?",
		"I want to buy one",
		"I'm Layla Haddad",
		"7 Derb Lmitar, Fes",
		"0677 445566",
		"yes confirm",
	}
	for _, text := range script {
		resp, body := suite.doRequest(http.MethodPost, "/sessions/"+sess.ID+"/messages", map[string]string{"text": text})
		assert.Equal(suite.T(), http.StatusOK, resp.StatusCode, text)
		last = map[string]json.RawMessage{}
		assert.NoError(suite.T(), json.Unmarshal(body, &last))
	}

	var order models.Order
	if !assert.NoError(suite.T(), json.Unmarshal(last["order"], &order)) {
		return
	}
	assert.Equal(suite.T(), "Layla Haddad", order.CustomerName)
	assert.Equal(suite.T(), "7 Derb Lmitar, Fes", order.Address)
	assert.Equal(suite.T(), "0677 445566", order.Phone)
	assert.Equal(suite.T(), "Premium Wireless Headphones", order.Product)
	assert.Equal(suite.T(), "49", order.Price.String())
	assert.Equal(suite.T(), models.OrderStatusNew, order.Status)
	assert.Equal(suite.T(), models.OrderSourceChat, order.Source)
	assert.Equal(suite.T(), "Morocco", order.Country)

	resp, body := suite.doRequest(http.MethodGet, "/orders?q=layla", nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	var found []models.Order
	assert.NoError(suite.T(), json.Unmarshal(body, &found))
	if assert.Len(suite.T(), found, 1) {
		assert.Equal(suite.T(), order.ID, found[0].ID)
	}

	assert.Eventually(suite.T(), func() bool {
		return strings.Contains(suite.auditOut.String(), "Order finalized from chat")
	}, 2*time.Second, 20*time.Millisecond)

	if suite.db != nil {
		assert.Eventually(suite.T(), func() bool {
			var n int
			err := suite.db.QueryRow(`SELECT COUNT(*) FROM audit_logs WHERE action = $1 AND order_id = $2`,
				audit.ActionOrderCreated, order.ID).Scan(&n)
			return err == nil && n == 1
		}, 2*time.Second, 50*time.Millisecond)
	}
}

func (suite *IntegrationSuite) TestMalformedReplyFallsBack() {
	sess := suite.startSession()

	resp, body := suite.doRequest(http.MethodPost, "/sessions/"+sess.ID+"/messages", map[string]string{"text": "this is broken"})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var got struct {
		Session  conversation.Session `json:"session"`
		Intent   models.Intent        `json:"intent"`
		Reply    string               `json:"reply"`
		Fallback bool                 `json:"fallback"`
	}
	assert.NoError(suite.T(), json.Unmarshal(body, &got))
	assert.True(suite.T(), got.Fallback)
	assert.Equal(suite.T(), models.IntentOther, got.Intent)
	assert.Equal(suite.T(), llm.FallbackMessage, got.Reply)
	assert.Equal(suite.T(), models.StepGreeting, got.Session.State.CurrentStep)
	assert.Len(suite.T(), got.Session.Messages, 2)
}

func (suite *IntegrationSuite) TestCancelKeepsOrdersUntouched() {
	resp, body := suite.doRequest(http.MethodGet, "/stats", nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	var before models.Stats
	assert.NoError(suite.T(), json.Unmarshal(body, &before))

	sess := suite.startSession()
	suite.doRequest(http.MethodPost, "/sessions/"+sess.ID+"/messages", map[string]string{"text": "I'm Layla Haddad"})
	resp, _ = suite.doRequest(http.MethodPost, "/sessions/"+sess.ID+"/messages", map[string]string{"text": "not today"})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	_, body = suite.doRequest(http.MethodGet, "/stats", nil)
	var after models.Stats
	assert.NoError(suite.T(), json.Unmarshal(body, &after))
	assert.Equal(suite.T(), before.TotalOrders, after.TotalOrders)
}

func (suite *IntegrationSuite) TestStatusLifecycle() {
	resp, body := suite.doRequest(http.MethodPost, "/orders", map[string]string{
		"customer_name": "Youssef Amrani",
		"phone":         "0611 000 222",
		"address":       "Agadir",
		"product":       "Premium Wireless Headphones",
		"price":         "49.00",
	})
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
	var created models.Order
	assert.NoError(suite.T(), json.Unmarshal(body, &created))

	for _, status := range []string{"CONFIRMED", "SHIPPED", "DELIVERED", "NEW"} {
		resp, body = suite.doRequest(http.MethodPut, "/orders/"+created.ID+"/status", map[string]string{"status": status})
		assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
		var o models.Order
		assert.NoError(suite.T(), json.Unmarshal(body, &o))
		assert.Equal(suite.T(), models.OrderStatus(status), o.Status)
	}

	resp, _ = suite.doRequest(http.MethodPut, "/orders/does-not-exist/status", map[string]string{"status": "SHIPPED"})
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
}

func (suite *IntegrationSuite) TestDeliverThroughBridge() {
	resp, _ := suite.doRequest(http.MethodPost, "/deliver", map[string]string{"to": "+212 677 445566", "text": "Your order has shipped"})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	suite.mu.Lock()
	defer suite.mu.Unlock()
	if assert.NotEmpty(suite.T(), suite.delivered) {
		last := suite.delivered[len(suite.delivered)-1]
		assert.Equal(suite.T(), "+212 677 445566", last["to"])
		assert.Equal(suite.T(), "Your order has shipped", last["message"])
	}
}

func (suite *IntegrationSuite) startSession() conversation.Session {
	resp, body := suite.doRequest(http.MethodPost, "/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		suite.T().Fatalf("start session: status %d", resp.StatusCode)
	}
	var sess conversation.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		suite.T().Fatalf("decode session: %v", err)
	}
	return sess
}

func (suite *IntegrationSuite) doRequest(method, path string, body interface{}) (*http.Response, []byte) {
	var reqBody []byte
	var err error
	if body != nil {
		reqBody, err = json.Marshal(body)
		if err != nil {
			suite.T().Fatalf("json.Marshal error: %v", err)
		}
	}

	req, err := http.NewRequest(method, suite.testServer.URL+path, bytes.NewReader(reqBody))
	if err != nil {
		suite.T().Fatalf("http.NewRequest: %v", err)
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		suite.T().Fatalf("client.Do: %v", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		suite.T().Fatalf("ReadAll: %v", err)
	}
	return resp, respBody
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}
