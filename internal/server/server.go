package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/cache"
	"github.com/qwestard/codassistant/internal/conversation"
	"github.com/qwestard/codassistant/internal/delivery"
	"github.com/qwestard/codassistant/internal/linking"
	"github.com/qwestard/codassistant/internal/metrics"
	"github.com/qwestard/codassistant/internal/middleware"
	"github.com/qwestard/codassistant/internal/models"
	"github.com/qwestard/codassistant/internal/service"
	"github.com/qwestard/codassistant/internal/storage"
)

type Deps struct {
	Chat        *service.ChatService
	Orders      *service.OrderService
	Linker      *linking.Linker
	Sender      *delivery.Sender
	Credentials *delivery.Credentials
	Audit       audit.Logger
	Metrics     *metrics.ServerMetrics
	Gatherer    prometheus.Gatherer
}

type Server struct {
	Deps
	addr string
	srv  *http.Server
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Audit == nil {
		deps.Audit = audit.Discard{}
	}
	return &Server{Deps: deps, addr: addr}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handleWith(mux, "POST /sessions", "start_session", s.handleStartSession, http.MethodPost)
	s.handleWith(mux, "GET /sessions/{id}", "get_session", s.handleGetSession)
	s.handleWith(mux, "POST /sessions/{id}/messages", "send_message", s.handleSendMessage, http.MethodPost)
	s.handleWith(mux, "POST /sessions/{id}/reset", "reset_session", s.handleResetSession, http.MethodPost)

	s.handleWith(mux, "GET /orders", "list_orders", s.handleListOrders)
	s.handleWith(mux, "POST /orders", "create_order", s.handleCreateOrder, http.MethodPost)
	s.handleWith(mux, "GET /orders/export", "export_orders", s.handleExportOrders)
	s.handleWith(mux, "GET /orders/{id}", "get_order", s.handleGetOrder)
	s.handleWith(mux, "PUT /orders/{id}/status", "update_status", s.handleUpdateStatus, http.MethodPut)
	s.handleWith(mux, "GET /stats", "stats", s.handleStats)

	s.handleWith(mux, "GET /channel", "channel", s.handleChannel)
	s.handleWith(mux, "POST /channel/scan", "channel_scan", s.handleChannelAction(s.Linker.Scan), http.MethodPost)
	s.handleWith(mux, "POST /channel/regenerate", "channel_regenerate", s.handleChannelAction(s.Linker.Regenerate), http.MethodPost)
	s.handleWith(mux, "POST /channel/disconnect", "channel_disconnect", s.handleChannelAction(s.Linker.Disconnect), http.MethodPost)
	s.handleWith(mux, "POST /deliver", "deliver", s.handleDeliver, http.MethodPost)

	if s.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.Gatherer))
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) Run() error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.Handler()}
	log.Printf("Server listen on %s...", s.addr)
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWith(mux *http.ServeMux, pattern, name string,
	handlerFunc http.HandlerFunc,
	logMethods ...string,
) {
	var h http.Handler = handlerFunc
	if s.Metrics != nil {
		h = middleware.MetricsMiddleware(s.Metrics, name)(h)
	}
	mux.Handle(pattern, middleware.LogMiddleware(s.Audit, logMethods...)(h))
}

func (s *Server) handleStartSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, s.Chat.StartSession())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Chat.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Session    conversation.Session `json:"session"`
	Intent     models.Intent        `json:"intent"`
	Reply      string               `json:"reply"`
	Fallback   bool                 `json:"fallback"`
	Order      *models.Order        `json:"order,omitempty"`
	OrderError string               `json:"order_error,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	sess, res, err := s.Chat.Send(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := messageResponse{
		Session:  sess,
		Intent:   res.Interpretation.Intent,
		Reply:    res.Interpretation.Message,
		Fallback: res.Interpretation.Fallback,
		Order:    res.Order,
	}
	if res.OrderErr != nil {
		resp.OrderError = res.OrderErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Chat.Reset(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Orders.List(r.URL.Query().Get("q")))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var o models.Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	created, err := s.Orders.CreateManual(o)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleExportOrders(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.json"`)
	if err := s.Orders.Export(w); err != nil {
		log.Printf("export orders: %v", err)
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Orders.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, err := s.Orders.UpdateStatus(r.PathValue("id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Orders.Stats())
}

type channelResponse struct {
	Link            linking.Snapshot `json:"link"`
	CloudConfigured bool             `json:"cloud_configured"`
}

func (s *Server) handleChannel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, channelResponse{
		Link:            s.Linker.Status(),
		CloudConfigured: s.Credentials.Configured(),
	})
}

func (s *Server) handleChannelAction(action func() linking.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, channelResponse{
			Link:            action(),
			CloudConfigured: s.Credentials.Configured(),
		})
	}
}

type deliverRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "to and text are required", http.StatusBadRequest)
		return
	}
	reply, err := s.Sender.Send(r.Context(), req.To, req.Text, s.Credentials)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *delivery.CloudAPIError
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, service.ErrInvalidOrder):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cache.ErrUnknownSession), errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cache.ErrTurnInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, delivery.ErrBridgeUnavailable):
		http.Error(w, delivery.ErrBridgeUnavailable.Error(), http.StatusBadGateway)
	case errors.As(err, &apiErr):
		http.Error(w, apiErr.Message, http.StatusBadGateway)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
