package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/cache"
	"github.com/qwestard/codassistant/internal/conversation"
	"github.com/qwestard/codassistant/internal/logging"
	"github.com/qwestard/codassistant/internal/metrics"
)

type ChatService struct {
	controller *conversation.Controller
	sessions   *cache.SessionCache
	audit      audit.Logger
	metrics    *metrics.ChatMetrics
}

func NewChatService(controller *conversation.Controller, sessions *cache.SessionCache, auditLog audit.Logger, m *metrics.ChatMetrics) *ChatService {
	return &ChatService{
		controller: controller,
		sessions:   sessions,
		audit:      auditLog,
		metrics:    m,
	}
}

func (s *ChatService) StartSession() conversation.Session {
	sess := s.controller.NewSession(uuid.NewString())
	s.sessions.Put(sess)
	s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	return sess
}

func (s *ChatService) Session(id string) (conversation.Session, error) {
	return s.sessions.Get(id)
}

// Send runs one turn. While it runs the session refuses further turns.
func (s *ChatService) Send(ctx context.Context, id, text string) (conversation.Session, conversation.TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return conversation.Session{}, conversation.TurnResult{}, conversation.ErrEmptyMessage
	}
	sess, err := s.sessions.Begin(id)
	if err != nil {
		return conversation.Session{}, conversation.TurnResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			s.sessions.Abort(id)
		}
	}()

	start := time.Now()
	next, res, err := s.controller.Turn(ctx, sess, text)
	if err != nil {
		return conversation.Session{}, conversation.TurnResult{}, err
	}
	s.sessions.Commit(next)
	committed = true

	it := res.Interpretation
	s.metrics.Turns.WithLabelValues(string(it.Intent)).Inc()
	if it.Fallback {
		s.metrics.Fallbacks.Inc()
	}
	if prev, cur := sess.State.CurrentStep, next.State.CurrentStep; prev != cur {
		s.audit.Log(audit.AuditLog{
			Action:    audit.ActionStepChange,
			SessionID: id,
			OldState:  string(prev),
			NewState:  string(cur),
			Message:   "Conversation step changed",
		})
	}

	fields := logging.Fields{
		Service:    "chat",
		SessionID:  id,
		Step:       string(next.State.CurrentStep),
		Intent:     string(it.Intent),
		Status:     "ok",
		DurationMS: time.Since(start).Milliseconds(),
		Message:    "turn processed",
	}
	if it.Fallback {
		fields.Status = "fallback"
	}
	if res.Order != nil {
		s.metrics.OrdersFinalized.Inc()
		fields.OrderID = res.Order.ID
		fields.Message = "order finalized"
	}
	if res.OrderErr != nil {
		log.Printf("chat session %s: finalized order rejected: %v", id, res.OrderErr)
	}
	logging.Log(fields)

	return next, res, nil
}

// Reset starts the conversation over under the same session id.
func (s *ChatService) Reset(id string) (conversation.Session, error) {
	if _, err := s.sessions.Begin(id); err != nil {
		return conversation.Session{}, err
	}
	fresh := s.controller.NewSession(id)
	s.sessions.Commit(fresh)
	return fresh, nil
}

// EvictIdle drops idle sessions every interval until ctx is done.
func (s *ChatService) EvictIdle(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evict()
		case <-ctx.Done():
			return
		}
	}
}

func (s *ChatService) evict() {
	if n := s.sessions.Evict(); n > 0 {
		log.Printf("Evicted %d idle chat sessions", n)
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
}
