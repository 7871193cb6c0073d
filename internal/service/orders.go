package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/models"
	"github.com/qwestard/codassistant/internal/storage"
)

var ErrInvalidOrder = errors.New("invalid order")

type OrderService struct {
	st      *storage.OrderStorage
	audit   audit.Logger
	country string
}

func NewOrderService(st *storage.OrderStorage, auditLog audit.Logger, defaultCountry string) *OrderService {
	return &OrderService{
		st:      st,
		audit:   auditLog,
		country: defaultCountry,
	}
}

func (s *OrderService) List(query string) []models.Order {
	return s.st.Filter(query)
}

func (s *OrderService) Get(id string) (models.Order, error) {
	return s.st.Get(id)
}

// UpdateStatus sets any status on an existing order. Transitions are not
// restricted so an operator can always correct a mistake.
func (s *OrderService) UpdateStatus(id string, status models.OrderStatus) (models.Order, error) {
	old, ok := s.st.UpdateStatus(id, status)
	if !ok {
		return models.Order{}, storage.ErrNotFound
	}
	s.audit.Log(audit.AuditLog{
		Action:   audit.ActionStatusChange,
		OrderID:  id,
		OldState: string(old),
		NewState: string(status),
		Message:  "Order status updated",
	})
	return s.st.Get(id)
}

func (s *OrderService) CreateManual(o models.Order) (models.Order, error) {
	o.CustomerName = strings.TrimSpace(o.CustomerName)
	o.Phone = strings.TrimSpace(o.Phone)
	o.Address = strings.TrimSpace(o.Address)
	o.Product = strings.TrimSpace(o.Product)
	var missing []string
	if o.CustomerName == "" {
		missing = append(missing, "customer_name")
	}
	if o.Phone == "" {
		missing = append(missing, "phone")
	}
	if o.Address == "" {
		missing = append(missing, "address")
	}
	if o.Product == "" {
		missing = append(missing, "product")
	}
	if len(missing) > 0 {
		return models.Order{}, fmt.Errorf("%w: missing %s", ErrInvalidOrder, strings.Join(missing, ", "))
	}
	o.ID = ""
	o.Status = models.OrderStatusNew
	o.Source = models.OrderSourceManual
	return s.insert(o, "", "Manual order created")
}

// AddFromChat stores an order finalized by a conversation.
func (s *OrderService) AddFromChat(_ context.Context, sessionID string, o models.Order) (models.Order, error) {
	return s.insert(o, sessionID, "Order finalized from chat")
}

func (s *OrderService) insert(o models.Order, sessionID, message string) (models.Order, error) {
	if o.Country == "" {
		o.Country = s.country
	}
	created, err := s.st.Insert(o)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPrice) {
			return models.Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		return models.Order{}, err
	}
	s.audit.Log(audit.AuditLog{
		Action:    audit.ActionOrderCreated,
		OrderID:   created.ID,
		SessionID: sessionID,
		NewState:  string(created.Status),
		Message:   message,
	})
	return created, nil
}

func (s *OrderService) Stats() models.Stats {
	return s.st.Stats()
}

func (s *OrderService) Export(w io.Writer) error {
	return s.st.Export(w)
}
