package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qwestard/codassistant/internal/catalog"
	"github.com/qwestard/codassistant/internal/models"
)

var ErrEmptyMessage = errors.New("message is empty")

type Interpreter interface {
	Interpret(ctx context.Context, utterance string, state models.ConversationState) models.Interpretation
}

// OrderSink receives orders finalized by a conversation.
type OrderSink interface {
	AddFromChat(ctx context.Context, sessionID string, order models.Order) (models.Order, error)
}

// Session is one chat: its state machine position and transcript.
type Session struct {
	ID        string                   `json:"id"`
	State     models.ConversationState `json:"state"`
	Messages  []models.Message         `json:"messages"`
	UpdatedAt time.Time                `json:"updated_at"`
}

type TurnResult struct {
	Interpretation models.Interpretation
	// Order is set when the turn finalized an order.
	Order *models.Order
	// OrderErr is set when the sink refused the finalized order.
	OrderErr error
}

type Controller struct {
	interpreter Interpreter
	orders      OrderSink
	catalog     catalog.Catalog
	product     catalog.Product
	country     string
	now         func() time.Time
}

func NewController(interpreter Interpreter, orders OrderSink, products catalog.Catalog, country string) *Controller {
	return &Controller{
		interpreter: interpreter,
		orders:      orders,
		catalog:     products,
		product:     products.Default(),
		country:     country,
		now:         time.Now,
	}
}

func (c *Controller) NewSession(id string) Session {
	return Session{
		ID:        id,
		State:     models.NewConversationState(c.product.Name, c.product.Price),
		Messages:  []models.Message{},
		UpdatedAt: c.now().UTC(),
	}
}

// Turn applies one customer utterance to sess and returns the new session.
// sess itself is left untouched.
func (c *Controller) Turn(ctx context.Context, sess Session, utterance string) (Session, TurnResult, error) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return sess, TurnResult{}, ErrEmptyMessage
	}

	next := sess
	next.Messages = make([]models.Message, len(sess.Messages), len(sess.Messages)+2)
	copy(next.Messages, sess.Messages)
	next.Messages = append(next.Messages, c.message(text, models.SenderCustomer))

	result := TurnResult{Interpretation: c.interpreter.Interpret(ctx, text, sess.State)}
	it := result.Interpretation

	next.State.TempOrder = sess.State.TempOrder.Merge(it.ExtractedData)
	if it.NextStep != "" {
		next.State.CurrentStep = it.NextStep
	}

	if it.Intent == models.IntentConfirmation && next.State.TempOrder.HasContactDetails() {
		order, err := c.orders.AddFromChat(ctx, sess.ID, c.finalize(next.State.TempOrder))
		if err != nil {
			result.OrderErr = err
		} else {
			result.Order = &order
		}
	}

	next.Messages = append(next.Messages, c.message(it.Message, models.SenderBot))
	next.UpdatedAt = c.now().UTC()
	return next, result, nil
}

func (c *Controller) finalize(p models.PartialOrder) models.Order {
	o := models.Order{
		CustomerName: p.CustomerName,
		Phone:        p.Phone,
		Address:      p.Address,
		Product:      p.Product,
		Status:       models.OrderStatusNew,
		Country:      c.country,
		Source:       models.OrderSourceChat,
	}
	product := c.product
	if o.Product == "" {
		o.Product = product.Name
	} else if known, err := c.catalog.Get(o.Product); err == nil {
		product = known
		o.Product = known.Name
	}
	if p.Price.Valid && p.Price.Decimal.IsPositive() {
		o.Price = p.Price.Decimal
	} else {
		o.Price = product.Price
	}
	return o
}

func (c *Controller) message(text string, sender models.Sender) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: c.now().Format("15:04"),
	}
}
