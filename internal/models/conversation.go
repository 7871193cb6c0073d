package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Step string

const (
	StepGreeting          Step = "greeting"
	StepCollectingName    Step = "collecting_name"
	StepCollectingAddress Step = "collecting_address"
	StepCollectingPhone   Step = "collecting_phone"
	StepConfirmingOrder   Step = "confirming_order"
	StepIdle              Step = "idle"
)

var Steps = []Step{
	StepGreeting,
	StepCollectingName,
	StepCollectingAddress,
	StepCollectingPhone,
	StepConfirmingOrder,
	StepIdle,
}

func (s Step) Valid() bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

type Intent string

const (
	IntentPrice        Intent = "price"
	IntentOrder        Intent = "order"
	IntentConfirmation Intent = "confirmation"
	IntentCancel       Intent = "cancel"
	IntentQuestion     Intent = "question"
	IntentOther        Intent = "other"
)

var Intents = []Intent{
	IntentPrice,
	IntentOrder,
	IntentConfirmation,
	IntentCancel,
	IntentQuestion,
	IntentOther,
}

func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// PartialOrder is the order being assembled during a conversation.
// An empty string or an invalid Price means the field is not known yet.
type PartialOrder struct {
	CustomerName string              `json:"customerName,omitempty"`
	Address      string              `json:"address,omitempty"`
	Phone        string              `json:"phone,omitempty"`
	Product      string              `json:"product,omitempty"`
	Price        decimal.NullDecimal `json:"price"`
}

// Merge overwrites fields that other carries and keeps the rest.
// A blank value in other never clears a known field.
func (p PartialOrder) Merge(other PartialOrder) PartialOrder {
	if v := strings.TrimSpace(other.CustomerName); v != "" {
		p.CustomerName = v
	}
	if v := strings.TrimSpace(other.Address); v != "" {
		p.Address = v
	}
	if v := strings.TrimSpace(other.Phone); v != "" {
		p.Phone = v
	}
	if v := strings.TrimSpace(other.Product); v != "" {
		p.Product = v
	}
	if other.Price.Valid {
		p.Price = other.Price
	}
	return p
}

func (p PartialOrder) HasContactDetails() bool {
	return p.CustomerName != "" && p.Address != "" && p.Phone != ""
}

func (p PartialOrder) IsEmpty() bool {
	return p.CustomerName == "" && p.Address == "" && p.Phone == "" && p.Product == "" && !p.Price.Valid
}

type ConversationState struct {
	CurrentStep Step         `json:"currentStep"`
	TempOrder   PartialOrder `json:"tempOrder"`
}

func NewConversationState(product string, price decimal.Decimal) ConversationState {
	return ConversationState{
		CurrentStep: StepGreeting,
		TempOrder: PartialOrder{
			Product: product,
			Price:   decimal.NewNullDecimal(price),
		},
	}
}

type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderBot      Sender = "bot"
)

type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// Interpretation is what the language understanding adapter made of one turn.
type Interpretation struct {
	Intent        Intent       `json:"intent"`
	Message       string       `json:"message"`
	ExtractedData PartialOrder `json:"extractedData"`
	NextStep      Step         `json:"nextStep,omitempty"`
	Fallback      bool         `json:"-"`
}
