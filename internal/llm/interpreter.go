package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/qwestard/codassistant/internal/catalog"
	"github.com/qwestard/codassistant/internal/models"
)

const FallbackMessage = "I'm sorry, I'm having trouble processing that right now. Could you please try again?"

var (
	ErrEmptyResponse     = errors.New("empty model response")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrNoAPIKey          = errors.New("language model api key is not configured")
)

// Generator sends one prompt to a text generation service and returns the raw reply.
type Generator interface {
	Generate(ctx context.Context, systemInstruction, prompt string) (string, error)
}

// Interpreter turns a customer utterance into a structured interpretation.
// It keeps no state between calls and never returns an error: any failure
// yields Fallback for the step the conversation is currently at.
type Interpreter struct {
	gen         Generator
	instruction string
}

func NewInterpreter(gen Generator, products []catalog.Product) *Interpreter {
	return &Interpreter{
		gen:         gen,
		instruction: systemInstruction(products),
	}
}

func (i *Interpreter) Interpret(ctx context.Context, utterance string, state models.ConversationState) (result models.Interpretation) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("interpreter: recovered from panic: %v", r)
			result = Fallback(state.CurrentStep)
		}
	}()

	prompt, err := buildPrompt(utterance, state)
	if err != nil {
		log.Printf("interpreter: %v", err)
		return Fallback(state.CurrentStep)
	}
	raw, err := i.gen.Generate(ctx, i.instruction, prompt)
	if err != nil {
		log.Printf("interpreter: generate: %v", err)
		return Fallback(state.CurrentStep)
	}
	parsed, err := ParseInterpretation(raw)
	if err != nil {
		log.Printf("interpreter: %v", err)
		return Fallback(state.CurrentStep)
	}
	return parsed
}

func Fallback(step models.Step) models.Interpretation {
	return models.Interpretation{
		Intent:   models.IntentOther,
		Message:  FallbackMessage,
		NextStep: step,
		Fallback: true,
	}
}

type response struct {
	Intent        string             `json:"intent"`
	Message       string             `json:"message"`
	ExtractedData *extractedResponse `json:"extractedData"`
	NextStep      string             `json:"nextStep"`
}

type extractedResponse struct {
	CustomerName string           `json:"customerName"`
	Address      string           `json:"address"`
	Phone        string           `json:"phone"`
	Product      string           `json:"product"`
	Price        *decimal.Decimal `json:"price"`
}

// ParseInterpretation validates a raw model reply. The reply is untrusted:
// enum members, required fields and the price sign are all checked.
func ParseInterpretation(raw string) (models.Interpretation, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return models.Interpretation{}, ErrEmptyResponse
	}
	var resp response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return models.Interpretation{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	intent := models.Intent(strings.TrimSpace(resp.Intent))
	if !intent.Valid() {
		return models.Interpretation{}, fmt.Errorf("%w: unknown intent %q", ErrMalformedResponse, resp.Intent)
	}
	message := strings.TrimSpace(resp.Message)
	if message == "" {
		return models.Interpretation{}, fmt.Errorf("%w: missing message", ErrMalformedResponse)
	}
	next := models.Step(strings.TrimSpace(resp.NextStep))
	if next != "" && !next.Valid() {
		return models.Interpretation{}, fmt.Errorf("%w: unknown step %q", ErrMalformedResponse, resp.NextStep)
	}

	result := models.Interpretation{
		Intent:   intent,
		Message:  message,
		NextStep: next,
	}
	if ex := resp.ExtractedData; ex != nil {
		result.ExtractedData = models.PartialOrder{
			CustomerName: strings.TrimSpace(ex.CustomerName),
			Address:      strings.TrimSpace(ex.Address),
			Phone:        strings.TrimSpace(ex.Phone),
			Product:      strings.TrimSpace(ex.Product),
		}
		if ex.Price != nil {
			if !ex.Price.IsPositive() {
				return models.Interpretation{}, fmt.Errorf("%w: non-positive price %s", ErrMalformedResponse, ex.Price)
			}
			result.ExtractedData.Price = decimal.NewNullDecimal(*ex.Price)
		}
	}
	return result, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Unavailable is used when no language model is configured; every turn falls back.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string, string) (string, error) {
	return "", ErrNoAPIKey
}
