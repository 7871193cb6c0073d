package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/qwestard/codassistant/internal/models"
)

type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, timeout: timeout}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, systemInstruction, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func responseSchema() *genai.Schema {
	intents := make([]string, 0, len(models.Intents))
	for _, i := range models.Intents {
		intents = append(intents, string(i))
	}
	steps := make([]string, 0, len(models.Steps))
	for _, s := range models.Steps {
		steps = append(steps, string(s))
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"intent":  {Type: genai.TypeString, Enum: intents},
			"message": {Type: genai.TypeString},
			"extractedData": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"customerName": {Type: genai.TypeString},
					"address":      {Type: genai.TypeString},
					"phone":        {Type: genai.TypeString},
				},
			},
			"nextStep": {Type: genai.TypeString, Enum: steps},
		},
		Required: []string{"intent", "message"},
	}
}
