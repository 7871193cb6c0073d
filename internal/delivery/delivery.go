package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
)

const (
	DefaultBridgeURL = "http://localhost:3001/send"
	DefaultAPIBase   = "https://graph.facebook.com/v18.0"
)

var ErrBridgeUnavailable = errors.New("local bridge not found, start the WhatsApp bridge and try again")

// CloudAPIError is returned when the cloud messaging API answers with a non-2xx status.
type CloudAPIError struct {
	StatusCode int
	Message    string
}

func (e *CloudAPIError) Error() string {
	return fmt.Sprintf("cloud api: %s (status %d)", e.Message, e.StatusCode)
}

type Credentials struct {
	AccessToken   string
	PhoneNumberID string
}

func (c *Credentials) Configured() bool {
	return c != nil && c.AccessToken != "" && c.PhoneNumberID != ""
}

// Sender delivers outbound text either through a local bridge or through
// the hosted cloud API, depending on whether credentials are given.
type Sender struct {
	client    *http.Client
	bridgeURL string
	apiBase   string
}

func NewSender(bridgeURL, apiBase string, timeout time.Duration) *Sender {
	if bridgeURL == "" {
		bridgeURL = DefaultBridgeURL
	}
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Sender{
		client:    &http.Client{Timeout: timeout},
		bridgeURL: bridgeURL,
		apiBase:   strings.TrimRight(apiBase, "/"),
	}
}

// Send returns the decoded JSON reply of whichever endpoint handled the message.
func (s *Sender) Send(ctx context.Context, to, text string, creds *Credentials) (map[string]any, error) {
	if creds == nil || creds.AccessToken == "" {
		return s.sendBridge(ctx, to, text)
	}
	return s.sendCloud(ctx, to, text, creds)
}

func (s *Sender) sendBridge(ctx context.Context, to, text string) (map[string]any, error) {
	body := map[string]string{"to": to, "message": text}
	resp, err := s.postJSON(ctx, s.bridgeURL, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()
	return decodeReply(resp.Body), nil
}

type cloudMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             cloudText `json:"text"`
}

type cloudText struct {
	Body string `json:"body"`
}

func (s *Sender) sendCloud(ctx context.Context, to, text string, creds *Credentials) (map[string]any, error) {
	url := fmt.Sprintf("%s/%s/messages", s.apiBase, creds.PhoneNumberID)
	body := cloudMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               digitsOnly(to),
		Type:             "text",
		Text:             cloudText{Body: text},
	}
	headers := map[string]string{"Authorization": "Bearer " + creds.AccessToken}
	resp, err := s.postJSON(ctx, url, body, headers)
	if err != nil {
		return nil, fmt.Errorf("cloud api: %w", err)
	}
	defer resp.Body.Close()

	reply := decodeReply(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "Failed to send message"
		if e, ok := reply["error"].(map[string]any); ok {
			if m, ok := e["message"].(string); ok && m != "" {
				msg = m
			}
		}
		return nil, &CloudAPIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return reply, nil
}

func (s *Sender) postJSON(ctx context.Context, url string, body any, headers map[string]string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.client.Do(req)
}

func decodeReply(r io.Reader) map[string]any {
	reply := map[string]any{}
	_ = json.NewDecoder(r).Decode(&reply)
	return reply
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
