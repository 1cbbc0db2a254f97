package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// DeliveryResult is the outcome of one message delivery attempt.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier delivers short operational messages to an associate's chat.
// Delivery failures are never fatal to the ledger operation that triggered
// them; callers log and move on.
type Notifier interface {
	Send(ctx context.Context, chatID, message string) (*DeliveryResult, error)
}

// WebhookNotifier posts messages to an external delivery endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, chatID, message string) (*DeliveryResult, error) {
	payload, err := json.Marshal(map[string]string{"chatId": chatID, "message": message})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryResult{Success: false, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
		return &DeliveryResult{Success: false, Error: err.Error()}, err
	}

	var result DeliveryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Endpoint accepted the message but returned no parseable body.
		return &DeliveryResult{Success: true}, nil
	}
	return &result, nil
}

// LogNotifier is the default when no delivery endpoint is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, chatID, message string) (*DeliveryResult, error) {
	log.Printf("[NOTIFY] chat=%s %s", chatID, message)
	return &DeliveryResult{Success: true}, nil
}
