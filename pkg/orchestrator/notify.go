package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pressgate/pkg/types"
)

// Notifier alerts an operator when a task reaches a terminal state
// that needs human eyes.
type Notifier interface {
	Notify(ctx context.Context, taskID string, state types.TaskState, reason string) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, taskID string, state types.TaskState, reason string) error {
	return nil
}

// WebhookNotifier POSTs terminal-state events to an operator webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, taskID string, state types.TaskState, reason string) error {
	payload := map[string]string{
		"task_id": taskID,
		"state":   string(state),
		"reason":  reason,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification for task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}
