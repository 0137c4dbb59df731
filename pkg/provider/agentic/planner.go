package agentic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ActionType is the structured action a vision model can request.
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionClickAt  ActionType = "click_at"
	ActionType_    ActionType = "type"
	ActionNavigate ActionType = "navigate"
	ActionUpload   ActionType = "upload"
	ActionScroll   ActionType = "scroll"
	ActionWait     ActionType = "wait"
	ActionDone     ActionType = "done"
	ActionAbort    ActionType = "abort"
)

// PlannedAction is one structured step returned by the model.
type PlannedAction struct {
	Type     ActionType `json:"type"`
	Selector string     `json:"selector,omitempty"`
	X        int        `json:"x,omitempty"`
	Y        int        `json:"y,omitempty"`
	Text     string     `json:"text,omitempty"`
	URL      string     `json:"url,omitempty"`
	Path     string     `json:"path,omitempty"`
	Reason   string     `json:"reason,omitempty"`

	// Set with type=done when the model observed a published post.
	PublishedURL string `json:"published_url,omitempty"`
	PublishedID  string `json:"published_id,omitempty"`
}

// Usage is the token spend of one model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// HistoryItem is a previously executed action and its outcome, fed back
// to the model each turn.
type HistoryItem struct {
	Action PlannedAction `json:"action"`
	Error  string        `json:"error,omitempty"`
}

// PlanRequest carries the current screenshot, the instructions, and
// the action history into one planning call.
type PlanRequest struct {
	Instructions  string
	ScreenshotPNG []byte
	History       []HistoryItem
}

// Planner decides the next UI action from a screenshot. Tests supply a
// scripted fake; production uses VisionClient.
type Planner interface {
	NextAction(ctx context.Context, req PlanRequest) (PlannedAction, Usage, error)
}

const systemPrompt = `You operate a web browser to publish content on a CMS.
Each turn you receive the task instructions, a screenshot of the current page,
and the history of actions already taken. Respond with ONE JSON object and
nothing else, shaped as:
{"type":"click|click_at|type|navigate|upload|scroll|wait|done|abort",
 "selector":"css selector (click/type/upload)",
 "x":0,"y":0 (click_at),
 "text":"text to type",
 "url":"url (navigate)",
 "path":"file path (upload)",
 "reason":"short explanation",
 "published_url":"(done only)","published_id":"(done only)"}
Use "done" once the goal is visibly achieved, "abort" if the page makes the
goal impossible.`

// VisionClient is a Planner backed by an OpenAI-compatible
// chat-completions endpoint that accepts images.
type VisionClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewVisionClient(endpoint, apiKey, model string) *VisionClient {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	return &VisionClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *VisionClient) NextAction(ctx context.Context, req PlanRequest) (PlannedAction, Usage, error) {
	var action PlannedAction
	var usage Usage

	historyJSON, _ := json.Marshal(req.History)
	userContent := []map[string]any{
		{"type": "text", "text": fmt.Sprintf("Instructions:\n%s\n\nAction history:\n%s", req.Instructions, string(historyJSON))},
	}
	if len(req.ScreenshotPNG) > 0 {
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.ScreenshotPNG)
		userContent = append(userContent, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": dataURL},
		})
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent},
		},
		"max_tokens": 512,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return action, usage, fmt.Errorf("encoding plan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return action, usage, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return action, usage, fmt.Errorf("calling vision model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return action, usage, fmt.Errorf("vision model rate limit: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return action, usage, fmt.Errorf("vision model returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return action, usage, fmt.Errorf("decoding vision model response: %w", err)
	}
	usage.InputTokens = result.Usage.PromptTokens
	usage.OutputTokens = result.Usage.CompletionTokens

	if len(result.Choices) == 0 {
		return action, usage, fmt.Errorf("vision model returned no choices")
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &action); err != nil {
		return action, usage, fmt.Errorf("parsing planned action %q: %w", content, err)
	}
	return action, usage, nil
}
