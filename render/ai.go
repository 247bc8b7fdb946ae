package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/stream-herald/config"
	"github.com/onnwee/stream-herald/monitor"
)

const (
	defaultAIBaseURL = "https://api.openai.com/v1"
	defaultAIModel   = "gpt-4o-mini"

	systemPrompt = "You write one short, upbeat social media announcement for a " +
		"livestream. Plain text only, no hashtags unless asked, at most 300 characters, " +
		"and always include the stream URL verbatim."
)

// AI generates announcement bodies through an OpenAI-compatible
// chat-completions endpoint. Any failure (network, status, empty reply) falls
// back to the wrapped static renderer; Render never returns an empty string
// and never blocks longer than the configured timeout.
type AI struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	static  *Static
	client  *http.Client
	log     *slog.Logger
}

// NewAI wraps static with AI generation.
func NewAI(baseURL, apiKey, model string, timeout time.Duration, static *Static) *AI {
	if baseURL == "" {
		baseURL = defaultAIBaseURL
	}
	if model == "" {
		model = defaultAIModel
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		static:  static,
		client:  &http.Client{Timeout: timeout},
		log:     slog.Default().With(slog.String("component", "render_ai")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Render asks the model for a body and falls back to the static renderer on
// any error path.
func (a *AI) Render(ctx context.Context, account config.Account, ev monitor.Event, platform string) string {
	body, err := a.generate(ctx, account, ev, platform)
	if err != nil {
		a.log.Warn("ai generation failed; using static renderer",
			slog.String("account", account.Key()),
			slog.Any("error", err))
		return a.static.Render(ctx, account, ev, platform)
	}
	return body
}

func (a *AI) generate(ctx context.Context, account config.Account, ev monitor.Event, platform string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := chatCompletionRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: a.prompt(account, ev, platform)},
		},
		Temperature: 0.8,
		MaxTokens:   150,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	body := strings.TrimSpace(out.Choices[0].Message.Content)
	if body == "" {
		return "", fmt.Errorf("empty completion")
	}
	// The URL must survive whatever the model did.
	if url := account.WatchURL(); url != "" && !strings.Contains(body, url) {
		body = body + "\n" + url
	}
	return body, nil
}

func (a *AI) prompt(account config.Account, ev monitor.Event, platform string) string {
	var sb strings.Builder
	switch ev.Type {
	case monitor.EventLiveEnded:
		fmt.Fprintf(&sb, "%s just finished streaming on %s.", account.Display(), account.Platform)
		if ev.Sample.ViewerCount > 0 {
			fmt.Fprintf(&sb, " Peak viewers: %d.", ev.Sample.ViewerCount)
		}
	default:
		fmt.Fprintf(&sb, "%s just went live on %s.", account.Display(), account.Platform)
	}
	if ev.Sample.Title != "" {
		fmt.Fprintf(&sb, " Stream title: %q.", ev.Sample.Title)
	}
	if ev.Sample.Category != "" {
		fmt.Fprintf(&sb, " Category: %s.", ev.Sample.Category)
	}
	fmt.Fprintf(&sb, " Target platform: %s. Stream URL: %s", platform, account.WatchURL())
	return sb.String()
}
