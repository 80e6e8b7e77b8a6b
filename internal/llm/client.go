// Package llm is the language-generation collaborator: one request with
// a system directive and the user's transcript, one generated reply.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sargilabs/voice-agent/internal/config"
)

// GenerationError aborts the current turn's response. Never retried
// automatically.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Generator produces a reply for one finished user utterance.
type Generator interface {
	Generate(ctx context.Context, userText string) (string, error)
}

// Client talks to an OpenAI-style chat completions endpoint.
type Client struct {
	httpClient   *http.Client
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// NewClient creates a generation client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: time.Duration(cfg.LLMTimeout) * time.Second},
		endpoint:     cfg.LLMEndpoint,
		apiKey:       cfg.LLMAPIKey,
		model:        cfg.LLMModel,
		systemPrompt: cfg.LLMSystemPrompt,
	}
}

// Generate requests one reply. All failures come back as a
// *GenerationError.
func (c *Client) Generate(ctx context.Context, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", &GenerationError{Err: fmt.Errorf("empty user text")}
	}

	reqBody, _ := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: userText},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &GenerationError{Err: fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &GenerationError{Err: err}
	}
	if len(cr.Choices) == 0 {
		return "", &GenerationError{Err: fmt.Errorf("empty choices")}
	}

	reply := strings.TrimSpace(cr.Choices[0].Message.Content)
	if reply == "" {
		return "", &GenerationError{Err: fmt.Errorf("empty reply")}
	}
	return reply, nil
}
