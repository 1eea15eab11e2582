package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"cinememory/backend/internal/config"
)

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Request struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxOutputTokens int
}

type Response struct {
	Answer string
	Model  string
	Usage  Usage
}

// Client is one blocking round-trip to a language model.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type OpenAIChatClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
}

func NewOpenAIChatClient(cfg config.Config) *OpenAIChatClient {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &OpenAIChatClient{
		apiKey:          strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		model:           strings.TrimSpace(cfg.OpenAIModel),
		maxOutputTokens: cfg.AIMaxOutputTokens,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *OpenAIChatClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, errors.New("OPENAI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return Response{}, errors.New("OPENAI_BASE_URL is not configured")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	if model == "" {
		return Response{}, errors.New("OPENAI_MODEL is not configured")
	}
	userPrompt := strings.TrimSpace(req.UserPrompt)
	if userPrompt == "" {
		return Response{}, errors.New("AI request input is empty")
	}

	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.maxOutputTokens
	}

	bodyRaw, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return Response{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyRaw))
	if err != nil {
		return Response{}, err
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return Response{}, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return Response{}, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Response{}, &StatusError{
			StatusCode: response.StatusCode,
			Body:       truncateForLog(string(responseBody), 600),
		}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("decode chat completion: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, errors.New("openai response has no choices")
	}
	answer := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if answer == "" {
		if parsed.Choices[0].FinishReason == "length" {
			return Response{}, errors.New("openai response incomplete due max_tokens")
		}
		return Response{}, errors.New("openai response answer is empty")
	}

	modelName := strings.TrimSpace(parsed.Model)
	if modelName == "" {
		modelName = model
	}
	return Response{
		Answer: answer,
		Model:  modelName,
		Usage:  parsed.Usage,
	}, nil
}

// StatusError is a non-2xx reply from the model provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai chat completions error (%d): %s", e.StatusCode, e.Body)
}

// MockClient returns a fixed answer. Used for local runs without an API key and in tests.
type MockClient struct {
	Answer string
	Err    error
	Calls  int
	Last   Request
}

func (m *MockClient) Complete(_ context.Context, req Request) (Response, error) {
	m.Calls++
	m.Last = req
	if m.Err != nil {
		return Response{}, m.Err
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = "mock"
	}
	return Response{
		Answer: m.Answer,
		Model:  model,
		Usage:  Usage{PromptTokens: 120, CompletionTokens: 80, TotalTokens: 200},
	}, nil
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
