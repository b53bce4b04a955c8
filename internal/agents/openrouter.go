package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/timeouts"
)

// DefaultBaseURL is the OpenRouter API root
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Provider executes chat completions
type Provider interface {
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// ClientConfig configures an OpenRouterClient
type ClientConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

// OpenRouterClient handles communication with an OpenRouter-compatible API
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenRouterClient creates a new OpenRouter client
func NewOpenRouterClient(cfg ClientConfig) *OpenRouterClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.Completion}
	}

	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      cfg.Model,
		httpClient: httpClient,
	}
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the request to the completions endpoint
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the response from the completions endpoint
type CompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int     `json:"index"`
		Message Message `json:"message"`
		Reason  string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Content returns the first choice's message content
func (r *CompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// CreateCompletion calls the completions endpoint
func (c *OpenRouterClient) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if c.apiKey == "" {
		return nil, apperrors.New(apperrors.CodeNoProvider, "OPENROUTER_API_KEY not set")
	}

	// Set defaults
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 2048
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://dragons-labyrinth.local")
	httpReq.Header.Set("X-Title", "Dragon's Labyrinth")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.CodeTimeout, "completion deadline exceeded", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeTransport, "failed to execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTransport, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.WithMetadata(apperrors.CodeTransport,
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
			map[string]string{"status": strconv.Itoa(resp.StatusCode)})
	}

	var completionResp CompletionResponse
	if err := json.Unmarshal(respBody, &completionResp); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTransport, "failed to parse response", err)
	}

	if completionResp.Error != nil {
		return nil, apperrors.Newf(apperrors.CodeTransport, "API error: %s (%s)", completionResp.Error.Message, completionResp.Error.Type)
	}

	if len(completionResp.Choices) == 0 {
		return nil, apperrors.New(apperrors.CodeTransport, "no choices in response")
	}

	return &completionResp, nil
}

// Retryable reports whether a completion error is worth retrying. Client
// errors other than 429 and missing credentials are not.
func Retryable(err error) bool {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case apperrors.CodeNoProvider:
		return false
	case apperrors.CodeTransport:
		status, _ := strconv.Atoi(appErr.Metadata["status"])
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
