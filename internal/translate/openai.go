package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient implements the Gateway interface using OpenAI's API.
type OpenAIClient struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
	logger     *log.Logger
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	Model      string       // e.g., "gpt-4o-mini"
	APIURL     string       // override for tests, defaults to the OpenAI API
	HTTPClient *http.Client // shared pooled client; defaults to a plain client
}

// NewOpenAIClient creates a new OpenAI translation client.
func NewOpenAIClient(cfg OpenAIConfig, logger *log.Logger) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = openaiAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		model:      model,
		apiURL:     apiURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// chatRequest represents an OpenAI chat completion request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents an OpenAI chat completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPromptTemplate = `You are a professional medical interpreter facilitating a conversation between a healthcare provider and a patient. Translate the user's message from %s to %s. Preserve medical terminology precisely. Output only the translation, with no explanations, notes, or quotation marks.`

// Translate converts text between languages. Any failure collapses to
// ErrServiceUnavailable; the underlying cause is logged.
func (c *OpenAIClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, sourceLang, targetLang)},
			{Role: "user", Content: text},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.logger.Printf("translate: failed to marshal request: %v", err)
		return "", ErrServiceUnavailable
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Printf("translate: failed to create request: %v", err)
		return "", ErrServiceUnavailable
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Printf("translate: request failed: %v", err)
		return "", ErrServiceUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Printf("translate: API error: %s - %s", resp.Status, string(respBody))
		return "", ErrServiceUnavailable
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		c.logger.Printf("translate: failed to decode response: %v", err)
		return "", ErrServiceUnavailable
	}

	if len(chatResp.Choices) == 0 {
		c.logger.Printf("translate: no choices in response")
		return "", ErrServiceUnavailable
	}

	translated := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if translated == "" {
		c.logger.Printf("translate: empty translation for %q", text)
		return "", ErrServiceUnavailable
	}

	return translated, nil
}
