package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skillsmith/coursegen/config"
)

// OpenAIProvider talks to the OpenAI API (or any compatible endpoint).
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	models     map[string]config.LLMModel
	maxRetries int
	httpClient *http.Client
}

// NewLLMProvider builds a provider from config. Only the "openai" type is
// supported; compatible gateways are reached through base_url.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	for name, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			if strings.TrimSpace(pc.APIKey) == "" {
				return nil, fmt.Errorf("llm provider %s: api_key required", name)
			}
			base := pc.BaseURL
			if base == "" {
				base = "https://api.openai.com/v1"
			}
			timeout := pc.Timeout
			if timeout <= 0 {
				timeout = 120 * time.Second
			}
			retries := pc.MaxRetries
			if retries <= 0 {
				retries = 3
			}
			return &OpenAIProvider{
				apiKey:     pc.APIKey,
				baseURL:    strings.TrimRight(base, "/"),
				models:     pc.Models,
				maxRetries: retries,
				httpClient: &http.Client{Timeout: timeout},
			}, nil
		default:
			return nil, fmt.Errorf("unsupported llm provider type: %s", pc.Type)
		}
	}
	return nil, fmt.Errorf("no llm providers configured")
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []ChatMessage    `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends a plain system+user exchange and returns the text reply.
func (p *OpenAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	text, _, _, err := p.GenerateWithTokens(ctx, systemPrompt, userPrompt, model)
	return text, err
}

// GenerateWithTokens is Generate plus usage accounting.
func (p *OpenAIProvider) GenerateWithTokens(ctx context.Context, systemPrompt, userPrompt, model string) (string, int64, int64, error) {
	messages := []ChatMessage{}
	if systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: userPrompt})

	resp, err := p.ChatWithTools(ctx, model, messages, nil)
	if err != nil {
		return "", 0, 0, err
	}
	return resp.Content, resp.PromptTokens, resp.CompletionTokens, nil
}

// ChatWithTools runs one chat-completions round, advertising tools when given.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition) (ChatResponse, error) {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return ChatResponse{}, err
	}

	req := chatRequest{
		Model:       info.APIName,
		Messages:    messages,
		Temperature: info.Temperature,
		MaxTokens:   info.MaxTokens,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	body, err := p.post(ctx, "/chat/completions", req)
	if err != nil {
		return ChatResponse{}, err
	}

	var completion chatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return ChatResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if completion.Error != nil {
		return ChatResponse{}, fmt.Errorf("llm error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("no choices in response")
	}

	choice := completion.Choices[0]
	return ChatResponse{
		Content:          choice.Message.Content,
		ToolCalls:        choice.Message.ToolCalls,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}

// Speak synthesizes speech audio (mp3 bytes) for the given input text.
func (p *OpenAIProvider) Speak(ctx context.Context, input, voice, model string) ([]byte, error) {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"model": info.APIName,
		"input": input,
		"voice": voice,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech API returned status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// GetModelInfo resolves a logical model name from config.
func (p *OpenAIProvider) GetModelInfo(model string) (ModelInfo, error) {
	m, ok := p.models[model]
	if !ok {
		return ModelInfo{}, fmt.Errorf("unknown model: %s", model)
	}
	apiName := m.APIName
	if apiName == "" {
		apiName = m.Name
	}
	return ModelInfo{
		Name:            m.Name,
		APIName:         apiName,
		MaxTokens:       m.MaxTokens,
		Temperature:     m.Temperature,
		CostPer1K:       m.CostPer1K,
		CostPer1KOutput: m.CostPer1KOutput,
	}, nil
}

// CalculateCost converts token usage into dollars via the per-1K config.
func (p *OpenAIProvider) CalculateCost(model string, promptTokens, completionTokens int64) float64 {
	m, ok := p.models[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1000*m.CostPer1K + float64(completionTokens)/1000*m.CostPer1KOutput
}

// post sends a JSON request and retries on throttling or server errors.
func (p *OpenAIProvider) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to send request: %w", err)
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("API returned status: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", p.maxRetries+1, lastErr)
}
