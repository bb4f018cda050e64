package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/councilkit/council/pkg/models"
)

// chatCompletionsAdapter implements the OpenAI chat-completions wire shape
// shared by the OpenAI, Perplexity, and Kimi families. Only the base URL,
// defaults, and provider id differ per family.
type chatCompletionsAdapter struct {
	id       models.ProviderID
	baseURL  string
	defaults models.ProviderDefaults
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *chatCompletionsAdapter) ID() models.ProviderID             { return a.id }
func (a *chatCompletionsAdapter) Defaults() models.ProviderDefaults { return a.defaults }

func (a *chatCompletionsAdapter) BuildRequest(inv models.ModelInvocation, credential string) (*http.Request, error) {
	msgs := []chatMessage{}
	if inv.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: inv.SystemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: inv.UserPrompt})

	payload := chatRequest{
		Model:               inv.Model,
		Messages:            msgs,
		MaxCompletionTokens: inv.MaxCompletionTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimSuffix(a.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)
	return req, nil
}

func (a *chatCompletionsAdapter) ParseResponse(body []byte) (*Completion, error) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", a.id, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s response contained no choices", a.id)
	}
	content := parsed.Choices[0].Message.Content
	if content == "" {
		return nil, fmt.Errorf("%s response contained an empty message", a.id)
	}
	return &Completion{
		Content:      content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}

// NewOpenAIAdapter creates the OpenAI-family adapter. An empty baseURL uses
// the public API endpoint.
func NewOpenAIAdapter(baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &chatCompletionsAdapter{
		id:      models.ProviderOpenAI,
		baseURL: baseURL,
		defaults: models.ProviderDefaults{
			ID:                  models.ProviderOpenAI,
			DefaultModel:        "gpt-4o",
			MaxCompletionTokens: 4096,
			RateLimit:           models.RateLimit{RPS: 2, Burst: 4, Concurrency: 4},
		},
	}
}

// NewPerplexityAdapter creates the Perplexity-family adapter. Perplexity
// speaks the chat-completions shape on its own host.
func NewPerplexityAdapter(baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	return &chatCompletionsAdapter{
		id:      models.ProviderPerplexity,
		baseURL: baseURL,
		defaults: models.ProviderDefaults{
			ID:                  models.ProviderPerplexity,
			DefaultModel:        "sonar-pro",
			MaxCompletionTokens: 4096,
			RateLimit:           models.RateLimit{RPS: 1, Burst: 2, Concurrency: 2},
		},
	}
}

// NewKimiAdapter creates the Kimi (Moonshot) family adapter, also
// chat-completions compatible.
func NewKimiAdapter(baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://api.moonshot.ai/v1"
	}
	return &chatCompletionsAdapter{
		id:      models.ProviderKimi,
		baseURL: baseURL,
		defaults: models.ProviderDefaults{
			ID:                  models.ProviderKimi,
			DefaultModel:        "moonshot-v1-32k",
			MaxCompletionTokens: 4096,
			RateLimit:           models.RateLimit{RPS: 1, Burst: 2, Concurrency: 2},
		},
	}
}
