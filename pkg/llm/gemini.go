package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/councilkit/council/pkg/models"
)

// geminiAdapter implements the Gemini generateContent wire shape. The
// credential travels in a header rather than the URL so request lines in
// transport logs stay free of key material.
type geminiAdapter struct {
	baseURL  string
	defaults models.ProviderDefaults
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (a *geminiAdapter) ID() models.ProviderID             { return models.ProviderGemini }
func (a *geminiAdapter) Defaults() models.ProviderDefaults { return a.defaults }

func (a *geminiAdapter) BuildRequest(inv models.ModelInvocation, credential string) (*http.Request, error) {
	payload := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: inv.UserPrompt}}},
		},
	}
	if inv.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: inv.SystemPrompt}}}
	}
	payload.GenerationConfig.MaxOutputTokens = inv.MaxCompletionTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimSuffix(a.baseURL, "/"), inv.Model)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", credential)
	return req, nil
}

func (a *geminiAdapter) ParseResponse(body []byte) (*Completion, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response contained no candidates")
	}
	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("gemini response contained no text parts")
	}
	return &Completion{
		Content:      text.String(),
		Model:        parsed.ModelVersion,
		InputTokens:  parsed.UsageMetadata.PromptTokenCount,
		OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		FinishReason: parsed.Candidates[0].FinishReason,
	}, nil
}

// NewGeminiAdapter creates the Gemini-family adapter. An empty baseURL uses
// the public generative language endpoint.
func NewGeminiAdapter(baseURL string) Adapter {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &geminiAdapter{
		baseURL: baseURL,
		defaults: models.ProviderDefaults{
			ID:                  models.ProviderGemini,
			DefaultModel:        "gemini-2.0-flash",
			MaxCompletionTokens: 8192,
			RateLimit:           models.RateLimit{RPS: 2, Burst: 4, Concurrency: 4},
		},
	}
}
