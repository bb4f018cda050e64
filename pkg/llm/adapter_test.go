package llm

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilkit/council/pkg/models"
)

func TestChatCompletionsBuildRequest(t *testing.T) {
	adapter := NewOpenAIAdapter("https://api.example.test/v1/")
	inv := models.ModelInvocation{
		Provider:            models.ProviderOpenAI,
		Model:               "gpt-4o",
		SystemPrompt:        "you are terse",
		UserPrompt:          "explain raft",
		MaxCompletionTokens: 512,
	}

	req, err := adapter.BuildRequest(inv, "sk-secret")
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://api.example.test/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-secret", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var payload chatRequest
	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "gpt-4o", payload.Model)
	assert.Equal(t, 512, payload.MaxCompletionTokens)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, "system", payload.Messages[0].Role)
	assert.Equal(t, "user", payload.Messages[1].Role)
	assert.Equal(t, "explain raft", payload.Messages[1].Content)
}

func TestChatCompletionsOmitsEmptySystemPrompt(t *testing.T) {
	adapter := NewKimiAdapter("")
	req, err := adapter.BuildRequest(models.ModelInvocation{
		Model:      "moonshot-v1-32k",
		UserPrompt: "hi",
	}, "key")
	require.NoError(t, err)

	var payload chatRequest
	raw, _ := io.ReadAll(req.Body)
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Len(t, payload.Messages, 1)
	assert.Equal(t, "user", payload.Messages[0].Role)
}

func TestChatCompletionsParseResponse(t *testing.T) {
	adapter := NewOpenAIAdapter("")
	body := `{
		"model": "gpt-4o-2024-08-06",
		"choices": [{"message": {"role": "assistant", "content": "answer"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 7, "completion_tokens": 21}
	}`

	c, err := adapter.ParseResponse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "answer", c.Content)
	assert.Equal(t, "gpt-4o-2024-08-06", c.Model)
	assert.Equal(t, 7, c.InputTokens)
	assert.Equal(t, 21, c.OutputTokens)
	assert.Equal(t, "stop", c.FinishReason)
}

func TestChatCompletionsParseErrors(t *testing.T) {
	adapter := NewPerplexityAdapter("")

	_, err := adapter.ParseResponse([]byte("not json"))
	assert.Error(t, err)

	_, err = adapter.ParseResponse([]byte(`{"choices": []}`))
	assert.ErrorContains(t, err, "no choices")

	_, err = adapter.ParseResponse([]byte(`{"choices": [{"message": {"content": ""}}]}`))
	assert.ErrorContains(t, err, "empty message")
}

func TestGeminiBuildRequest(t *testing.T) {
	adapter := NewGeminiAdapter("https://gen.example.test/v1beta")
	inv := models.ModelInvocation{
		Provider:            models.ProviderGemini,
		Model:               "gemini-2.0-flash",
		SystemPrompt:        "be precise",
		UserPrompt:          "summarise",
		MaxCompletionTokens: 1024,
	}

	req, err := adapter.BuildRequest(inv, "AIza-test")
	require.NoError(t, err)

	assert.Equal(t, "https://gen.example.test/v1beta/models/gemini-2.0-flash:generateContent", req.URL.String())
	assert.Equal(t, "AIza-test", req.Header.Get("x-goog-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))

	var payload geminiRequest
	raw, _ := io.ReadAll(req.Body)
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NotNil(t, payload.SystemInstruction)
	assert.Equal(t, "be precise", payload.SystemInstruction.Parts[0].Text)
	require.Len(t, payload.Contents, 1)
	assert.Equal(t, "user", payload.Contents[0].Role)
	assert.Equal(t, 1024, payload.GenerationConfig.MaxOutputTokens)
}

func TestGeminiParseResponseConcatenatesParts(t *testing.T) {
	adapter := NewGeminiAdapter("")
	body := `{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "first "}, {"text": "second"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 9},
		"modelVersion": "gemini-2.0-flash-001"
	}`

	c, err := adapter.ParseResponse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "first second", c.Content)
	assert.Equal(t, "gemini-2.0-flash-001", c.Model)
	assert.Equal(t, 4, c.InputTokens)
	assert.Equal(t, 9, c.OutputTokens)
}

func TestGeminiParseErrors(t *testing.T) {
	adapter := NewGeminiAdapter("")

	_, err := adapter.ParseResponse([]byte(`{"candidates": []}`))
	assert.ErrorContains(t, err, "no candidates")

	_, err = adapter.ParseResponse([]byte(`{"candidates": [{"content": {"parts": []}}]}`))
	assert.ErrorContains(t, err, "no text parts")
}
