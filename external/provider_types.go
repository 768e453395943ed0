// Wire types for the raw-HTTP providers (Anthropic, Bedrock, Gemini).
//
// OpenAI goes through github.com/openai/openai-go and needs no types here.
package external

import (
	"errors"
	"strings"
)

// =============================================================================
// ANTHROPIC / BEDROCK
// =============================================================================

// AnthropicRequest is a Messages API request. Bedrock accepts the same body
// with AnthropicVersion set and Model ignored (the model is in the URL).
type AnthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version,omitempty"`
	Model            string             `json:"model,omitempty"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []AnthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature"`
}

// AnthropicMessage is one conversation turn.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicResponse is the subset of a Messages API response we read.
type AnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ExtractAnthropicResponse concatenates the text blocks of a response.
func ExtractAnthropicResponse(resp *AnthropicResponse) (string, error) {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text content in response")
	}
	return b.String(), nil
}

// =============================================================================
// GEMINI
// =============================================================================

// GeminiRequest is a generateContent request.
type GeminiRequest struct {
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	Contents          []GeminiContent         `json:"contents"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent is one content entry.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is one text part.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiGenerationConfig holds sampling settings.
type GeminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

// GeminiResponse is the subset of a generateContent response we read.
type GeminiResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// ExtractGeminiResponse concatenates the parts of the first candidate.
func ExtractGeminiResponse(resp *GeminiResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", errors.New("no text content in response")
	}
	return b.String(), nil
}
