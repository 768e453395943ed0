// Provider-agnostic LLM call.
//
// CallLLM is the single entry point for one generation request against any
// supported provider. It makes exactly one attempt; retries live in Client.
//
// PROVIDERS:
//   - openai:    Chat Completions through github.com/openai/openai-go
//   - anthropic: Messages API over raw HTTP
//   - bedrock:   Messages API body, SigV4 signed by BedrockSigningTransport
//   - gemini:    generateContent over raw HTTP
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// DefaultTimeout for a single generation request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens caps generated output when none is configured.
	DefaultMaxTokens = 4096

	// maxResponseSize prevents OOM on unexpectedly large API responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500

	anthropicVersion = "2023-06-01"
	bedrockVersion   = "bedrock-2023-05-31"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// CallLLMParams contains parameters for one generation request.
type CallLLMParams struct {
	// Provider overrides detection from Endpoint.
	Provider string

	Endpoint     string
	APIKey       string
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Timeout      time.Duration

	// HTTPClient overrides the default client. Bedrock needs one carrying a
	// BedrockSigningTransport.
	HTTPClient *http.Client
}

func (p *CallLLMParams) validate() error {
	if p.Endpoint == "" {
		return errors.New("endpoint required")
	}
	if p.APIKey == "" && p.Provider != ProviderBedrock {
		return errors.New("api key required")
	}
	if p.Model == "" && p.Provider != ProviderBedrock {
		return errors.New("model required")
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	return nil
}

// CallLLMResult contains the response from an LLM call.
type CallLLMResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Provider     string
}

// CallLLM sends one generation request. Failures are *CallError.
func CallLLM(ctx context.Context, params CallLLMParams) (*CallLLMResult, error) {
	if params.Provider == "" {
		params.Provider = DetectProvider(params.Endpoint)
	}
	provider := params.Provider
	if err := params.validate(); err != nil {
		return nil, &CallError{Kind: KindConfig, Provider: provider, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	var (
		result *CallLLMResult
		err    error
	)
	if provider == ProviderOpenAI {
		result, err = callOpenAI(ctx, params)
	} else {
		result, err = callHTTP(ctx, params)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Content) == "" {
		return nil, &CallError{Kind: KindEmpty, Provider: provider, Err: errors.New("empty response content")}
	}
	return result, nil
}

// DetectProvider infers the provider from an endpoint URL.
func DetectProvider(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "bedrock"):
		return ProviderBedrock
	case strings.Contains(endpoint, "anthropic"):
		return ProviderAnthropic
	case strings.Contains(endpoint, "generativelanguage.googleapis.com"):
		return ProviderGemini
	default:
		return ProviderOpenAI
	}
}

// =============================================================================
// OPENAI (SDK)
// =============================================================================

// OpenAIBaseURL turns a configured endpoint into an SDK base URL:
// ".../v1/chat/completions" and ".../v1" both become ".../v1/".
func OpenAIBaseURL(endpoint string) string {
	base := strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/chat/completions")
	return strings.TrimRight(base, "/") + "/"
}

func callOpenAI(ctx context.Context, params CallLLMParams) (*CallLLMResult, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
		option.WithBaseURL(OpenAIBaseURL(params.Endpoint)),
		option.WithMaxRetries(0),
	}
	if params.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(params.HTTPClient))
	}
	client := openai.NewClient(opts...)

	// temperature omitted: o-series models reject it
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(params.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(params.SystemPrompt),
			openai.UserMessage(params.UserPrompt),
		},
		MaxCompletionTokens: openai.Int(int64(params.MaxTokens)),
	})
	if err != nil {
		return nil, transportError(ProviderOpenAI, err)
	}

	result := &CallLLMResult{
		Provider:     ProviderOpenAI,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	return result, nil
}

// =============================================================================
// RAW HTTP (ANTHROPIC, BEDROCK, GEMINI)
// =============================================================================

func callHTTP(ctx context.Context, params CallLLMParams) (*CallLLMResult, error) {
	provider := params.Provider

	body, err := buildRequestBody(params)
	if err != nil {
		return nil, &CallError{Kind: KindConfig, Provider: provider, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Kind: KindConfig, Provider: provider, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, provider, params.APIKey)

	client := params.HTTPClient
	if client == nil {
		client = &http.Client{} // timeout via context, not client
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(provider, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		errBody := string(respBody)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "... (truncated)"
		}
		return nil, statusError(provider, resp.StatusCode, errBody)
	}

	return parseResponse(provider, respBody)
}

func setAuthHeaders(req *http.Request, provider, apiKey string) {
	switch provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	case ProviderGemini:
		req.Header.Set("x-goog-api-key", apiKey)
	case ProviderBedrock:
		// signed by the transport
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func buildRequestBody(params CallLLMParams) ([]byte, error) {
	switch params.Provider {
	case ProviderGemini:
		return json.Marshal(&GeminiRequest{
			SystemInstruction: &GeminiContent{Parts: []GeminiPart{{Text: params.SystemPrompt}}},
			Contents:          []GeminiContent{{Role: "user", Parts: []GeminiPart{{Text: params.UserPrompt}}}},
			GenerationConfig:  &GeminiGenerationConfig{MaxOutputTokens: params.MaxTokens},
		})
	default: // anthropic, bedrock
		req := &AnthropicRequest{
			Model:     params.Model,
			MaxTokens: params.MaxTokens,
			System:    params.SystemPrompt,
			Messages:  []AnthropicMessage{{Role: "user", Content: params.UserPrompt}},
		}
		if params.Provider == ProviderBedrock {
			req.AnthropicVersion = bedrockVersion
			req.Model = ""
		}
		return json.Marshal(req)
	}
}

func parseResponse(provider string, body []byte) (*CallLLMResult, error) {
	result := &CallLLMResult{Provider: provider}

	switch provider {
	case ProviderGemini:
		var resp GeminiResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &CallError{Kind: KindEmpty, Provider: provider, Err: fmt.Errorf("parse response: %w", err)}
		}
		content, err := ExtractGeminiResponse(&resp)
		if err != nil {
			return nil, &CallError{Kind: KindEmpty, Provider: provider, Err: err}
		}
		result.Content = content
		result.InputTokens = resp.UsageMetadata.PromptTokenCount
		result.OutputTokens = resp.UsageMetadata.CandidatesTokenCount

	default: // anthropic, bedrock
		var resp AnthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &CallError{Kind: KindEmpty, Provider: provider, Err: fmt.Errorf("parse response: %w", err)}
		}
		content, err := ExtractAnthropicResponse(&resp)
		if err != nil {
			return nil, &CallError{Kind: KindEmpty, Provider: provider, Err: err}
		}
		result.Content = content
		result.InputTokens = resp.Usage.InputTokens
		result.OutputTokens = resp.Usage.OutputTokens
	}

	return result, nil
}
