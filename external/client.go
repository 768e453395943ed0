// Generation client with bounded retries.
//
// Client wraps CallLLM with a fixed number of attempts, a fixed pause between
// them and a per-attempt timeout. Auth and config failures are returned after
// the first attempt.
package external

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// CallObserver receives the outcome of every Generate call.
type CallObserver interface {
	RecordGeneration(attempts int, err error)
}

// Client generates text through a configured provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	observer   CallObserver
}

// NewClient creates a client for cfg. The bedrock provider loads AWS
// credentials here so a misconfiguration surfaces before any run starts.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	defaults := DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = DetectProvider(cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}

	c := &Client{cfg: cfg, httpClient: &http.Client{}}
	if cfg.Provider == ProviderBedrock {
		transport, err := NewBedrockSigningTransport(ctx, cfg.Region, nil)
		if err != nil {
			return nil, err
		}
		c.httpClient = &http.Client{Transport: transport}
	}
	return c, nil
}

// SetObserver installs an observer for call outcomes.
func (c *Client) SetObserver(o CallObserver) { c.observer = o }

// SetHTTPClient replaces the HTTP client used for every attempt.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Generate sends req, retrying transient failures.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	params := CallLLMParams{
		Provider:     c.cfg.Provider,
		Endpoint:     c.cfg.Endpoint,
		APIKey:       c.cfg.APIKey,
		Model:        model,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		MaxTokens:    c.cfg.MaxTokens,
		Timeout:      c.cfg.Timeout,
		HTTPClient:   c.httpClient,
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			log.Debug().
				Int("attempt", attempt).
				Str("provider", c.cfg.Provider).
				Dur("backoff", c.cfg.RetryBackoff).
				Msg("external: retrying generation request")
			if err := sleep(ctx, c.cfg.RetryBackoff); err != nil {
				break
			}
		}
		attempts = attempt

		start := time.Now()
		result, err := CallLLM(ctx, params)
		if err == nil {
			log.Debug().
				Str("provider", result.Provider).
				Str("model", model).
				Int("input_tokens", result.InputTokens).
				Int("output_tokens", result.OutputTokens).
				Dur("duration", time.Since(start)).
				Msg("external: generation succeeded")
			c.observe(attempts, nil)
			return result.Content, nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.MaxRetries).
			Str("kind", string(KindOf(err))).
			Msg("external: generation attempt failed")
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	c.observe(attempts, lastErr)
	return "", fmt.Errorf("generation failed after %d attempt(s): %w", attempts, lastErr)
}

// Check sends a minimal request to verify endpoint, key and model.
func (c *Client) Check(ctx context.Context) error {
	_, err := CallLLM(ctx, CallLLMParams{
		Provider:   c.cfg.Provider,
		Endpoint:   c.cfg.Endpoint,
		APIKey:     c.cfg.APIKey,
		Model:      c.cfg.Model,
		UserPrompt: "Hi",
		MaxTokens:  5,
		Timeout:    c.cfg.Timeout,
		HTTPClient: c.httpClient,
	})
	return err
}

func (c *Client) observe(attempts int, err error) {
	if c.observer != nil {
		c.observer.RecordGeneration(attempts, err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
