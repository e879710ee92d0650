// Package imageapi talks to the image-generation HTTP API directly, as an
// alternative backend to driving the web interface. The client paces its own
// requests and retries transient failures; rate-limit handling is left to the
// cooldown wrapper around it.
package imageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/cooldown"
	"github.com/hexhaunt/promptq-cli/internal/network"
)

// Client is a direct HTTP client for the generation endpoint.
type Client struct {
	endpoint       string
	apiKey         string
	model          string
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

// -- API Request/Response Structures (Internal to this file) --

type generationRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
}

type generationImage struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type generationError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

type generationResponse struct {
	Created int64             `json:"created"`
	Data    []generationImage `json:"data"`
	Error   *generationError  `json:"error,omitempty"`
}

// Image is one generated image reference.
type Image struct {
	URL           string
	B64JSON       string
	RevisedPrompt string
}

// Result is the parsed outcome of one generation call.
type Result struct {
	Prompt  string
	Images  []Image
	Created time.Time
}

// NewClient initializes the client from configuration.
func NewClient(cfg config.APIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("API endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: network.NewDecompressionTransport(nil),
		},
		limiter:        rate.NewLimiter(limit, burst),
		logger:         logger.Named("imageapi"),
		backoffFactory: defaultBackoffFactory,
	}, nil
}

func defaultBackoffFactory() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second
	return b
}

// Generate sends the prompt to the API and returns the generated images,
// retrying transient failures. A rate-limited response surfaces as a
// *cooldown.PayloadError so callers can apply the cooldown policy.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for request pacing: %w", err)
	}

	body, err := json.Marshal(generationRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var result *Result

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during generation request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var payload generationResponse
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		// Some backends report rate limits inside a 200 body.
		if cooldown.IsCooldownResponse(json.RawMessage(respBody)) {
			return backoff.Permanent(&cooldown.PayloadError{
				Message: "generation API reported a rate limit",
				Payload: json.RawMessage(respBody),
			})
		}

		if payload.Error != nil {
			return backoff.Permanent(fmt.Errorf("generation API error: %s", payload.Error.Message))
		}
		if len(payload.Data) == 0 {
			return backoff.Permanent(errors.New("generation API returned no images"))
		}

		images := make([]Image, 0, len(payload.Data))
		for _, d := range payload.Data {
			images = append(images, Image{URL: d.URL, B64JSON: d.B64JSON, RevisedPrompt: d.RevisedPrompt})
		}

		created := time.Now().UTC()
		if payload.Created > 0 {
			created = time.Unix(payload.Created, 0).UTC()
		}

		c.logger.Info("Image generation complete.",
			zap.Duration("duration", duration),
			zap.Int("images", len(images)))

		result = &Result{Prompt: prompt, Images: images, Created: created}
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) handleAPIError(statusCode int, body []byte) error {
	if statusCode == http.StatusTooManyRequests || cooldown.IsCooldownResponse(json.RawMessage(body)) {
		c.logger.Warn("Generation API reported a rate limit.", zap.Int("status", statusCode))
		return backoff.Permanent(&cooldown.PayloadError{
			Message: fmt.Sprintf("generation API rate limited (status %d)", statusCode),
			Payload: json.RawMessage(body),
		})
	}

	c.logger.Error("Generation API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("generation API error: status %d, body: %s", statusCode, string(body))

	if statusCode >= http.StatusInternalServerError {
		return err // Transient errors, retry.
	}
	return backoff.Permanent(err) // Permanent errors.
}
