// Package suggest is the client for the external generation service. It is a
// collaborator, not a pipeline stage: failures and empty responses degrade to
// "no suggestion" at the call site and never fail a cycle.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"metamorph/internal/config"
	"metamorph/internal/logging"
)

// Client wraps the Gemini API with a shared minimum-interval gate and
// bounded exponential-backoff retries. It implements types.LLMClient.
type Client struct {
	model       string
	minInterval time.Duration
	maxRetries  int
	timeout     time.Duration

	// generate performs one request. Swappable for tests.
	generate func(ctx context.Context, system, user string) (string, error)

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient connects to the generation service. The API key must be present
// in the config (or injected via environment overrides at load time).
func NewClient(ctx context.Context, cfg config.SuggestConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for the generation service")
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	c := &Client{
		model:       cfg.Model,
		minInterval: cfg.MinInterval,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout,
	}
	c.generate = func(ctx context.Context, system, user string) (string, error) {
		var genCfg *genai.GenerateContentConfig
		if system != "" {
			genCfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			}
		}
		resp, err := genaiClient.Models.GenerateContent(ctx, c.model, genai.Text(user), genCfg)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return c, nil
}

// Complete sends a prompt and returns the free-text completion.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt under a system instruction. Callers are
// serialized: the gate holds all of them to the minimum request interval.
func (c *Client) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.minInterval - time.Since(c.lastRequest); wait > 0 {
		logging.Suggest("rate gate: waiting %s", wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	logging.Audit().Log(logging.AuditEvent{
		EventType: logging.AuditSuggestRequest,
		Category:  string(logging.CategorySuggest),
		Message:   fmt.Sprintf("prompt %d chars", len(user)),
	})

	var lastErr error
	attempts := c.maxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := (1 << uint(i-1)) * time.Second
			logging.Suggest("retry %d/%d after %s: %v", i, attempts-1, backoff, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		text, err := c.generate(reqCtx, system, user)
		if cancel != nil {
			cancel()
		}
		c.lastRequest = time.Now()

		if err == nil {
			logging.Audit().Log(logging.AuditEvent{
				EventType: logging.AuditSuggestResponse,
				Category:  string(logging.CategorySuggest),
				Success:   true,
				Message:   fmt.Sprintf("response %d chars", len(text)),
			})
			return strings.TrimSpace(text), nil
		}
		lastErr = err
	}

	logging.Audit().Log(logging.AuditEvent{
		EventType: logging.AuditSuggestError,
		Category:  string(logging.CategorySuggest),
		Error:     lastErr.Error(),
	})
	return "", fmt.Errorf("generation service failed after %d attempts: %w", attempts, lastErr)
}
