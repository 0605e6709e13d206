package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider names the adapter understands. The local provider gets the
// chat-completions dialect first with a native-endpoint fallback; every
// other provider speaks chat-completions only.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderCustom = "custom"
)

const defaultCallTimeout = 180 * time.Second

// Client is the unified LLM adapter: one call/stream/vision surface over
// the provider dialects.
type Client struct {
	provider string
	apiBase  string
	apiKey   string
	model    string

	hc    *http.Client
	retry RetryConfig
}

// Config selects the provider dialect and endpoint.
type Config struct {
	Provider string // "ollama" (default), "openai", "custom"
	APIBase  string // default http://localhost:11434
	APIKey   string
	Model    string // default model when a call does not name one
}

// New builds an adapter. The zero-value HTTP timeout is intentional:
// per-call deadlines come from Options.Timeout via context.
func New(cfg Config) *Client {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOllama
	}
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = "http://localhost:11434"
	}
	return &Client{
		provider: provider,
		apiBase:  apiBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		hc:       &http.Client{},
		retry:    DefaultRetryConfig(),
	}
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

// DefaultModel returns the configured fallback model.
func (c *Client) DefaultModel() string { return c.model }

func (c *Client) isLocal() bool { return c.provider == ProviderOllama }

func (c *Client) resolveModel(model string) string {
	if model == "" {
		return c.model
	}
	return model
}

// ErrModelNotFound wraps provider "model not found" failures; these are
// never retried and carry remediation guidance for the user.
var ErrModelNotFound = errors.New("model not found")

// isNotFound matches model-not-found failures specifically. A bare
// "404 page not found" (endpoint missing) must NOT match, so the local
// dialect fallback still gets its chance.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "does not exist") {
		return true
	}
	return strings.Contains(msg, "not found") && strings.Contains(msg, "model")
}

func (c *Client) notFoundError(model string, err error) error {
	hint := fmt.Sprintf("model %q is not available", model)
	if c.isLocal() {
		hint += fmt.Sprintf(" — pull it first (e.g. `ollama pull %s`) or pick another model from /models", model)
	}
	return fmt.Errorf("%s: %w: %v", hint, ErrModelNotFound, err)
}

// Call sends one completion request and returns the unified reply.
// Local provider: chat-completions dialect first, native endpoint on
// empty or failed result. Escalating retries on 400/422 progressively
// drop response_format, then tools, then raise temperature and token
// head-room.
func (c *Client) Call(ctx context.Context, model string, messages []Message, opts Options) (*Reply, error) {
	model = c.resolveModel(model)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := c.callWithEscalation(ctx, model, messages, opts)
	if err == nil && !emptyReply(reply) {
		return reply, nil
	}
	if err != nil && isNotFound(err) {
		return nil, c.notFoundError(model, err)
	}

	if c.isLocal() {
		slog.Debug("chat-completions dialect failed, trying native endpoint",
			"model", model, "error", err)
		nativeReply, nativeErr := c.callNative(ctx, model, messages, opts)
		if nativeErr == nil {
			return nativeReply, nil
		}
		if isNotFound(nativeErr) {
			return nil, c.notFoundError(model, nativeErr)
		}
		if err == nil {
			err = nativeErr
		}
	}

	if err != nil {
		return nil, err
	}
	// Both dialects produced an empty reply; surface it as-is so the
	// engine can decide whether to retry the step.
	return reply, nil
}

func emptyReply(r *Reply) bool {
	return r == nil || (r.Content == "" && len(r.ToolCalls) == 0)
}

// callWithEscalation performs the chat-completions call, downgrading the
// request shape on 400/422: first without response_format, then without
// tools, finally with raised temperature and max tokens.
func (c *Client) callWithEscalation(ctx context.Context, model string, messages []Message, opts Options) (*Reply, error) {
	attempt := opts
	var lastErr error
	for round := 0; round < 4; round++ {
		reply, err := c.callChatCompletions(ctx, model, messages, attempt)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || (httpErr.Status != 400 && httpErr.Status != 422) {
			return nil, err
		}
		switch round {
		case 0:
			attempt.ExpectJSON = false
		case 1:
			attempt.Tools = nil
			attempt.ToolChoice = ""
		case 2:
			attempt.Temperature = min(attempt.Temperature+0.3, 1.0)
			if attempt.MaxTokens > 0 {
				attempt.MaxTokens *= 2
			}
		}
		slog.Debug("escalating retry after client error",
			"round", round+1, "status", httpErr.Status, "model", model)
	}
	return nil, lastErr
}

// Stream yields content deltas through fn until the stream terminates.
// An empty model reply yields no deltas and returns nil.
func (c *Client) Stream(ctx context.Context, model string, messages []Message, opts Options, fn func(delta string)) error {
	model = c.resolveModel(model)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.streamChatCompletions(ctx, model, messages, opts, fn)
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return c.notFoundError(model, err)
	}
	if c.isLocal() {
		slog.Debug("chat-completions stream failed, trying native endpoint", "error", err)
		if nativeErr := c.streamNative(ctx, model, messages, opts, fn); nativeErr == nil {
			return nil
		} else if isNotFound(nativeErr) {
			return c.notFoundError(model, nativeErr)
		}
	}
	return err
}

// Health probes the provider.
func (c *Client) Health(ctx context.Context) (ok bool, provider string, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if c.isLocal() {
		if _, err := c.nativeTags(ctx); err == nil {
			return true, c.provider, nil
		}
	}
	if _, err := c.chatCompletionsModels(ctx); err != nil {
		return false, c.provider, err
	}
	return true, c.provider, nil
}
