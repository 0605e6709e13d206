package llm

import (
	"context"
	"sync/atomic"
)

// Handle is a swappable Client reference. The gateway's /config endpoint
// replaces the underlying client when provider settings change, so the
// change applies to the next call without rebuilding the engine.
type Handle struct {
	p atomic.Pointer[Client]
}

func NewHandle(c *Client) *Handle {
	h := &Handle{}
	h.p.Store(c)
	return h
}

// Swap replaces the underlying client. In-flight calls finish on the old
// one.
func (h *Handle) Swap(c *Client) { h.p.Store(c) }

func (h *Handle) client() *Client { return h.p.Load() }

func (h *Handle) Provider() string     { return h.client().Provider() }
func (h *Handle) DefaultModel() string { return h.client().DefaultModel() }

func (h *Handle) Call(ctx context.Context, model string, messages []Message, opts Options) (*Reply, error) {
	return h.client().Call(ctx, model, messages, opts)
}

func (h *Handle) Stream(ctx context.Context, model string, messages []Message, opts Options, fn func(delta string)) error {
	return h.client().Stream(ctx, model, messages, opts, fn)
}

func (h *Handle) CallVision(ctx context.Context, model, prompt, imageBase64, mimeType string, opts Options) (string, error) {
	return h.client().CallVision(ctx, model, prompt, imageBase64, mimeType, opts)
}

func (h *Handle) ListModels(ctx context.Context) ([]ModelEntry, error) {
	return h.client().ListModels(ctx)
}

func (h *Handle) Health(ctx context.Context) (ok bool, provider string, err error) {
	return h.client().Health(ctx)
}
