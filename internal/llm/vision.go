package llm

import (
	"context"
	"time"
)

// CallVision sends a prompt plus one inline image. The chat-completions
// image_url content-part shape is tried first; the local provider falls
// back to the native request with its images array.
func (c *Client) CallVision(ctx context.Context, model, prompt, imageBase64, mimeType string, opts Options) (string, error) {
	model = c.resolveModel(model)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := []Message{{
		Role:    RoleUser,
		Content: prompt,
		Images:  []Image{{MimeType: mimeType, Data: imageBase64}},
	}}

	reply, err := c.callChatCompletions(ctx, model, messages, opts)
	if err == nil && reply.Content != "" {
		return reply.Content, nil
	}
	if err != nil && isNotFound(err) {
		return "", c.notFoundError(model, err)
	}

	if c.isLocal() {
		nativeReply, nativeErr := c.callNative(ctx, model, messages, opts)
		if nativeErr == nil {
			return nativeReply.Content, nil
		}
		if err == nil {
			err = nativeErr
		}
	}
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}
