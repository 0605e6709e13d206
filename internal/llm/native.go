package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Native local dialect: POST {base}/api/chat with line-delimited JSON
// responses, GET {base}/api/tags for installed models.

type nativeMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type nativeRequest struct {
	Model    string                 `json:"model"`
	Messages []nativeMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   string                 `json:"format,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type nativeResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (c *Client) buildNativeRequest(model string, messages []Message, opts Options, stream bool) nativeRequest {
	msgs := make([]nativeMessage, 0, len(messages))
	for _, m := range messages {
		nm := nativeMessage{Role: m.Role, Content: m.Content}
		for _, img := range m.Images {
			nm.Images = append(nm.Images, img.Data)
		}
		msgs = append(msgs, nm)
	}

	req := nativeRequest{Model: model, Messages: msgs, Stream: stream}
	if opts.ExpectJSON {
		req.Format = "json"
	}
	options := map[string]interface{}{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		req.Options = options
	}
	return req
}

func (c *Client) doNativeRequest(ctx context.Context, req nativeRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal native request: %w", c.provider, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: native request failed: %w", c.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		resp.Body.Close()
		return nil, &HTTPError{
			Status: resp.StatusCode,
			Body:   fmt.Sprintf("%s: %s", c.provider, extractNativeError(respBody)),
		}
	}
	return resp.Body, nil
}

// extractNativeError pulls the `error` field out of a native error body,
// falling back to the raw text.
func extractNativeError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) callNative(ctx context.Context, model string, messages []Message, opts Options) (*Reply, error) {
	req := c.buildNativeRequest(model, messages, opts, false)

	raw, err := RetryDo(ctx, c.retry, func() ([]byte, error) {
		respBody, err := c.doNativeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()
		return io.ReadAll(respBody)
	})
	if err != nil {
		return nil, err
	}

	var resp nativeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode native response: %w", c.provider, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s: %s", c.provider, resp.Error)
	}
	return &Reply{Content: resp.Message.Content}, nil
}

// streamNative reads line-delimited JSON chunks until done=true.
func (c *Client) streamNative(ctx context.Context, model string, messages []Message, opts Options, fn func(delta string)) error {
	req := c.buildNativeRequest(model, messages, opts, true)

	respBody, err := RetryDo(ctx, c.retry, func() (io.ReadCloser, error) {
		return c.doNativeRequest(ctx, req)
	})
	if err != nil {
		return err
	}
	defer respBody.Close()

	reader := bufio.NewReader(respBody)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var chunk nativeResponse
			if jsonErr := json.Unmarshal(line, &chunk); jsonErr == nil {
				if chunk.Error != "" {
					return fmt.Errorf("%s: %s", c.provider, chunk.Error)
				}
				if chunk.Message.Content != "" {
					fn(chunk.Message.Content)
				}
				if chunk.Done {
					return nil
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: read stream: %w", c.provider, err)
		}
	}
}

// ModelEntry is one model reported by the provider.
type ModelEntry struct {
	ID          string
	DisplayName string
	Size        int64
	Family      string
}

type nativeTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Size    int64  `json:"size"`
		Details struct {
			Family string `json:"family"`
		} `json:"details"`
	} `json:"models"`
}

func (c *Client) nativeTags(ctx context.Context) ([]ModelEntry, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: list tags: %w", c.provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var tags nativeTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%s: decode tags: %w", c.provider, err)
	}
	out := make([]ModelEntry, 0, len(tags.Models))
	for _, m := range tags.Models {
		out = append(out, ModelEntry{
			ID:          m.Name,
			DisplayName: m.Name,
			Size:        m.Size,
			Family:      m.Details.Family,
		})
	}
	return out, nil
}

// ListModels prefers the native tag endpoint and falls back to the
// chat-completions models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]ModelEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if c.isLocal() {
		if models, err := c.nativeTags(ctx); err == nil {
			return models, nil
		}
	}
	return c.chatCompletionsModels(ctx)
}
