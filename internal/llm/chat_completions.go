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
)

// chat-completions dialect: POST {base}/v1/chat/completions with the
// OpenAI wire format. The local provider serves this under /v1; hosted
// providers bake it into their API base already.

func (c *Client) chatPath() string {
	if c.isLocal() {
		return "/v1/chat/completions"
	}
	return "/chat/completions"
}

func (c *Client) modelsPath() string {
	if c.isLocal() {
		return "/v1/models"
	}
	return "/models"
}

func (c *Client) buildChatBody(model string, messages []Message, opts Options, stream bool) map[string]interface{} {
	msgs := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		msg := map[string]interface{}{"role": m.Role}
		if m.Role == RoleUser && len(m.Images) > 0 {
			var parts []map[string]interface{}
			for _, img := range m.Images {
				parts = append(parts, map[string]interface{}{
					"type": "image_url",
					"image_url": map[string]interface{}{
						"url": fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data),
					},
				})
			}
			if m.Content != "" {
				parts = append(parts, map[string]interface{}{
					"type": "text",
					"text": m.Content,
				})
			}
			msg["content"] = parts
		} else {
			msg["content"] = m.Content
		}
		msgs = append(msgs, msg)
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": msgs,
		"stream":   stream,
	}
	if opts.MaxTokens > 0 {
		body["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		body["temperature"] = opts.Temperature
	}
	if opts.ExpectJSON {
		body["response_format"] = map[string]interface{}{"type": "json_object"}
	}
	if len(opts.Tools) > 0 {
		tools := make([]map[string]interface{}, len(opts.Tools))
		for i, t := range opts.Tools {
			tools[i] = map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			}
		}
		body["tools"] = tools
		choice := opts.ToolChoice
		if choice == "" {
			choice = "auto"
		}
		body["tool_choice"] = choice
	}
	return body
}

func (c *Client) doJSONRequest(ctx context.Context, path string, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", c.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", c.provider, strings.TrimSpace(string(respBody))),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content          json.RawMessage `json:"content"`
			ReasoningContent string          `json:"reasoning_content"`
			ToolCalls        []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Output string `json:"output"`
	Text   string `json:"text"`
}

func (c *Client) callChatCompletions(ctx context.Context, model string, messages []Message, opts Options) (*Reply, error) {
	body := c.buildChatBody(model, messages, opts, false)

	raw, err := RetryDo(ctx, c.retry, func() ([]byte, error) {
		respBody, err := c.doJSONRequest(ctx, c.chatPath(), body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()
		return io.ReadAll(respBody)
	})
	if err != nil {
		return nil, err
	}

	var resp chatCompletionsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.provider, err)
	}

	reply := &Reply{Content: extractContent(raw, &resp)}
	if len(resp.Choices) > 0 {
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			args := make(map[string]interface{})
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				Name: strings.TrimSpace(tc.Function.Name),
				Args: args,
			})
		}
	}
	return reply, nil
}

type chatCompletionsStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// streamChatCompletions reads SSE `data:` frames until [DONE] or a
// finish_reason=stop marker.
func (c *Client) streamChatCompletions(ctx context.Context, model string, messages []Message, opts Options, fn func(delta string)) error {
	body := c.buildChatBody(model, messages, opts, true)

	respBody, err := RetryDo(ctx, c.retry, func() (io.ReadCloser, error) {
		return c.doJSONRequest(ctx, c.chatPath(), body)
	})
	if err != nil {
		return err
	}
	defer respBody.Close()

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatCompletionsStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			fn(delta)
		}
		if chunk.Choices[0].FinishReason == "stop" {
			break
		}
	}
	return scanner.Err()
}

type chatCompletionsModels struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) chatCompletionsModels(ctx context.Context) ([]ModelEntry, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+c.modelsPath(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: list models: %w", c.provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var models chatCompletionsModels
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("%s: decode models: %w", c.provider, err)
	}
	out := make([]ModelEntry, 0, len(models.Data))
	for _, m := range models.Data {
		out = append(out, ModelEntry{ID: m.ID, DisplayName: m.ID})
	}
	return out, nil
}
