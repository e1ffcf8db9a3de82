package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type completionRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Error   *apiError          `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
}

// completionChoice accepts the shapes providers actually send back: the
// chat message, a streaming delta on non-streamed calls, and legacy text.
type completionChoice struct {
	Message      replyMessage `json:"message"`
	Delta        replyMessage `json:"delta"`
	Text         string       `json:"text"`
	FinishReason string       `json:"finish_reason"`
}

type replyMessage struct {
	Content      string        `json:"content"`
	Refusal      string        `json:"refusal"`
	FunctionCall *functionCall `json:"function_call"`
	ToolCalls    []struct {
		Function functionCall `json:"function"`
	} `json:"tool_calls"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// payload returns the first non-empty content, function arguments, or tool
// call arguments carried by the message.
func (m replyMessage) payload() string {
	if s := strings.TrimSpace(m.Content); s != "" {
		return s
	}
	if m.FunctionCall != nil {
		if s := strings.TrimSpace(m.FunctionCall.Arguments); s != "" {
			return s
		}
	}
	for _, call := range m.ToolCalls {
		if s := strings.TrimSpace(call.Function.Arguments); s != "" {
			return s
		}
	}
	return ""
}

func (ch completionChoice) payload() string {
	if s := ch.Message.payload(); s != "" {
		return s
	}
	if s := ch.Delta.payload(); s != "" {
		return s
	}
	return strings.TrimSpace(ch.Text)
}

// emptyContentError is returned when the provider answered but produced
// nothing usable. It is retried like a transient failure.
type emptyContentError struct {
	FinishReason string
	Refusal      string
	Body         string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.FinishReason, e.Refusal, snippet(e.Body))
}

func (c *Client) complete(ctx context.Context, op, system, user string) (string, error) {
	req := completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	var content string
	err := c.withRetry(ctx, op, func() error {
		body, err := c.post(ctx, c.cfg.BaseURL, req)
		if err != nil {
			return err
		}
		content, err = parseCompletion(body)
		return err
	})
	return content, err
}

func parseCompletion(body []byte) (string, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(resp.Error.Message))
	}
	empty := &emptyContentError{Body: string(body)}
	for _, ch := range resp.Choices {
		if s := ch.payload(); s != "" {
			return s, nil
		}
		if empty.FinishReason == "" {
			empty.FinishReason = strings.TrimSpace(ch.FinishReason)
		}
		if empty.Refusal == "" {
			empty.Refusal = strings.TrimSpace(ch.Message.Refusal + ch.Delta.Refusal)
		}
	}
	return "", empty
}
