package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn of conversational context sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrNoMessages is returned when a stream is requested with an empty context.
// It fails before any network activity.
var ErrNoMessages = errors.New("no messages to send")

// TransportError carries the upstream HTTP status alongside the error body so
// callers can distinguish transport failures from local ones.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("llm transport error (status %d): %s", e.StatusCode, e.Message)
}

// Client streams chat completions from an OpenAI-compatible endpoint over
// server-sent events.
type Client struct {
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewClient creates a streaming client for the given endpoint. The endpoint is
// expected to speak the chat-completions wire format with stream=true.
func NewClient(endpoint, model string, temperature float64, maxTokens int) *Client {
	return &Client{
		endpoint:    endpoint,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			// No overall timeout: streams legitimately run for minutes.
			// Cancellation comes from the request context.
			Timeout: 0,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamChunk covers the delta frames, the JSON-encoded done sentinel and the
// in-band error shape. Unknown fields are ignored.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Data  string `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type errorBody struct {
	Error  json.RawMessage `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

const doneSentinel = "[DONE]"

// Stream sends the message context and invokes onDelta for every content
// fragment, in arrival order, until the stream ends. A nil return means the
// stream completed normally (done sentinel or clean EOF). There is no retry;
// the caller decides what a failed exchange means.
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(content string)) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}

	wire := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    wire,
		Stream:      true,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return errors.Wrap(err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send chat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.readError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneSentinel {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Warn("skipping malformed stream frame", "error", err)
			continue
		}
		if chunk.Data == doneSentinel {
			return nil
		}
		if chunk.Error != nil {
			return &TransportError{StatusCode: resp.StatusCode, Message: chunk.Error.Message}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read stream")
	}
	// Upstream closed without a done sentinel; treat a clean EOF as complete.
	return nil
}

// readError extracts a human-readable message from a non-2xx response. The
// gateway reports errors under "error", the telemetry backend under "detail".
func (c *Client) readError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &TransportError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var parsed errorBody
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil {
		if m := rawToString(parsed.Error); m != "" {
			message = m
		} else if m := rawToString(parsed.Detail); m != "" {
			message = m
		}
	}
	if message == "" {
		message = resp.Status
	}
	return &TransportError{StatusCode: resp.StatusCode, Message: message}
}

// rawToString renders an error field that may be a plain string or a nested
// object with a "message" key.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
