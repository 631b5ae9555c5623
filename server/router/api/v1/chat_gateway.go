package v1

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// zaiTokenTTL bounds the lifetime of a signed upstream token. One token is
// minted per request, so a short window is enough.
const zaiTokenTTL = 30 * time.Minute

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	Stream      *bool         `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type upstreamChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Chat forwards a chat completion request to the Z.AI gateway and relays the
// response, streaming or not, back to the caller. The upstream credential
// never leaves the server; clients only ever see the relayed completion.
func (s *APIV1Service) Chat(c echo.Context) error {
	if !s.Profile.IsChatEnabled() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"detail": "chat is not configured"})
	}
	if !s.chatLimiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"detail": "too many chat requests, slow down"})
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}

	// Drop empty turns instead of failing the whole request; fail only when
	// nothing usable remains.
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" || msg.Role == "" {
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "messages must contain at least one non-empty message"})
	}

	upstream := upstreamChatRequest{
		Model:       s.Profile.ChatModel,
		Messages:    messages,
		Stream:      true,
		Temperature: s.Profile.ChatTemperature,
		MaxTokens:   s.Profile.ChatMaxTokens,
	}
	if req.Model != "" {
		upstream.Model = req.Model
	}
	if req.Stream != nil {
		upstream.Stream = *req.Stream
	}
	if req.Temperature != nil {
		upstream.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		upstream.MaxTokens = *req.MaxTokens
	}

	requestID := shortuuid.New()
	token, err := signZAIToken(s.Profile.ZAIAPIKey, time.Now(), zaiTokenTTL)
	if err != nil {
		slog.Error("failed to sign upstream token", "request", requestID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to authorize upstream request"})
	}

	payload, err := json.Marshal(upstream)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to encode upstream request"})
	}

	ctx := c.Request().Context()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Profile.ZAIEndpoint, bytes.NewReader(payload))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to build upstream request"})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if upstream.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("upstream chat request failed", "request", requestID, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"detail": "chat upstream is unreachable"})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		slog.Warn("upstream chat error", "request", requestID, "status", resp.StatusCode)
		return relayErrorBody(c, resp.StatusCode, body)
	}

	if !upstream.Stream {
		return c.Stream(resp.StatusCode, echo.MIMEApplicationJSON, resp.Body)
	}
	return relayEventStream(c, resp.Body)
}

// relayErrorBody passes an upstream error through when it is already JSON,
// and wraps it in the standard detail envelope otherwise.
func relayErrorBody(c echo.Context, status int, body []byte) error {
	if json.Valid(body) {
		return c.JSONBlob(status, body)
	}
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	return c.JSON(status, map[string]string{"detail": message})
}

// relayEventStream copies SSE frames to the client, flushing after every
// line so deltas are visible as they arrive.
func relayEventStream(c echo.Context, body io.Reader) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if _, err := resp.Write(append(scanner.Bytes(), '\n')); err != nil {
			return nil // client went away
		}
		resp.Flush()
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("relay stream interrupted", "error", err)
	}
	return nil
}

// signZAIToken mints the JWT the Z.AI API expects: the configured key is
// "<id>.<secret>", the token is HS256-signed with the secret and carries the
// id plus millisecond expiry and issue timestamps.
func signZAIToken(apiKey string, now time.Time, ttl time.Duration) (string, error) {
	id, secret, ok := strings.Cut(apiKey, ".")
	if !ok || id == "" || secret == "" {
		return "", errors.New("api key should be in format: id.secret")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"api_key":   id,
		"exp":       now.Add(ttl).UnixMilli(),
		"timestamp": now.UnixMilli(),
	})
	token.Header["sign_type"] = "SIGN"

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
