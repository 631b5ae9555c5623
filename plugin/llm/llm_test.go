package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func streamHandler(t *testing.T, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}
}

func deltaFrame(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestStreamDeliversDeltasInOrder(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []string{
		deltaFrame("Hel"),
		deltaFrame("lo"),
		deltaFrame(" world"),
		"[DONE]",
	}))
	defer server.Close()

	client := NewClient(server.URL, "glm-4.6", 0.7, 2048)
	var got []string
	err := client.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(content string) {
		got = append(got, content)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo", " world"}, got)
}

func TestStreamHonorsJSONDoneSentinel(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []string{
		deltaFrame("done soon"),
		`{"data":"[DONE]"}`,
		deltaFrame("never delivered"),
	}))
	defer server.Close()

	client := NewClient(server.URL, "glm-4.6", 0.7, 2048)
	var got []string
	err := client.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(content string) {
		got = append(got, content)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"done soon"}, got)
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []string{
		deltaFrame("before"),
		`{oops not json`,
		deltaFrame("after"),
		"[DONE]",
	}))
	defer server.Close()

	client := NewClient(server.URL, "glm-4.6", 0.7, 2048)
	var got []string
	err := client.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(content string) {
		got = append(got, content)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"before", "after"}, got)
}

func TestStreamCompletesOnCleanEOFWithoutSentinel(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []string{deltaFrame("partial")}))
	defer server.Close()

	client := NewClient(server.URL, "glm-4.6", 0.7, 2048)
	err := client.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(string) {})
	require.NoError(t, err)
}

func TestStreamReturnsTransportErrorWithDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"detail":"telemetry backend is unreachable"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "glm-4.6", 0.7, 2048)
	err := client.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(string) {
		t.Fatal("no deltas expected on error")
	})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	require.Equal(t, "telemetry backend is unreachable", transportErr.Message)
}

func TestStreamReturnsInBandError(t *testing.T) {
	server := httptest.NewServer(streamHandler(t, []string{
		`{"error":{"message":"quota exceeded","type":"rate_limit"}}`,
	}))
	defer server.Close()

	client := NewClient(server.URL, "glm-4.6", 0.7, 2048)
	err := client.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(string) {})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "quota exceeded", transportErr.Message)
}

func TestStreamRejectsEmptyContextBeforeNetwork(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "glm-4.6", 0.7, 2048)
	err := client.Stream(context.Background(), nil, func(string) {})
	require.ErrorIs(t, err, ErrNoMessages)
}
