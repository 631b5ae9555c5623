package nav

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConversationID(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/c/abc-123", "abc-123"},
		{"/c/", ""},
		{"/c/abc/extra", ""},
		{"/", ""},
		{"/settings", ""},
		{"c/abc", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, ParseConversationID(tt.path), tt.path)
	}
}

func TestConversationPathRoundTrips(t *testing.T) {
	require.Equal(t, "abc-123", ParseConversationID(ConversationPath("abc-123")))
}

func TestHistoryNavigateFiresListeners(t *testing.T) {
	h := NewHistory()
	require.Equal(t, "/", h.Path())
	require.Empty(t, h.CurrentID())

	var seen []string
	h.OnChange(func(path string) { seen = append(seen, path) })

	h.NavigateTo("/c/race-chat")
	require.Equal(t, "race-chat", h.CurrentID())

	// Navigating to the current path is a no-op.
	h.NavigateTo("/c/race-chat")
	h.NavigateTo("/")
	require.Equal(t, []string{"/c/race-chat", "/"}, seen)
}
