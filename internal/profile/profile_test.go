package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateFallsBackToDemoMode(t *testing.T) {
	p := &Profile{Mode: "staging", Data: t.TempDir(), Driver: "sqlite"}
	require.NoError(t, p.Validate())
	require.Equal(t, "demo", p.Mode)
}

func TestValidateDefaultsSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Mode: "dev", Data: dir, Driver: "sqlite"}
	require.NoError(t, p.Validate())
	require.Equal(t, filepath.Join(dir, "pitwall_dev.db"), p.DSN)
}

func TestValidateRejectsMalformedZAIKey(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "sqlite", ZAIAPIKey: "nodot"}
	require.Error(t, p.Validate())

	p.ZAIAPIKey = "id.secret"
	require.NoError(t, p.Validate())
	require.True(t, p.IsChatEnabled())
}
