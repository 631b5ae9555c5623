package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the configuration to start the pitwall server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// Driver is the persistence driver (sqlite or postgres)
	Driver string
	// DSN points to where pitwall stores conversation data
	DSN string
	// Version is the current version of server
	Version string

	// ZAIAPIKey is the Z.AI API key in "id.secret" format, used by the
	// chat gateway to sign upstream request tokens.
	ZAIAPIKey string
	// ZAIEndpoint is the upstream chat completion endpoint.
	ZAIEndpoint string
	// ChatModel is the model identifier sent with every completion request.
	ChatModel string
	// ChatTemperature is the default sampling temperature.
	ChatTemperature float64
	// ChatMaxTokens is the default completion token budget.
	ChatMaxTokens int

	// TelemetryBackendURL is the base URL of the FastF1 telemetry service
	// that the /api/telemetry routes proxy to.
	TelemetryBackendURL string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsChatEnabled returns true if the gateway has an upstream API key configured.
func (p *Profile) IsChatEnabled() bool {
	return p.ZAIAPIKey != ""
}

// FromEnv loads configuration from PITWALL_* environment variables.
func (p *Profile) FromEnv() {
	v := viper.New()
	v.SetEnvPrefix("pitwall")
	v.AutomaticEnv()

	v.SetDefault("zai_endpoint", "https://api.z.ai/api/paas/v4/chat/completions")
	v.SetDefault("chat_model", "glm-4.6")
	v.SetDefault("chat_temperature", 0.7)
	v.SetDefault("chat_max_tokens", 2048)
	v.SetDefault("telemetry_backend_url", "http://localhost:8000")

	if key := v.GetString("zai_api_key"); key != "" {
		p.ZAIAPIKey = key
	}
	p.ZAIEndpoint = v.GetString("zai_endpoint")
	p.ChatModel = v.GetString("chat_model")
	p.ChatTemperature = v.GetFloat64("chat_temperature")
	p.ChatMaxTokens = v.GetInt("chat_max_tokens")
	p.TelemetryBackendURL = v.GetString("telemetry_backend_url")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "pitwall")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/pitwall"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("pitwall_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	// The Z.AI key carries the signing secret after the dot; reject keys
	// that cannot be split before the first gateway request fails instead.
	if p.ZAIAPIKey != "" && !strings.Contains(p.ZAIAPIKey, ".") {
		return errors.New("ZAI API key should be in format: id.secret")
	}

	return nil
}
