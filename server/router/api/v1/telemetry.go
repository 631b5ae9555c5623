package v1

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// The telemetry handlers are thin proxies: the heavy lifting (FastF1 session
// loading, lap analysis) lives in the telemetry backend, and this server just
// relays the JSON so the browser talks to a single origin.

func (s *APIV1Service) TelemetryEvents(c echo.Context) error {
	return s.proxyTelemetry(c)
}

func (s *APIV1Service) TelemetrySession(c echo.Context) error {
	return s.proxyTelemetry(c)
}

func (s *APIV1Service) TelemetryLap(c echo.Context) error {
	return s.proxyTelemetry(c)
}

func (s *APIV1Service) TelemetryCompare(c echo.Context) error {
	return s.proxyTelemetry(c)
}

func (s *APIV1Service) TelemetrySpeed(c echo.Context) error {
	return s.proxyTelemetry(c)
}

func (s *APIV1Service) TelemetryFastestLap(c echo.Context) error {
	return s.proxyTelemetry(c)
}

// proxyTelemetry forwards the request path and query string to the telemetry
// backend and relays the response verbatim.
func (s *APIV1Service) proxyTelemetry(c echo.Context) error {
	req := c.Request()
	if err := s.telemetrySemaphore.Acquire(req.Context(), 1); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"detail": "telemetry proxy is saturated"})
	}
	defer s.telemetrySemaphore.Release(1)

	target := strings.TrimRight(s.Profile.TelemetryBackendURL, "/") + req.URL.Path
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}

	backendReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, target, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to build backend request"})
	}
	backendReq.Header.Set("Accept", echo.MIMEApplicationJSON)

	resp, err := s.httpClient.Do(backendReq)
	if err != nil {
		slog.Warn("telemetry backend unreachable", "target", target, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"detail": "telemetry backend is unreachable"})
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Stream(resp.StatusCode, contentType, io.LimitReader(resp.Body, 32<<20))
}
