package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/apexgrid/pitwall/internal/profile"
	mw "github.com/apexgrid/pitwall/server/middleware"
	"github.com/apexgrid/pitwall/store"
)

// APIV1Service carries the handlers for the /api surface: the chat gateway,
// the telemetry proxies and the conversation REST endpoints.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store

	chatLimiter *mw.RateLimiter
	httpClient  *http.Client

	// telemetrySemaphore bounds concurrent backend fetches; session loads
	// there are expensive and queueing beats overload.
	telemetrySemaphore *semaphore.Weighted
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		// One chat request per 2s per client, short burst for retries.
		chatLimiter: mw.NewRateLimiter(2*time.Second, 3),
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		telemetrySemaphore: semaphore.NewWeighted(4),
	}
}

// Register mounts all v1 routes on the given Echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	echoServer.GET("/healthz", s.Health)
	echoServer.GET("/api/health", s.Health)

	api := echoServer.Group("/api")
	api.POST("/chat", s.Chat)

	telemetry := api.Group("/telemetry")
	telemetry.GET("/events/:year", s.TelemetryEvents)
	telemetry.GET("/session", s.TelemetrySession)
	telemetry.GET("/lap", s.TelemetryLap)
	telemetry.GET("/compare", s.TelemetryCompare)
	telemetry.GET("/speed", s.TelemetrySpeed)
	telemetry.GET("/fastest-lap/:year/:gp/:session/:driver", s.TelemetryFastestLap)

	conversations := api.Group("/conversations")
	conversations.GET("", s.ListConversations)
	conversations.POST("", s.CreateConversation)
	conversations.GET("/:id", s.GetConversation)
	conversations.DELETE("/:id", s.DeleteConversation)
	conversations.PUT("/:id/messages", s.UpdateConversationMessages)
	conversations.PUT("/:id/title", s.UpdateConversationTitle)
	conversations.PUT("/:id/viewstate", s.UpdateConversationViewState)
}
