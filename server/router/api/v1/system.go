package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health reports liveness. It never touches the store or upstreams so load
// balancers get a cheap, dependable answer.
func (s *APIV1Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.Profile.Version,
	})
}
