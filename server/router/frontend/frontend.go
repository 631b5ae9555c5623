package frontend

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// The dashboard is a client-rendered single page app. Every conversation URL
// serves the same shell; the client reads the path and binds the session.
const indexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Pitwall</title>
  <link rel="stylesheet" href="/assets/app.css">
</head>
<body>
  <div id="root"></div>
  <script type="module" src="/assets/app.js"></script>
</body>
</html>
`

// Register mounts the SPA shell. The API routes are registered first, so
// everything here only sees non-API traffic.
func Register(echoServer *echo.Echo) {
	serve := func(c echo.Context) error {
		return c.HTML(http.StatusOK, indexHTML)
	}
	echoServer.GET("/", serve)
	echoServer.GET("/c/:id", serve)
}
