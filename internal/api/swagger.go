package api

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed openapi.yaml
var openAPISpec []byte

// HandleOpenAPISpec serves the embedded OpenAPI document.
// (GET /openapi.yaml)
func (s *Server) HandleOpenAPISpec(c echo.Context) error {
	return c.Blob(http.StatusOK, "application/yaml", openAPISpec)
}

// swaggerHTML loads the CDN-hosted Swagger UI pointed at our spec, so no
// static assets need checking in.
const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <title>Lead CRM API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = () => {
      SwaggerUIBundle({
        url: "/openapi.yaml",
        dom_id: "#swagger-ui",
      });
    };
  </script>
</body>
</html>`

// HandleSwaggerUI serves the interactive API docs.
// (GET /docs)
func (s *Server) HandleSwaggerUI(c echo.Context) error {
	return c.HTML(http.StatusOK, swaggerHTML)
}
