package transporthttp

import (
	"net/http"

	"trendradar/docs"
)

const swaggerYAMLPath = "/swagger/openapi.yaml"

var swaggerPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Trending API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = () => SwaggerUIBundle({ url: '` + swaggerYAMLPath + `', dom_id: '#swagger-ui' });
  </script>
</body>
</html>`)

func serveSwaggerUI(w http.ResponseWriter, r *http.Request) {
	serveEmbedded(w, r, "text/html; charset=utf-8", swaggerPage)
}

func serveSwaggerYAML(w http.ResponseWriter, r *http.Request) {
	serveEmbedded(w, r, "application/yaml", docs.OpenAPISpec)
}

// serveEmbedded 404s when the OpenAPI document was not embedded into the build.
func serveEmbedded(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	if len(docs.OpenAPISpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
