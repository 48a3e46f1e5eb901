package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

func Handler() http.Handler {
	// The document itself is served from api/openapi.yml at the root route.
	return httpSwagger.Handler(
		httpSwagger.URL("/openapi.yml"),
	)
}
