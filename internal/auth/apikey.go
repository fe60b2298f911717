package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// APIKeyMiddleware validates the caller's API key against the configured key.
// The key is read from the X-API-Key header, an "Authorization: Bearer"
// header or the api_key query parameter, in that order.
// If the configured key is empty, authentication is disabled (development mode).
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			provided := ProvidedKey(c.Request())
			if provided == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing API key",
				})
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid API key",
				})
			}

			return next(c)
		}
	}
}

// ProvidedKey extracts the API key a request carries, or "".
func ProvidedKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if authz := r.Header.Get("Authorization"); authz != "" {
		if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("api_key")
}
