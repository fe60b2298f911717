package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/internal/sandbox"
	"github.com/shellbot/shellbot/pkg/types"
)

func (s *Server) term(c echo.Context) error {
	var req types.TermRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	result, err := s.sandbox.Term(c.Request().Context(), req.Command)
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sandbox.Status())
}

// errorStatus maps sandbox errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, sandbox.ErrEmptyCommand):
		return http.StatusBadRequest
	case errors.Is(err, container.ErrRuntimeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
