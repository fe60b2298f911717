package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shellbot/shellbot/internal/distro"
	"github.com/shellbot/shellbot/pkg/types"
)

func (s *Server) listDistros(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sandbox.Distros())
}

func (s *Server) completeDistro(c echo.Context) error {
	names := s.sandbox.Complete(c.QueryParam("q"))
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, names)
}

func (s *Server) switchDistro(c echo.Context) error {
	var req types.DistroRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
	}

	resp, err := s.sandbox.Distro(c.Request().Context(), req.Name)
	if err != nil {
		status := errorStatus(err)
		if errors.Is(err, distro.ErrNotFound) {
			status = http.StatusNotFound
		}
		return c.JSON(status, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, resp)
}
