package http

import (
	"errors"
	"net/http"

	"prediction-trading/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupEngine(base *echo.Group) {
	v1 := base.Group("/v1/engine")
	{
		v1.GET("/status", h.EngineStatus)
	}

	strategies := base.Group("/v1/strategies")
	{
		strategies.GET("/:version_id", h.GetStrategyVersion)
	}
}

func (h *HttpAPIHandler) EngineStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", h.service.Monitor.Status()))
}

func (h *HttpAPIHandler) GetStrategyVersion(c echo.Context) error {
	version, err := h.repo.StrategyVersionsRepo.FindByVersionID(c.Request().Context(), c.Param("version_id"))
	if errors.Is(err, dto.ErrStrategyNotFound) {
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse("strategy version not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", version))
}
