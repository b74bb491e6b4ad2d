package http

import (
	"net/http"
	"time"

	"prediction-trading/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupJobs(base *echo.Group) {
	v1 := base.Group("/v1/jobs")
	{
		v1.POST("/reconcile", h.RunReconcile)
		v1.POST("/rollup", h.RunRollup)
		v1.POST("/settle", h.RunSettle)
	}
}

func (h *HttpAPIHandler) RunReconcile(c echo.Context) error {
	response := dto.NewBaseResponse(http.StatusOK, "Reconcile finished", nil)
	if err := h.service.Maintenance.Reconcile(c.Request().Context()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) RunRollup(c echo.Context) error {
	response := dto.NewBaseResponse(http.StatusOK, "Rollup finished", nil)
	if err := h.service.Maintenance.RollupPerformance(c.Request().Context()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) RunSettle(c echo.Context) error {
	response := dto.NewBaseResponse(http.StatusOK, "Settlement finished", nil)
	if err := h.service.Maintenance.SettleClosedEvents(c.Request().Context(), time.Now().UTC()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}
