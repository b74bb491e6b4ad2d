package http

import (
	"errors"
	"net/http"

	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupPositions(base *echo.Group) {
	v1 := base.Group("/v1/positions")
	{
		v1.GET("", h.ListPositions)
		v1.GET("/:key", h.GetPosition)
		v1.GET("/:key/attempts", h.ListExitAttempts)
		v1.GET("/:key/exits", h.ListPositionExits)
		v1.POST("/:key/check", h.ForceCheck)
	}
}

func (h *HttpAPIHandler) ListPositions(c echo.Context) error {
	param := dto.GetPositionsParam{CurrentOnly: true}

	if status := c.QueryParam("status"); status != "" {
		param.Statuses = []model.PositionStatus{model.PositionStatus(status)}
	}
	if review := c.QueryParam("marked_for_review"); review != "" {
		flagged := review == "true"
		param.MarkedForReview = &flagged
	}

	positions, err := h.repo.PositionsRepo.Get(c.Request().Context(), param)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", positions))
}

func (h *HttpAPIHandler) GetPosition(c echo.Context) error {
	key, err := uuid.Parse(c.Param("key"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid position key"))
	}

	pos, err := h.repo.PositionsRepo.FindCurrentByKey(c.Request().Context(), key)
	if errors.Is(err, dto.ErrPositionNotFound) {
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse("position not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", pos))
}

func (h *HttpAPIHandler) ListExitAttempts(c echo.Context) error {
	key, err := uuid.Parse(c.Param("key"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid position key"))
	}

	attempts, err := h.repo.ExitAttemptsRepo.ListByPositionKey(c.Request().Context(), key)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", attempts))
}

func (h *HttpAPIHandler) ListPositionExits(c echo.Context) error {
	key, err := uuid.Parse(c.Param("key"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid position key"))
	}

	exits, err := h.repo.PositionExitsRepo.ListByPositionKey(c.Request().Context(), key)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", exits))
}

func (h *HttpAPIHandler) ForceCheck(c echo.Context) error {
	key, err := uuid.Parse(c.Param("key"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid position key"))
	}

	err = h.service.Monitor.ForceCheck(c.Request().Context(), key)
	switch {
	case errors.Is(err, dto.ErrPositionNotFound):
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse("position not found"))
	case errors.Is(err, dto.ErrPositionOwned):
		return c.JSON(http.StatusConflict, dto.NewBaseResponse(http.StatusConflict, "position is being processed", nil))
	case err != nil:
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Check executed", nil))
}
