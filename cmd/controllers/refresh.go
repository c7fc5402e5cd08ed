package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/maxMuster194/testchart-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

type RefreshService interface {
	Refresh(ctx context.Context) (services.CycleReport, error)
	InFlight() map[string]services.MarketState
}

type RefreshController struct {
	service RefreshService
}

type RefreshResponse struct {
	Status  string                   `json:"status"`
	Message string                   `json:"message"`
	CycleID string                   `json:"cycle_id,omitempty"`
	Markets []services.MarketOutcome `json:"markets"`
}

type RefreshStatusResponse struct {
	InFlight map[string]services.MarketState `json:"in_flight"`
}

func NewRefreshController(service RefreshService) (*RefreshController, error) {
	if service == nil {
		return nil, errors.New("refresh service is nil")
	}

	return &RefreshController{service: service}, nil
}

func (c *RefreshController) RegisterRoutes(router *gin.Engine) error {
	if c == nil {
		return errors.New("refresh controller is nil")
	}
	if router == nil {
		return errors.New("router is nil")
	}

	router.GET("/refresh", c.refresh)
	router.GET("/refresh/status", c.status)
	return nil
}

// refresh runs a cycle in the request. Markets held by a running cycle are
// skipped, so overlapping triggers return quickly.
func (c *RefreshController) refresh(ctx *gin.Context) {
	report, err := c.service.Refresh(ctx.Request.Context())
	markets := report.Markets
	if markets == nil {
		markets = []services.MarketOutcome{}
	}

	switch {
	case errors.Is(err, services.ErrNoMarkets):
		ctx.JSON(http.StatusOK, RefreshResponse{
			Status:  string(services.CycleStatusSkipped),
			Message: "no markets registered",
			CycleID: report.ID,
			Markets: markets,
		})
	case errors.Is(err, services.ErrCycleSkipped):
		ctx.JSON(http.StatusOK, RefreshResponse{
			Status:  string(services.CycleStatusSkipped),
			Message: "refresh already in progress",
			CycleID: report.ID,
			Markets: markets,
		})
	case err != nil:
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to refresh prices"})
	default:
		ctx.JSON(http.StatusOK, RefreshResponse{
			Status:  string(report.Status()),
			Message: report.Summary(),
			CycleID: report.ID,
			Markets: markets,
		})
	}
}

func (c *RefreshController) status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, RefreshStatusResponse{InFlight: c.service.InFlight()})
}
