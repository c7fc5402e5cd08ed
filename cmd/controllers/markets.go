package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/maxMuster194/testchart-sub002/internal/models"

	"github.com/gin-gonic/gin"
)

type MarketProvider interface {
	GetMarkets(ctx context.Context) ([]models.Market, error)
}

type MarketsController struct {
	service MarketProvider
}

type MarketsResponse struct {
	Markets []models.Market `json:"markets"`
}

func NewMarketsController(service MarketProvider) (*MarketsController, error) {
	if service == nil {
		return nil, errors.New("market service is nil")
	}

	return &MarketsController{service: service}, nil
}

func (c *MarketsController) RegisterRoutes(router *gin.Engine) error {
	if c == nil {
		return errors.New("markets controller is nil")
	}
	if router == nil {
		return errors.New("router is nil")
	}

	router.GET("/markets", c.getMarkets)
	return nil
}

func (c *MarketsController) getMarkets(ctx *gin.Context) {
	markets, err := c.service.GetMarkets(ctx.Request.Context())
	if err != nil {
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load markets"})
		return
	}
	if markets == nil {
		markets = []models.Market{}
	}

	ctx.JSON(http.StatusOK, MarketsResponse{Markets: markets})
}
