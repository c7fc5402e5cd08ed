package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/maxMuster194/testchart-sub002/internal/models"
	"github.com/maxMuster194/testchart-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

type PriceProvider interface {
	GetPrices(ctx context.Context, market string, date string, from string, to string) ([]models.PriceRecord, error)
	GetAllPrices(ctx context.Context, date string, from string, to string) (map[string][]models.PriceRecord, error)
}

type PricesController struct {
	service PriceProvider
}

// PricesResponse maps market name to its delivery days.
type PricesResponse map[string][]models.PriceRecord

type priceQuery struct {
	date string
	from string
	to   string
	unit string
}

func NewPricesController(service PriceProvider) (*PricesController, error) {
	if service == nil {
		return nil, errors.New("price service is nil")
	}

	return &PricesController{service: service}, nil
}

func (c *PricesController) RegisterRoutes(router *gin.Engine) error {
	if c == nil {
		return errors.New("prices controller is nil")
	}
	if router == nil {
		return errors.New("router is nil")
	}

	router.GET("/prices", c.getAllPrices)
	router.GET("/prices/:market", c.getMarketPrices)
	return nil
}

func (c *PricesController) getAllPrices(ctx *gin.Context) {
	query, err := parsePriceQuery(ctx)
	if err != nil {
		writePriceError(ctx, err)
		return
	}

	results, err := c.service.GetAllPrices(ctx.Request.Context(), query.date, query.from, query.to)
	if err != nil {
		writePriceError(ctx, err)
		return
	}

	resp := PricesResponse{}
	for market, records := range results {
		if len(records) == 0 {
			continue
		}
		converted, err := services.ConvertUnit(records, query.unit)
		if err != nil {
			writePriceError(ctx, err)
			return
		}
		resp[market] = converted
	}
	if len(resp) == 0 {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "no prices found"})
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

func (c *PricesController) getMarketPrices(ctx *gin.Context) {
	query, err := parsePriceQuery(ctx)
	if err != nil {
		writePriceError(ctx, err)
		return
	}

	market := strings.ToLower(strings.TrimSpace(ctx.Param("market")))
	records, err := c.service.GetPrices(ctx.Request.Context(), market, query.date, query.from, query.to)
	if err != nil {
		writePriceError(ctx, err)
		return
	}
	if len(records) == 0 {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "no prices found"})
		return
	}

	converted, err := services.ConvertUnit(records, query.unit)
	if err != nil {
		writePriceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, PricesResponse{market: converted})
}

func parsePriceQuery(ctx *gin.Context) (priceQuery, error) {
	unit, err := services.ParseUnit(ctx.Query("unit"))
	if err != nil {
		return priceQuery{}, err
	}

	return priceQuery{
		date: ctx.Query("date"),
		from: ctx.Query("from"),
		to:   ctx.Query("to"),
		unit: unit,
	}, nil
}

func writePriceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownMarket):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown market"})
	case errors.Is(err, services.ErrInvalidDate):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid date"})
	case errors.Is(err, services.ErrInvalidDateRange):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid date range"})
	case errors.Is(err, services.ErrInvalidUnit):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid unit"})
	default:
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load prices"})
	}
}
