package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterMetricsRoutes(router *gin.Engine, gatherer prometheus.Gatherer) error {
	if router == nil {
		return errors.New("router is nil")
	}
	if gatherer == nil {
		return errors.New("metrics gatherer is nil")
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return nil
}
