package controllers

import (
	"net/http"

	"github.com/maxMuster194/testchart-sub002/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRouter returns a gin engine that answers unknown methods on known paths
// with 405 and logs every request.
func NewRouter(log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(logger.GinMiddleware(log), gin.Recovery())

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	})

	return router
}
