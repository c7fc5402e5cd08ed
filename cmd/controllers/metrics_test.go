package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pricefeed_test_total", Help: "test counter"})
	registry.MustRegister(counter)
	counter.Inc()

	router := gin.New()
	if err := RegisterMetricsRoutes(router, registry); err != nil {
		t.Fatalf("register metrics routes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "pricefeed_test_total 1") {
		t.Fatalf("metrics body missing counter: %s", recorder.Body.String())
	}
}

func TestRegisterMetricsRoutesNil(t *testing.T) {
	if err := RegisterMetricsRoutes(nil, prometheus.NewRegistry()); err == nil {
		t.Fatalf("RegisterMetricsRoutes nil router: expected error")
	}
	if err := RegisterMetricsRoutes(gin.New(), nil); err == nil {
		t.Fatalf("RegisterMetricsRoutes nil gatherer: expected error")
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := NewRouter(nil)
	if err := RegisterHealthRoutes(router, nil); err != nil {
		t.Fatalf("register health routes: %v", err)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPut, "/health", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, recorder.Code)
	}
}
