package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maxMuster194/testchart-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

type stubRefreshService struct {
	report   services.CycleReport
	err      error
	called   bool
	inFlight map[string]services.MarketState
}

func (s *stubRefreshService) Refresh(ctx context.Context) (services.CycleReport, error) {
	s.called = true
	return s.report, s.err
}

func (s *stubRefreshService) InFlight() map[string]services.MarketState {
	return s.inFlight
}

func newRefreshRouter(t *testing.T, service RefreshService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	controller, err := NewRefreshController(service)
	if err != nil {
		t.Fatalf("NewRefreshController: %v", err)
	}

	router := NewRouter(nil)
	if err := controller.RegisterRoutes(router); err != nil {
		t.Fatalf("register refresh routes: %v", err)
	}
	return router
}

func TestRefreshHandlerSuccess(t *testing.T) {
	service := &stubRefreshService{report: services.CycleReport{
		ID: "cycle-1",
		Markets: []services.MarketOutcome{
			{Market: "germany", State: services.MarketStateDone, Records: 3},
		},
	}}
	router := newRefreshRouter(t, service)

	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if !service.called {
		t.Fatalf("expected refresh to be called")
	}

	var resp RefreshResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.CycleID != "cycle-1" {
		t.Fatalf("cycle_id = %q, want %q", resp.CycleID, "cycle-1")
	}
	if len(resp.Markets) != 1 || resp.Markets[0].Records != 3 {
		t.Fatalf("markets = %+v", resp.Markets)
	}
}

func TestRefreshHandlerPartial(t *testing.T) {
	service := &stubRefreshService{report: services.CycleReport{
		ID: "cycle-2",
		Markets: []services.MarketOutcome{
			{Market: "austria", State: services.MarketStateFailed, Stage: services.MarketStateFetching},
			{Market: "germany", State: services.MarketStateDone, Records: 3},
		},
	}}
	router := newRefreshRouter(t, service)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/refresh", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var resp RefreshResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "partial" {
		t.Fatalf("status = %q, want %q", resp.Status, "partial")
	}
}

func TestRefreshHandlerSkipped(t *testing.T) {
	router := newRefreshRouter(t, &stubRefreshService{err: services.ErrCycleSkipped})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/refresh", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var resp RefreshResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "skipped" {
		t.Fatalf("status = %q, want %q", resp.Status, "skipped")
	}
	if resp.Message != "refresh already in progress" {
		t.Fatalf("message = %q, want %q", resp.Message, "refresh already in progress")
	}
}

func TestRefreshHandlerNoMarkets(t *testing.T) {
	err := fmt.Errorf("%w: %w", services.ErrCycleSkipped, services.ErrNoMarkets)
	router := newRefreshRouter(t, &stubRefreshService{err: err})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/refresh", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var resp RefreshResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "skipped" {
		t.Fatalf("status = %q, want %q", resp.Status, "skipped")
	}
	if resp.Message != "no markets registered" {
		t.Fatalf("message = %q, want %q", resp.Message, "no markets registered")
	}
}

func TestRefreshHandlerError(t *testing.T) {
	router := newRefreshRouter(t, &stubRefreshService{err: fmt.Errorf("%w: germany=failed@fetching", services.ErrCycleFailed)})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/refresh", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, recorder.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "failed to refresh prices" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestRefreshHandlerMethodNotAllowed(t *testing.T) {
	service := &stubRefreshService{}
	router := newRefreshRouter(t, service)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/refresh", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, recorder.Code)
	}
	if service.called {
		t.Fatalf("refresh must not run for POST")
	}
}

func TestRefreshStatusHandler(t *testing.T) {
	service := &stubRefreshService{inFlight: map[string]services.MarketState{"germany": services.MarketStateParsing}}
	router := newRefreshRouter(t, service)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/refresh/status", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var resp RefreshStatusResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.InFlight["germany"] != services.MarketStateParsing {
		t.Fatalf("in_flight = %v", resp.InFlight)
	}
}

func TestNewRefreshControllerNil(t *testing.T) {
	if _, err := NewRefreshController(nil); err == nil {
		t.Fatalf("NewRefreshController nil: expected error")
	}
	var controller *RefreshController
	if err := controller.RegisterRoutes(gin.New()); err == nil {
		t.Fatalf("RegisterRoutes nil controller: expected error")
	}
	if err := (&RefreshController{service: &stubRefreshService{}}).RegisterRoutes(nil); err == nil {
		t.Fatalf("RegisterRoutes nil router: expected error")
	}
}
