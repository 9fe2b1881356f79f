package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"docpipeline/internal/http/middleware"
	"docpipeline/internal/model"
	"docpipeline/internal/service"
	serviceMocks "docpipeline/internal/service/mocks"
	"docpipeline/internal/tenant"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})

	t.Run("no database", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(nil))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestLiveness(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", Liveness())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeadLetters(t *testing.T) {
	mockSvc := new(serviceMocks.MockOpsService)
	app := fiber.New()
	app.Get("/queue/dead-letters", DeadLetters(mockSvc))

	t.Run("success", func(t *testing.T) {
		items := []model.QueueItem{{ID: uuid.NewString(), TenantID: "t-acme", SourceRef: "acme_20260101_090000.pdf", Status: model.QueueStatusError, Attempts: 5}}
		mockSvc.On("DeadLetters", mock.Anything, "t-acme", 10).Return(items, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/queue/dead-letters?tenant=t-acme&limit=10", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result DeadLetterList
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, 1, result.Count)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "acme_20260101_090000.pdf", result.Items[0].SourceRef)
		mockSvc.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		mockSvc.On("DeadLetters", mock.Anything, "", 0).Return(nil, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/queue/dead-letters", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var result DeadLetterList
		json.NewDecoder(resp.Body).Decode(&result)
		assert.NotNil(t, result.Items)
		assert.Zero(t, result.Count)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, q := range []string{"abc", "-1"} {
			resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/queue/dead-letters?limit="+q, nil))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body errorPayload
			json.NewDecoder(resp.Body).Decode(&body)
			assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
		}
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("DeadLetters", mock.Anything, "", 0).Return(nil, errors.New("db error")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/queue/dead-letters", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestRetryItem(t *testing.T) {
	mockSvc := new(serviceMocks.MockOpsService)
	app := fiber.New()
	app.Post("/queue/items/:id/retry", RetryItem(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Retry", mock.Anything, id).Return(&model.QueueItem{ID: id, Status: model.QueueStatusPending, Attempts: 5}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/queue/items/"+id+"/retry", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var result model.QueueItem
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		assert.Equal(t, model.QueueStatusPending, result.Status)
		assert.Equal(t, 5, result.Attempts)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Retry", mock.Anything, id).Return(nil, fmt.Errorf("requeue: %w", service.ErrItemNotFound)).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/queue/items/"+id+"/retry", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/queue/items/not-a-uuid/retry", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_ID", res.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Retry", mock.Anything, id).Return(nil, errors.New("db error")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/queue/items/"+id+"/retry", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestReloadTenants(t *testing.T) {
	mockSvc := new(serviceMocks.MockOpsService)
	app := fiber.New()
	app.Post("/tenants/reload", ReloadTenants(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("ReloadTenants").Return([]model.Tenant{{Prefix: "acme"}, {Prefix: "globex"}}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/tenants/reload", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var result TenantReload
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, 2, result.Tenants)
		assert.Equal(t, []string{"acme", "globex"}, result.Prefixes)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid config", func(t *testing.T) {
		mockSvc.On("ReloadTenants").Return(nil, fmt.Errorf("reload tenants: %w", tenant.ErrConfigInvalid)).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/tenants/reload", nil))

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_TENANT_CONFIG", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("ReloadTenants").Return(nil, errors.New("boom")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/tenants/reload", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "routing_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	mockSvc := new(serviceMocks.MockOpsService)
	RegisterRoutes(app, nil, mockSvc, reg)

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "routing_test_total 1")
	})

	t.Run("reload route", func(t *testing.T) {
		mockSvc.On("ReloadTenants").Return([]model.Tenant{{Prefix: "acme"}}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/tenants/reload", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "bad request", err: fiber.ErrBadRequest, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "timeout", err: fiber.ErrRequestTimeout, wantStatus: http.StatusRequestTimeout, wantCode: "TIMEOUT"},
		{name: "other fiber error", err: fiber.ErrConflict, wantStatus: http.StatusConflict, wantCode: "INTERNAL_ERROR"},
		{name: "plain error", err: errors.New("pq: connection refused"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
			app.Use(middleware.RequestID())
			app.Get("/fail", func(c *fiber.Ctx) error { return tt.err })

			req := httptest.NewRequest(http.MethodGet, "/fail", nil)
			req.Header.Set(middleware.RequestIDHeader, "req-1")
			resp, _ := app.Test(req)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.NotContains(t, string(body), "connection refused")

			var res errorPayload
			require.NoError(t, json.Unmarshal(body, &res))
			assert.Equal(t, tt.wantCode, res.Error.Code)
			assert.Equal(t, "req-1", res.RequestID)
		})
	}
}
