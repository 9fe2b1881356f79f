package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docpipeline/internal/service"
)

// RegisterRoutes attaches the operational routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, opsSvc service.OpsService, gatherer prometheus.Gatherer) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", Liveness())

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	queue := app.Group("/queue")
	queue.Get("/dead-letters", DeadLetters(opsSvc))
	queue.Post("/items/:id/retry", RetryItem(opsSvc))

	app.Post("/tenants/reload", ReloadTenants(opsSvc))
}
