package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docpipeline/internal/model"
	"docpipeline/internal/service"
	"docpipeline/internal/tenant"
)

// DeadLetterList is the response of GET /queue/dead-letters.
type DeadLetterList struct {
	Items []model.QueueItem `json:"items"`
	Count int               `json:"count"`
}

// TenantReload is the response of POST /tenants/reload.
type TenantReload struct {
	Tenants  int      `json:"tenants"`
	Prefixes []string `json:"prefixes"`
}

// DeadLetters lists ERROR queue items, optionally filtered by ?tenant=.
func DeadLetters(svc service.OpsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := 0
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
			}
			limit = n
		}

		items, err := svc.DeadLetters(c.UserContext(), c.Query("tenant"), limit)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		if items == nil {
			items = []model.QueueItem{}
		}
		return c.JSON(DeadLetterList{Items: items, Count: len(items)})
	}
}

// RetryItem moves a dead-lettered queue item back to PENDING.
func RetryItem(svc service.OpsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		item, err := svc.Retry(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrItemNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "queue item not found or not dead-lettered")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(item)
	}
}

// ReloadTenants re-reads the prefix map from disk.
func ReloadTenants(svc service.OpsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenants, err := svc.ReloadTenants()
		if err != nil {
			if errors.Is(err, tenant.ErrConfigMissing) || errors.Is(err, tenant.ErrConfigInvalid) {
				return writeError(c, fiber.StatusUnprocessableEntity, "INVALID_TENANT_CONFIG", "tenant config missing or invalid")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		res := TenantReload{Tenants: len(tenants), Prefixes: make([]string, 0, len(tenants))}
		for _, t := range tenants {
			res.Prefixes = append(res.Prefixes, t.Prefix)
		}
		return c.JSON(res)
	}
}
