package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hasnin090/iq-sub003/internal/service"
)

func Cleanup(svc service.CleanupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.CleanupDatabase(c.UserContext()))
	}
}

func Organize(svc service.CleanupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.OrganizeExistingFiles(c.UserContext()))
	}
}

func SystemStatus(svc service.CleanupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.GetSystemStatus(c.UserContext()))
	}
}
