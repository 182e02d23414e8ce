package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/hasnin090/iq-sub003/internal/service"
)

// Migrate runs a files + rows migration and returns its result. A run
// already in flight yields 409.
func Migrate(svc service.SyncService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Migrate(c.UserContext())
		if errors.Is(err, service.ErrSyncInProgress) {
			return syncConflict(c)
		}
		return c.JSON(res)
	}
}

// SyncAll starts a staged sync in the background and answers 202 with the
// progress snapshot; poll /sync/progress afterwards. With ?wait=true the
// handler blocks and returns the final report. A run already in flight
// yields 409.
func SyncAll(svc service.SyncService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.QueryBool("wait") {
			report, err := svc.RunSync(c.UserContext())
			if errors.Is(err, service.ErrSyncInProgress) {
				return syncConflict(c)
			}
			return c.JSON(report)
		}

		// the run outlives the request, but keeps its trace context
		report, err := svc.StartSync(context.WithoutCancel(c.UserContext()))
		if errors.Is(err, service.ErrSyncInProgress) {
			return syncConflict(c)
		}
		return c.Status(fiber.StatusAccepted).JSON(report)
	}
}

func syncConflict(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusConflict, "SYNC_IN_PROGRESS", service.ErrSyncInProgress.Error())
}

// SyncProgress returns the current or last run's report.
func SyncProgress(svc service.SyncService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.Progress())
	}
}

// FixAttachments links orphaned uploads to transactions.
func FixAttachments(svc service.SyncService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.FixOrphanedAttachments(c.UserContext()))
	}
}

// AttachmentStatus reports linked and orphaned uploads.
func AttachmentStatus(svc service.SyncService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.GetAttachmentStatus(c.UserContext()))
	}
}
