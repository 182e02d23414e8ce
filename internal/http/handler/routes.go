package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"github.com/hasnin090/iq-sub003/internal/http/middleware"
	"github.com/hasnin090/iq-sub003/internal/service"
	"github.com/hasnin090/iq-sub003/internal/session"
)

// Services bundles what the routes delegate to. Sessions may be nil, in
// which case the operation routes are unauthenticated.
type Services struct {
	Sync     service.SyncService
	Cleanup  service.CleanupService
	Sessions session.Store
}

// RegisterRoutes attaches every HTTP route to app.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc Services) {
	app.Get("/openapi.yaml", OpenAPISpec())
	app.Get("/docs", DocsPage())
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	var guard []fiber.Handler
	if svc.Sessions != nil {
		guard = append(guard, middleware.RequireSession(svc.Sessions))
		app.Delete("/sessions/current", with(guard, Logout(svc.Sessions))...)
	}

	app.Post("/sync/migrate", with(guard, Migrate(svc.Sync))...)
	app.Post("/sync/all", with(guard, SyncAll(svc.Sync))...)
	app.Get("/sync/progress", with(guard, SyncProgress(svc.Sync))...)
	app.Post("/attachments/fix", with(guard, FixAttachments(svc.Sync))...)
	app.Get("/attachments/status", with(guard, AttachmentStatus(svc.Sync))...)

	app.Post("/cleanup", with(guard, Cleanup(svc.Cleanup))...)
	app.Post("/cleanup/organize", with(guard, Organize(svc.Cleanup))...)
	app.Get("/system/status", with(guard, SystemStatus(svc.Cleanup))...)
}

func with(guard []fiber.Handler, h fiber.Handler) []fiber.Handler {
	return append(append([]fiber.Handler(nil), guard...), h)
}
