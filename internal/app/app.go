package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"paystubs/internal/handlers"
	"paystubs/internal/mailer"
	"paystubs/internal/store"
	u "paystubs/internal/utils"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, rdb *redis.Client, snd mailer.Sender, st *store.Store) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Limits.MaxCSVBytes + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, rdb, snd, st)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, rdb *redis.Client, snd mailer.Sender, st *store.Store) {
	// One shared service instance so every paystub route uses the same
	// Chrome pool.
	svc := handlers.NewProcessService(cfg, rdb, snd, st)

	// Greeting kept from the first deployment; doubles as a liveness probe.
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON("Holaaaaaaaaaa AtDev Team!")
	})

	v1 := app.Group("/v1")
	v1.Post("/process", svc.HandleProcess)
	v1.Get("/paystubs/:name", svc.HandleDownload)
	v1.Get("/chrome/stats", svc.HandleChromeStats)
	v1.Get("/monitor", monitor.New())

	// Unversioned path kept for clients of the original deployment.
	app.Post("/process", svc.HandleProcess)
}
