// Package server exposes vector layer operations over HTTP.
package server

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"geolayer/internal/config"
)

// ============================================================
// Routes
// ============================================================

// New builds the fiber app. accessLog toggles request logging.
func New(cfg *config.Config, reg *Registry, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		AppName:      "geolayer",
	})

	app.Use(recover.New())
	if accessLog {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})

	h := NewHandler(reg, cfg)
	layers := app.Group("/layers")
	layers.Get("/", h.ListLayers)
	layers.Post("/", h.CreateLayer)
	layers.Get("/:id", h.GetLayer)
	layers.Delete("/:id", h.DeleteLayer)
	layers.Get("/:id/geojson", h.GetGeoJSON)
	layers.Get("/:id/svg", h.GetSVG)
	layers.Post("/:id/legend", h.SetLegend)
	layers.Post("/:id/select", h.Select)
	layers.Post("/:id/overlay", h.Overlay)
	layers.Get("/:id/labels", h.GetLabels)
	layers.Get("/:id/density", h.GetDensity)
	layers.Post("/:id/fields", h.AddField)
	layers.Patch("/:id/fields/:name", h.RenameField)
	layers.Delete("/:id/fields/:name", h.RemoveField)
	layers.Put("/:id/rows/:row", h.EditRow)

	app.Get("/basemap", h.GetBasemap)
	app.Get("/basemap/:z/:x/:y", h.GetTile)
	return app
}
