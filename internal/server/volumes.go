package server

import (
	"github.com/gofiber/fiber/v3"

	"github.com/oar-dist/oar-dist/internal/cache"
)

type volumePayload struct {
	Name     string `json:"name"`
	Capacity int64  `json:"capacity"`
	Used     int64  `json:"used"`
	Free     int64  `json:"free"`
}

// registerVolumeRoutes 暴露 /-/volumes 诊断接口，供运维查询各缓存卷容量。
func registerVolumeRoutes(app *fiber.App, volumes *cache.Registry) {
	app.Get("/-/volumes", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"volumes": encodeVolumes(volumes.Ledgers())})
	})

	app.Get("/-/volumes/:name", func(c fiber.Ctx) error {
		ledger, ok := volumes.Ledger(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "volume_not_found"})
		}
		return c.JSON(encodeVolume(ledger))
	})
}

func encodeVolumes(ledgers []*cache.Ledger) []volumePayload {
	out := make([]volumePayload, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, encodeVolume(l))
	}
	return out
}

func encodeVolume(l *cache.Ledger) volumePayload {
	return volumePayload{
		Name:     l.Volume().Name(),
		Capacity: l.Capacity(),
		Used:     l.Used(),
		Free:     l.Free(),
	}
}
