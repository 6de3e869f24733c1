package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oar-dist/oar-dist/internal/cache"
	"github.com/oar-dist/oar-dist/internal/distrib"
)

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger         *logrus.Logger
	Service        *distrib.Service
	Volumes        *cache.Registry
	MetricsHandler http.Handler
}

const contextKeyRequestID = "_oardist_request_id"

// NewApp builds a Fiber application with request-id middleware, diagnostics
// routes and the dataset/object routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Service == nil {
		return nil, errors.New("distribution service is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.MetricsHandler))
	}
	if opts.Volumes != nil {
		registerVolumeRoutes(app, opts.Volumes)
	}

	h := &handlers{svc: opts.Service, logger: opts.Logger}
	app.Get("/ds/:id/_bags", h.listBags)
	app.Get("/ds/:id/_head", h.headBag)
	app.Get("/objects/*", h.getObject)
	app.Head("/objects/*", h.getObject)
	app.Delete("/objects/*", h.evictObject)

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID，并在响应结束后记录访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		logger.WithFields(logrus.Fields{
			"action":     "request",
			"request_id": reqID,
			"method":     c.Method(),
			"path":       string(c.Request().URI().Path()),
			"status":     c.Response().StatusCode(),
		}).Debug("request_served")
		return err
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
