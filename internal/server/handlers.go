package server

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/oar-dist/oar-dist/internal/bags"
	"github.com/oar-dist/oar-dist/internal/cache"
	"github.com/oar-dist/oar-dist/internal/distrib"
	"github.com/oar-dist/oar-dist/internal/logging"
	"github.com/oar-dist/oar-dist/internal/restore"
	"github.com/oar-dist/oar-dist/internal/storage"
)

type handlers struct {
	svc    *distrib.Service
	logger *logrus.Logger
}

func (h *handlers) listBags(c fiber.Ctx) error {
	id, err := bags.URLDecode(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid_identifier")
	}
	names, err := h.svc.ListBags(requestContext(c), id)
	if err != nil {
		return h.renderError(c, err)
	}
	return c.JSON(fiber.Map{"identifier": id, "bags": names})
}

func (h *handlers) headBag(c fiber.Ctx) error {
	id, err := bags.URLDecode(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid_identifier")
	}
	version := strings.TrimSpace(c.Query("version"))
	head, err := h.svc.ResolveHeadBag(requestContext(c), id, version)
	if err != nil {
		return h.renderError(c, err)
	}
	bagVersion, err := bags.MultibagVersion(head)
	if err != nil {
		return h.renderError(c, err)
	}
	return c.JSON(fiber.Map{"identifier": id, "head": head, "version": bagVersion})
}

func (h *handlers) getObject(c fiber.Ctx) error {
	objectID, err := objectIDParam(c)
	if err != nil {
		return badRequest(c, "invalid_object_id")
	}
	ctx := requestContext(c)
	rc, obj, err := h.svc.Read(ctx, objectID)
	if err != nil {
		return h.renderError(c, err)
	}

	c.Set("X-Cache-Volume", obj.VolumeName)
	if !obj.Checksum.IsZero() {
		c.Set("Digest", obj.Checksum.String())
	}
	if ct, ok := obj.Metadata[cache.MetaContentType].(string); ok && ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	defer rc.Close()

	if obj.Size >= 0 {
		c.Response().Header.SetContentLength(int(obj.Size))
	}
	c.Status(fiber.StatusOK)
	if c.Method() == fiber.MethodHead {
		return nil
	}
	if _, err := io.Copy(c.Response().BodyWriter(), rc); err != nil {
		h.logger.WithFields(logging.RequestFields(RequestID(c), c.Method(), objectID, fiber.StatusOK)).
			WithError(err).
			Warn("object_stream_failed")
		return err
	}
	return nil
}

func (h *handlers) evictObject(c fiber.Ctx) error {
	objectID, err := objectIDParam(c)
	if err != nil {
		return badRequest(c, "invalid_object_id")
	}
	removed, err := h.svc.Evict(requestContext(c), objectID)
	if err != nil {
		return h.renderError(c, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_cached"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// renderError maps service errors onto HTTP statuses. Internal failures are
// logged in full but reported without detail.
func (h *handlers) renderError(c fiber.Ctx, err error) error {
	var perr *bags.ParseError
	switch {
	case errors.Is(err, distrib.ErrNoHeadBag),
		errors.Is(err, restore.ErrObjectNotFound),
		errors.Is(err, storage.ErrFileNotFound),
		errors.Is(err, cache.ErrNotFound),
		errors.As(err, &perr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	case errors.Is(err, cache.ErrInvalidName):
		return badRequest(c, "invalid_object_id")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "timeout"})
	}

	h.logger.WithFields(logging.RequestFields(RequestID(c), c.Method(), string(c.Request().URI().Path()), fiber.StatusInternalServerError)).
		WithError(err).
		Error("request_failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
}

func badRequest(c fiber.Ctx, code string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": code})
}

func objectIDParam(c fiber.Ctx) (string, error) {
	raw := c.Params("*")
	if raw == "" {
		return "", errors.New("object id required")
	}
	return bags.URLDecode(raw)
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
