// Package httpapi serves read-only saga state over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	saga "github.com/grafikui/shareaware-saga"
)

// MaxLimit caps the page size of list endpoints.
const MaxLimit = 1000

// Querier reads saga instances. *saga.Engine is a Querier.
type Querier interface {
	Instance(ctx context.Context, id string) (*saga.Instance, error)
	Query(ctx context.Context, filter saga.InstanceFilter) (*saga.InstanceQueryResult, error)
	Stale(ctx context.Context, olderThan time.Duration, limit int) (*saga.InstanceQueryResult, error)
}

// Handler serves the saga query endpoints.
type Handler struct {
	sagas  Querier
	logger *zap.Logger
}

// NewHandler returns a handler over q. A nil logger disables logging.
func NewHandler(q Querier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sagas: q, logger: logger}
}

// Register mounts the endpoints on app.
func (h *Handler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/sagas", h.List)
	app.Get("/sagas/stale", h.Stale)
	app.Get("/sagas/:id", h.Get)
}

// NewApp returns a fiber app with the endpoints mounted.
func NewApp(q Querier, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "saga-worker",
		DisableStartupMessage: true,
	})
	NewHandler(q, logger).Register(app)
	return app
}

type listResponse struct {
	Instances []saga.Instance `json:"instances"`
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Get returns one instance.
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	inst, err := h.sagas.Instance(c.UserContext(), id)
	if err != nil {
		h.logger.Error("load saga", zap.String("saga_id", id), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "could not load saga"})
	}
	if inst == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "saga not found"})
	}
	return c.JSON(inst)
}

// List returns instances filtered by status and workflow, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	limit, offset, err := page(c)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	filter := saga.InstanceFilter{Limit: limit, Offset: offset}
	for _, s := range splitList(c.Query("status")) {
		status := saga.InstanceStatus(s)
		if status != saga.StatusPending && !status.Archived() {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid status " + s})
		}
		filter.Status = append(filter.Status, status)
	}
	for _, w := range splitList(c.Query("workflow")) {
		filter.Workflow = append(filter.Workflow, saga.WorkflowType(w))
	}

	result, err := h.sagas.Query(c.UserContext(), filter)
	if err != nil {
		h.logger.Error("query sagas", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "could not query sagas"})
	}
	return c.JSON(newListResponse(result, limit, offset))
}

// Stale returns pending instances idle for at least older_than.
func (h *Handler) Stale(c *fiber.Ctx) error {
	limit, _, err := page(c)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	olderThan := time.Hour
	if raw := c.Query("older_than"); raw != "" {
		olderThan, err = time.ParseDuration(raw)
		if err != nil || olderThan < 0 {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid older_than"})
		}
	}

	result, err := h.sagas.Stale(c.UserContext(), olderThan, limit)
	if err != nil {
		h.logger.Error("query stale sagas", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "could not query sagas"})
	}
	return c.JSON(newListResponse(result, limit, 0))
}

func newListResponse(result *saga.InstanceQueryResult, limit, offset int) listResponse {
	instances := result.Instances
	if instances == nil {
		instances = []saga.Instance{}
	}
	return listResponse{Instances: instances, Total: result.Total, Limit: limit, Offset: offset}
}

func page(c *fiber.Ctx) (int, int, error) {
	limit := c.QueryInt("limit", saga.DefaultQueryLimit)
	if limit <= 0 || limit > MaxLimit {
		return 0, 0, fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 1000")
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		return 0, 0, fiber.NewError(http.StatusBadRequest, "offset must not be negative")
	}
	return limit, offset, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
