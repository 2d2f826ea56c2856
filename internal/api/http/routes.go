package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/geodata-aggregation/internal/aggregate"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/history"
)

var validate = validator.New()

const defaultDegradedMaxAge = 30 * time.Second

// DatasetService serves collections to the route layer.
type DatasetService interface {
	Dataset(ctx context.Context, name string) (feature.Collection, error)
	TTL(name string) (time.Duration, error)
	Municipalities(ctx context.Context, year int, indicator string) feature.Collection
	MunicipalitiesTTL() time.Duration
}

// HistoryReader reads recorded batches.
type HistoryReader interface {
	Range(dataset string, from, to time.Time) ([]history.Batch, error)
}

// Deps are the collaborators of the route layer.
type Deps struct {
	Service  DatasetService
	History  HistoryReader
	Gatherer prometheus.Gatherer
	Datasets []string
	// DegradedMaxAge is the client cache lifetime of degraded collections.
	DegradedMaxAge time.Duration
}

// NewErrorHandler renders every error as a JSON body. Errors that are not a
// *fiber.Error are logged and answered with a generic 500.
func NewErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var e *fiber.Error
		if !errors.As(err, &e) {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			e = fiber.NewError(fiber.StatusInternalServerError, "internal server error")
		}
		return c.Status(e.Code).JSON(fiber.Map{
			"error":   true,
			"message": e.Message,
		})
	}
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.DegradedMaxAge <= 0 {
		d.DegradedMaxAge = defaultDegradedMaxAge
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "geodata-aggregation",
		})
	})

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/datasets", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"datasets": d.Datasets})
	})

	v1.Get("/datasets/:name", func(c *fiber.Ctx) error {
		name := c.Params("name")
		ttl, err := d.Service.TTL(name)
		if err != nil {
			return notFound(err)
		}

		coll, err := d.Service.Dataset(c.UserContext(), name)
		if err != nil {
			return notFound(err)
		}
		return d.writeCollection(c, coll, ttl)
	})

	v1.Get("/statistics", func(c *fiber.Ctx) error {
		var q statisticsQuery
		q.bind(c)
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		coll := d.Service.Municipalities(c.UserContext(), q.Year, q.Indicator)
		return d.writeCollection(c, coll, d.Service.MunicipalitiesTTL())
	})

	v1.Get("/history/:name", func(c *fiber.Ctx) error {
		if d.History == nil {
			return fiber.NewError(fiber.StatusNotFound, "history is not recorded")
		}
		name := c.Params("name")
		if _, err := d.Service.TTL(name); err != nil && name != aggregate.DatasetStatistics {
			return notFound(err)
		}

		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		batches, err := d.History.Range(name, req.From, req.To)
		if err != nil {
			if errors.Is(err, history.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read history")
		}

		return c.JSON(fiber.Map{
			"dataset": name,
			"from":    req.From,
			"to":      req.To,
			"batches": batches,
		})
	})
}

func (d Deps) writeCollection(c *fiber.Ctx, coll feature.Collection, ttl time.Duration) error {
	maxAge := ttl
	if coll.Meta.Degraded {
		maxAge = d.DegradedMaxAge
	}
	c.Set(fiber.HeaderCacheControl, fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	return c.JSON(coll.GeoJSON(), "application/geo+json")
}

func notFound(err error) error {
	if errors.Is(err, aggregate.ErrUnknownDataset) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve dataset")
}

// statisticsQuery holds query parameters for the statistics endpoint.
type statisticsQuery struct {
	Year      int    `validate:"gte=2000,lte=2100"`
	Indicator string `validate:"required,alphanum,max=64"`
}

func (q *statisticsQuery) bind(c *fiber.Ctx) {
	q.Year = c.QueryInt("year")
	q.Indicator = c.Query("indicator")
}

// historyQuery holds query parameters for the history endpoint. Missing
// bounds cover everything recorded up to now.
type historyQuery struct {
	From time.Time
	To   time.Time `validate:"gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.To = time.Now().UTC()

	if s := c.Query("from"); s != "" {
		from, err := parseTime(s)
		if err != nil {
			return err
		}
		h.From = from
	}
	if s := c.Query("to"); s != "" {
		to, err := parseTime(s)
		if err != nil {
			return err
		}
		h.To = to
	}
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
