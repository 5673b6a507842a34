package handlers

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportiq/backend/internal/cache/redis"
	"github.com/supportiq/backend/internal/classify"
	"github.com/supportiq/backend/internal/metrics"
	"github.com/supportiq/backend/internal/pipeline"
	"github.com/supportiq/backend/internal/storage/models"
	"github.com/supportiq/backend/internal/storage/sqlite"
	"github.com/supportiq/backend/pkg/logger"
)

const intakeDedupTTL = 24 * time.Hour

type TicketHandler struct {
	orchestrator *pipeline.Orchestrator
	store        *sqlite.Client
	cache        *redis.Client // nil when redis is disabled
}

func NewTicketHandler(orchestrator *pipeline.Orchestrator, store *sqlite.Client, cache *redis.Client) *TicketHandler {
	return &TicketHandler{
		orchestrator: orchestrator,
		store:        store,
		cache:        cache,
	}
}

// HandleCreate accepts a ticket, persists it, and kicks off a pipeline run
// in the background. The response is 202: the run outcome arrives via the
// trace endpoints and the event stream.
func (h *TicketHandler) HandleCreate(c *fiber.Ctx) error {
	var req struct {
		TicketID    string `json:"ticket_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		CustomerID  string `json:"customer_id"`
		Category    string `json:"category"`
		Channel     string `json:"channel"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse ticket body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title and description are required",
		})
	}

	if req.TicketID == "" {
		req.TicketID = "TICK-" + uuid.NewString()[:8]
	}
	if req.Category == "" {
		req.Category = classify.SuggestCategory(req.Title, req.Description)
	}
	if req.Channel == "" {
		req.Channel = "api"
	}

	if h.cache != nil {
		fresh, err := h.cache.MarkTicketSeen(c.Context(), req.TicketID, intakeDedupTTL)
		if err != nil {
			logger.Warn("Intake dedup check failed, accepting ticket", zap.Error(err))
		} else if !fresh {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":     "ticket already accepted",
				"ticket_id": req.TicketID,
			})
		}
	}

	ticket := &models.Ticket{
		TicketID:    req.TicketID,
		Title:       req.Title,
		Description: req.Description,
		CustomerID:  req.CustomerID,
		Category:    req.Category,
		Channel:     req.Channel,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.store.InsertTicket(c.Context(), ticket); err != nil {
		logger.Error("Failed to persist ticket", zap.String("ticket_id", ticket.TicketID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to persist ticket",
		})
	}

	metrics.TicketsAccepted.WithLabelValues(ticket.Channel).Inc()

	go h.orchestrator.Run(context.Background(), ticket)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":    "processing",
		"ticket_id": ticket.TicketID,
		"category":  ticket.Category,
	})
}

func (h *TicketHandler) HandleGet(c *fiber.Ctx) error {
	ticketID := c.Params("id")

	ticket, status, err := h.store.GetTicket(c.Context(), ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "ticket not found",
			})
		}
		logger.Error("Failed to load ticket", zap.String("ticket_id", ticketID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load ticket",
		})
	}

	return c.JSON(fiber.Map{
		"ticket": ticket,
		"status": status,
	})
}

func (h *TicketHandler) HandleGetTrace(c *fiber.Ctx) error {
	ticketID := c.Params("id")

	traces, err := h.store.GetTraces(c.Context(), ticketID)
	if err != nil {
		logger.Error("Failed to load traces", zap.String("ticket_id", ticketID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load traces",
		})
	}
	if len(traces) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no traces for ticket",
		})
	}

	return c.JSON(fiber.Map{
		"ticket_id": ticketID,
		"traces":    traces,
	})
}
