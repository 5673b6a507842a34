package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/supportiq/backend/internal/a2a"
)

type ProviderHandler struct {
	client *a2a.Client
}

func NewProviderHandler(client *a2a.Client) *ProviderHandler {
	return &ProviderHandler{client: client}
}

// HandleList pings every known provider through its agent card and reports
// per-provider status.
func (h *ProviderHandler) HandleList(c *fiber.Ctx) error {
	statuses := h.client.PingAll(c.Context())

	online := 0
	providers := make(map[string]a2a.ProviderStatus, len(statuses))
	for provider, status := range statuses {
		providers[string(provider)] = status
		if status.Status == "online" {
			online++
		}
	}

	return c.JSON(fiber.Map{
		"providers": providers,
		"online":    online,
		"total":     len(statuses),
	})
}
