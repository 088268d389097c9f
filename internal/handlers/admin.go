package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/middleware"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/utils"
)

// AdminHandler handles administrator routes
type AdminHandler struct {
	Coordinator *services.Coordinator
}

// ListProposals handles GET /api/admin/proposals
// @Summary List proposals for review
// @Description Paginated merged view; each item is tagged hybrid or relational-only
// @Tags Admin
// @Produce json
// @Param status query string false "Status filter"
// @Param eventType query string false "Event type filter"
// @Param owner query string false "Owner id filter"
// @Param search query string false "Search event name, organization or descriptive id"
// @Param page query int false "Page, from 1"
// @Param size query int false "Page size, at most 100"
// @Success 200 {object} services.AdminPage
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /admin/proposals [get]
func (h *AdminHandler) ListProposals(c *fiber.Ctx) error {
	filter := services.AdminFilter{
		Status:    c.Query("status"),
		EventType: c.Query("eventType"),
		Owner:     c.Query("owner"),
		Search:    c.Query("search"),
	}
	page, err := h.Coordinator.AdminView(c.UserContext(), middleware.Actor(c), filter, parsePage(c))
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(page)
}
