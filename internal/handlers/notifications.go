package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/middleware"
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/utils"
)

// NotificationHandler handles notification routes
type NotificationHandler struct {
	Directory *services.Directory
}

// List handles GET /api/notifications
// @Summary List my notifications
// @Description Notifications addressed to the caller, one of its roles, or everyone. Hidden and expired records are excluded.
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param page query int false "Page, from 1"
// @Param size query int false "Page size, at most 100"
// @Success 200 {object} services.NotificationPage
// @Security CookieAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	filter := services.NotificationFilter{
		UnreadOnly: c.QueryBool("unread", false),
		Page:       parsePage(c),
	}
	page, err := h.Directory.List(c.UserContext(), middleware.Actor(c), filter)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(page)
}

// Create handles POST /api/notifications
// @Summary Create a notification
// @Tags Notifications
// @Accept json
// @Produce json
// @Param body body services.NotificationInput true "Notification"
// @Success 201 {object} models.Notification
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /notifications [post]
func (h *NotificationHandler) Create(c *fiber.Ctx) error {
	var in services.NotificationInput
	if err := bindJSON(c, &in); err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	n, err := h.Directory.Create(c.UserContext(), middleware.Actor(c), in)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

// Action handles PATCH /api/notifications/:id:read and :hide
// @Summary Mark a notification read or hidden
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID with :read or :hide suffix"
// @Success 200 {object} models.Notification
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /notifications/{id} [patch]
func (h *NotificationHandler) Action(c *fiber.Ctx) error {
	id, verb := parseVerb(c.Params("id"))

	var (
		n   *models.Notification
		err error
	)
	switch verb {
	case "read":
		n, err = h.Directory.MarkRead(c.UserContext(), middleware.Actor(c), id)
	case "hide":
		n, err = h.Directory.Hide(c.UserContext(), middleware.Actor(c), id)
	default:
		return unknownVerb(c, verb)
	}
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(n)
}
