package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/middleware"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/utils"
)

// DraftHandler handles draft identity routes
type DraftHandler struct {
	Coordinator *services.Coordinator
}

// CreateDraftRequest is the body of POST /api/drafts.
type CreateDraftRequest struct {
	EventType             string `json:"eventType"`
	OriginalDescriptiveID string `json:"originalDescriptiveId"`
}

// EventTypeRequest is the body of PATCH /api/drafts/:id/event-type.
type EventTypeRequest struct {
	EventType string `json:"eventType"`
}

// Create handles POST /api/drafts
// @Summary Create a draft
// @Description Assign a canonical id to a new draft proposal
// @Tags Drafts
// @Accept json
// @Produce json
// @Param body body CreateDraftRequest true "Draft request"
// @Success 201 {object} services.Draft
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /drafts [post]
func (h *DraftHandler) Create(c *fiber.Ctx) error {
	var req CreateDraftRequest
	if err := bindJSON(c, &req); err != nil {
		return utils.ServiceErrorResponse(c, err)
	}

	draft, err := h.Coordinator.CreateDraft(c.UserContext(), middleware.Actor(c), req.EventType, req.OriginalDescriptiveID)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(draft)
}

// SetEventType handles PATCH /api/drafts/:id/event-type
// @Summary Select the event type of a draft
// @Description Unknown event types clear the selection and move the draft to orgInfo; the response carries a warning
// @Tags Drafts
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param body body EventTypeRequest true "Event type"
// @Success 200 {object} services.Draft
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /drafts/{id}/event-type [patch]
func (h *DraftHandler) SetEventType(c *fiber.Ctx) error {
	var req EventTypeRequest
	if err := bindJSON(c, &req); err != nil {
		return utils.ServiceErrorResponse(c, err)
	}

	draft, err := h.Coordinator.SetEventType(c.UserContext(), middleware.Actor(c), c.Params("id"), req.EventType)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(draft)
}
