package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/types"
)

const defaultCreateTimeout = 10 * time.Second

// HTTPCreator creates drafts through POST /api/drafts.
type HTTPCreator struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type createRequest struct {
	EventType             types.EventType `json:"eventType"`
	OriginalDescriptiveID string          `json:"originalDescriptiveId"`
}

type createResponse struct {
	DraftID string `json:"draftId"`
}

type errorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// CreateDraft implements Creator. Connection failures, timeouts and gateway
// errors are reported as ErrUnavailable.
func (h *HTTPCreator) CreateDraft(ctx context.Context, eventType types.EventType, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultCreateTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	a := fiber.Post(strings.TrimRight(h.BaseURL, "/") + "/api/drafts")
	a.Set("X-Api-Version", "1")
	if h.Token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+h.Token)
	}
	a.JSON(createRequest{EventType: eventType, OriginalDescriptiveID: reference})
	a.Timeout(timeout)

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}

	switch {
	case code == fiber.StatusCreated || code == fiber.StatusOK:
		var out createResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode draft response: %w", err)
		}
		return out.DraftID, nil
	case code == fiber.StatusBadGateway || code == fiber.StatusServiceUnavailable || code == fiber.StatusGatewayTimeout:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, code)
	default:
		var out errorResponse
		if json.Unmarshal(body, &out) == nil && out.Message != "" {
			return "", fmt.Errorf("draft service: status %d: %s: %s", code, out.Type, out.Message)
		}
		return "", fmt.Errorf("draft service: status %d", code)
	}
}
