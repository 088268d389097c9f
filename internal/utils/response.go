// response.go
//
// Draft identity and hybrid persistence service for event proposals
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of proposaldb.
// proposaldb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// proposaldb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with proposaldb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package utils

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/types"
)

// Error types reported in the envelope's type field.
const (
	ErrorTypeValidation  = "validation"
	ErrorTypeIdentity    = "identity"
	ErrorTypeConsistency = "consistency"
	ErrorTypeTransition  = "state_transition"
	ErrorTypePersistence = "persistence"
	ErrorTypeNotFound    = "not_found"
	ErrorTypeForbidden   = "forbidden"
	ErrorTypeInternal    = "internal"
)

// SuccessResponse sends a standard success response
func SuccessResponse(c *fiber.Ctx, data interface{}, status int) error {
	return c.Status(status).JSON(data)
}

// ErrorResponse sends a standard error response
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return c.Status(status).JSON(envelope(c, message, status, errorType))
}

// NotFoundResponse sends a 404 not found response
func NotFoundResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, message, fiber.StatusNotFound, ErrorTypeNotFound)
}

// ServiceErrorResponse maps a service error onto its HTTP status and envelope.
// Validation errors carry their fields, consistency errors their issues.
func ServiceErrorResponse(c *fiber.Ctx, err error) error {
	var (
		ve *types.ValidationError
		ie *types.IdentityResolutionError
		ce *types.ConsistencyError
		se *types.StateTransitionError
		pe *types.PersistenceError
		ne *types.NotFoundError
		fe *types.ForbiddenError
		cu *types.CustomError
	)

	switch {
	case errors.As(err, &ve):
		body := envelope(c, err.Error(), fiber.StatusBadRequest, ErrorTypeValidation)
		fields := ve.Fields
		if fields == nil {
			fields = []types.FieldError{}
		}
		body["fields"] = fields
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.As(err, &ie):
		return ErrorResponse(c, err.Error(), fiber.StatusConflict, ErrorTypeIdentity)
	case errors.As(err, &ce):
		body := envelope(c, err.Error(), fiber.StatusConflict, ErrorTypeConsistency)
		body["issues"] = ce.Issues
		return c.Status(fiber.StatusConflict).JSON(body)
	case errors.As(err, &se):
		body := envelope(c, err.Error(), fiber.StatusConflict, ErrorTypeTransition)
		body["from"] = se.From
		body["to"] = se.To
		return c.Status(fiber.StatusConflict).JSON(body)
	case errors.As(err, &pe):
		body := envelope(c, "store temporarily unavailable: "+pe.Op, fiber.StatusServiceUnavailable, ErrorTypePersistence)
		body["retryable"] = pe.Retryable()
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	case errors.As(err, &ne):
		return ErrorResponse(c, err.Error(), fiber.StatusNotFound, ErrorTypeNotFound)
	case errors.As(err, &fe):
		return ErrorResponse(c, err.Error(), fiber.StatusForbidden, ErrorTypeForbidden)
	case errors.As(err, &cu):
		return ErrorResponse(c, cu.Message, cu.Code, cu.Type)
	}
	return ErrorResponse(c, "Internal Server Error", fiber.StatusInternalServerError, ErrorTypeInternal)
}

func envelope(c *fiber.Ctx, message string, status int, errorType string) fiber.Map {
	return fiber.Map{
		"status":    status,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	}
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status    int                      `json:"status"`
	Message   string                   `json:"message"`
	Ok        bool                     `json:"ok"`
	Timestamp string                   `json:"timestamp"`
	URL       string                   `json:"url"`
	Type      string                   `json:"type,omitempty"`
	Fields    []types.FieldError       `json:"fields,omitempty"`
	Issues    []types.ConsistencyIssue `json:"issues,omitempty"`
	Retryable bool                     `json:"retryable,omitempty"`
}
