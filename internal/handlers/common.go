// common.go
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

package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/middleware"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/utils"
)

// parseVerb splits a custom-method path parameter such as "<id>:submit".
// A parameter without a colon has an empty verb.
func parseVerb(param string) (id, verb string) {
	i := strings.LastIndexByte(param, ':')
	if i < 0 {
		return param, ""
	}
	return param[:i], param[i+1:]
}

// parsePage reads the page and size query parameters; bad values fall back to defaults.
func parsePage(c *fiber.Ctx) services.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return services.Page{Page: page, Size: size}
}

// bindJSON decodes an optional JSON body into out. An empty body leaves out untouched.
func bindJSON(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return &types.ValidationError{Message: "malformed request body: " + err.Error()}
	}
	return nil
}

func unknownVerb(c *fiber.Ctx, verb string) error {
	return utils.ErrorResponse(c, "unknown method :"+verb, fiber.StatusNotFound, utils.ErrorTypeNotFound)
}

// ErrorHandler renders errors that escape handlers and middleware.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.ErrorResponse(c, fe.Message, fe.Code, "http")
	}
	return utils.ServiceErrorResponse(c, err)
}

// NotFound is the catch-all route.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":    fiber.StatusNotFound,
		"message":   "[404] Resource Not Found",
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      utils.ErrorTypeNotFound,
	})
}

// Handlers bundles every route handler.
type Handlers struct {
	Drafts        *DraftHandler
	Proposals     *ProposalHandler
	Admin         *AdminHandler
	Notifications *NotificationHandler
	Health        *HealthHandler
}

// Register mounts the API routes on router. auth resolves the acting user on
// every resource group; paths outside them fall through to NotFound.
func Register(router fiber.Router, h *Handlers, auth fiber.Handler, reviewerRoles ...string) {
	if h.Health != nil {
		router.Get("/health", h.Health.Check)
	}

	router.Use(middleware.VersionMiddleware())

	drafts := router.Group("/drafts", auth)
	drafts.Post("", h.Drafts.Create)
	drafts.Patch("/:id/event-type", h.Drafts.SetEventType)

	proposals := router.Group("/proposals", auth)
	proposals.Post("/section/:section", h.Proposals.SaveSection)
	proposals.Put("/section/:section", h.Proposals.SaveSection)
	proposals.Get("/debug/:id", h.Proposals.Debug)
	proposals.Post("/debug/:id", h.Proposals.DebugAction)
	proposals.Post("/:id/files/:role", h.Proposals.AttachFile)
	proposals.Get("/:id/files/:role", h.Proposals.DownloadFile)
	proposals.Get("/:id/history", h.Proposals.History)
	proposals.Get("/:id", h.Proposals.Get)
	proposals.Post("/:id", h.Proposals.Action)
	proposals.Delete("/:id", h.Proposals.Delete)

	admin := router.Group("/admin", auth)
	if len(reviewerRoles) > 0 {
		admin.Use(middleware.AuthRoles(reviewerRoles...))
	}
	admin.Get("/proposals", h.Admin.ListProposals)

	notifications := router.Group("/notifications", auth)
	notifications.Get("", h.Notifications.List)
	notifications.Post("", h.Notifications.Create)
	notifications.Patch("/:id", h.Notifications.Action)
}
