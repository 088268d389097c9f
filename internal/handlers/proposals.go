// proposals.go
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
	"encoding/json"
	"mime/multipart"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/middleware"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/utils"
)

// ProposalHandler handles proposal routes
type ProposalHandler struct {
	Coordinator *services.Coordinator
	Status      *services.StatusEngine
}

// SectionResponse is the result of a section save with any files sent alongside.
type SectionResponse struct {
	*services.SectionResult
	Attachments []documents.FileAttachment `json:"attachments,omitempty"`
}

// ReviewRequest is the body of POST /api/proposals/:id:review.
type ReviewRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

// ReconcileRequest is the body of POST /api/proposals/debug/:id:reconcile.
type ReconcileRequest struct {
	Strategy string `json:"strategy"`
}

// SaveSection handles POST|PUT /api/proposals/section/:section
// @Summary Save one wizard section
// @Description Accepts JSON or multipart form data. Multipart file parts are stored as attachments named by their field (the file role).
// @Tags Proposals
// @Accept json,mpfd
// @Produce json
// @Param section path string true "Section" Enums(overview, orgInfo, schoolEvent, communityEvent, reporting)
// @Success 200 {object} SectionResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/section/{section} [post]
func (h *ProposalHandler) SaveSection(c *fiber.Ctx) error {
	actor := middleware.Actor(c)
	raw := c.Body()

	var form *multipart.Form
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		var err error
		if form, err = c.MultipartForm(); err != nil {
			return utils.ServiceErrorResponse(c, &types.ValidationError{Message: "malformed multipart body: " + err.Error()})
		}
		if raw, err = formFields(form); err != nil {
			return utils.ServiceErrorResponse(c, err)
		}
	}

	in, err := services.DecodeSectionInput(c.Params("section"), raw)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	result, err := h.Coordinator.SaveSection(c.UserContext(), actor, in)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}

	resp := SectionResponse{SectionResult: result}
	if form != nil {
		roles := make([]string, 0, len(form.File))
		for role := range form.File {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			for _, fh := range form.File[role] {
				att, err := h.attach(c, actor, result.ID, role, fh)
				if err != nil {
					return utils.ServiceErrorResponse(c, err)
				}
				resp.Attachments = append(resp.Attachments, *att)
			}
		}
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// formFields turns multipart values into the JSON field bag of a section save.
// Repeated keys become arrays; draft and submit are booleans.
func formFields(form *multipart.Form) ([]byte, error) {
	bag := make(map[string]interface{}, len(form.Value))
	for key, values := range form.Value {
		switch {
		case key == "draft" || key == "submit":
			b, err := strconv.ParseBool(values[0])
			if err != nil {
				return nil, &types.ValidationError{
					Message: "malformed form field " + key,
					Fields:  []types.FieldError{{Field: key, Reason: "must be true or false"}},
				}
			}
			bag[key] = b
		case len(values) == 1:
			bag[key] = values[0]
		default:
			bag[key] = values
		}
	}
	return json.Marshal(bag)
}

// AttachFile handles POST /api/proposals/:id/files/:role
// @Summary Attach a file to a proposal
// @Description Stores the multipart "file" part under the given role, replacing any earlier file for that role
// @Tags Proposals
// @Accept mpfd
// @Produce json
// @Param id path string true "Proposal ID"
// @Param role path string true "File role"
// @Param file formData file true "File"
// @Success 201 {object} documents.FileAttachment
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/{id}/files/{role} [post]
func (h *ProposalHandler) AttachFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return utils.ServiceErrorResponse(c, &types.ValidationError{
			Message: "missing file part",
			Fields:  []types.FieldError{{Field: "file", Reason: "required"}},
		})
	}
	att, err := h.attach(c, middleware.Actor(c), c.Params("id"), c.Params("role"), fh)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(att)
}

func (h *ProposalHandler) attach(c *fiber.Ctx, actor *types.Actor, id, role string, fh *multipart.FileHeader) (*documents.FileAttachment, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, &types.ValidationError{Message: "unreadable file part: " + err.Error()}
	}
	defer f.Close()

	return h.Coordinator.AttachFile(c.UserContext(), actor, id, role, f, services.FileMeta{
		OriginalName: fh.Filename,
		MimeType:     fh.Header.Get(fiber.HeaderContentType),
	})
}

// DownloadFile handles GET /api/proposals/:id/files/:role
// @Summary Download an attachment
// @Tags Proposals
// @Produce octet-stream
// @Param id path string true "Proposal ID"
// @Param role path string true "File role"
// @Success 200 {file} binary
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/{id}/files/{role} [get]
func (h *ProposalHandler) DownloadFile(c *fiber.Ctx) error {
	att, rc, err := h.Coordinator.OpenAttachment(c.UserContext(), middleware.Actor(c), c.Params("id"), c.Params("role"))
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	c.Set(fiber.HeaderContentType, att.MimeType)
	c.Attachment(att.OriginalName)
	// fasthttp closes the stream once it has been written
	return c.SendStream(rc, int(att.SizeBytes))
}

// Get handles GET /api/proposals/:id
// @Summary Get a proposal
// @Description Merged relational record and attachment metadata with a provenance tag
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} services.MergedProposal
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/{id} [get]
func (h *ProposalHandler) Get(c *fiber.Ctx) error {
	merged, err := h.Coordinator.GetProposal(c.UserContext(), middleware.Actor(c), c.Params("id"))
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(merged)
}

// History handles GET /api/proposals/:id/history
// @Summary List status transitions
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {array} models.StatusHistory
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/{id}/history [get]
func (h *ProposalHandler) History(c *fiber.Ctx) error {
	id := c.Params("id")
	// read access follows the proposal
	if _, err := h.Coordinator.GetProposal(c.UserContext(), middleware.Actor(c), id); err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	rows, err := h.Status.History(c.UserContext(), id)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(rows)
}

// Action handles POST /api/proposals/:id:submit, :review and :reopen
// @Summary Change proposal status
// @Description Verbs: submit (body {"priority"}), review (body {"decision","comments"}), reopen
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID with verb suffix, e.g. 3f2c...:submit"
// @Success 200 {object} services.Transition
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/{id} [post]
func (h *ProposalHandler) Action(c *fiber.Ctx) error {
	id, verb := parseVerb(c.Params("id"))
	actor := middleware.Actor(c)

	var (
		tr  *services.Transition
		err error
	)
	switch verb {
	case "submit":
		var opts services.SubmitOptions
		if err := bindJSON(c, &opts); err != nil {
			return utils.ServiceErrorResponse(c, err)
		}
		tr, err = h.Status.Submit(c.UserContext(), actor, id, opts)
	case "review":
		var req ReviewRequest
		if err := bindJSON(c, &req); err != nil {
			return utils.ServiceErrorResponse(c, err)
		}
		decision, derr := services.ParseDecision(req.Decision)
		if derr != nil {
			return utils.ServiceErrorResponse(c, derr)
		}
		tr, err = h.Status.Review(c.UserContext(), actor, id, decision, req.Comments)
	case "reopen":
		tr, err = h.Status.Reopen(c.UserContext(), actor, id)
	default:
		return unknownVerb(c, verb)
	}
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(tr)
}

// Debug handles GET /api/proposals/debug/:id
// @Summary Cross-store consistency report
// @Description Compares the relational row with the document store; never repairs
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} services.ConsistencyReport
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/debug/{id} [get]
func (h *ProposalHandler) Debug(c *fiber.Ctx) error {
	report, err := h.Coordinator.Debug(c.UserContext(), middleware.Actor(c), c.Params("id"))
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

// DebugAction handles POST /api/proposals/debug/:id:reconcile
// @Summary Reconcile the stores for one proposal
// @Description Strategies: adopt-documents, purge-orphans
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID with :reconcile suffix"
// @Param body body ReconcileRequest true "Strategy"
// @Success 200 {object} services.ConsistencyReport
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/debug/{id} [post]
func (h *ProposalHandler) DebugAction(c *fiber.Ctx) error {
	id, verb := parseVerb(c.Params("id"))
	if verb != "reconcile" {
		return unknownVerb(c, verb)
	}
	var req ReconcileRequest
	if err := bindJSON(c, &req); err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	report, err := h.Coordinator.Reconcile(c.UserContext(), middleware.Actor(c), id, req.Strategy)
	if err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

// Delete handles DELETE /api/proposals/:id
// @Summary Delete a proposal
// @Description Removes attachments and blobs, then the proposal row
// @Tags Proposals
// @Param id path string true "Proposal ID"
// @Success 204
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposals/{id} [delete]
func (h *ProposalHandler) Delete(c *fiber.Ctx) error {
	if err := h.Coordinator.DeleteProposal(c.UserContext(), middleware.Actor(c), c.Params("id")); err != nil {
		return utils.ServiceErrorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
