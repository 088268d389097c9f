package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localnerve/proposaldb/internal/config"
	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/handlers"
	"github.com/localnerve/proposaldb/internal/middleware"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/testenv"
	"github.com/localnerve/proposaldb/internal/types"
)

var (
	owner    = &types.Actor{ID: "user-1", Roles: []string{"user"}}
	stranger = &types.Actor{ID: "user-2", Roles: []string{"user"}}
	reviewer = &types.Actor{ID: "rev-1", Roles: []string{"reviewer"}}
	admin    = &types.Actor{ID: "adm-1", Roles: []string{"admin"}}
)

type testServer struct {
	app    *fiber.App
	jwt    *services.JWTVerifier
	status *services.StatusEngine
	blobs  *documents.MemoryBlobStore
}

// setupServer mounts every route on an in-memory backend.
func setupServer(t *testing.T) *testServer {
	t.Helper()

	db := testenv.SQLite(t)
	attachments := documents.NewMemoryStore()
	blobs := documents.NewMemoryBlobStore()
	status := services.NewStatusEngine(db, nil, services.DefaultRoles, nil, nil)
	coord := services.NewCoordinator(services.CoordinatorOptions{
		DB:          db,
		Attachments: attachments,
		Blobs:       blobs,
		Status:      status,
	})
	verifier := services.NewJWTVerifier("handler-test-secret")

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	api := app.Group("/api")
	handlers.Register(api, &handlers.Handlers{
		Drafts:        &handlers.DraftHandler{Coordinator: coord},
		Proposals:     &handlers.ProposalHandler{Coordinator: coord, Status: status},
		Admin:         &handlers.AdminHandler{Coordinator: coord},
		Notifications: &handlers.NotificationHandler{Directory: services.NewDirectory(db, services.DefaultRoles, nil)},
		Health: &handlers.HealthHandler{Checker: services.NewHealthChecker(
			&config.Config{DBType: "sqlite", BlobBackend: "memory"}, db, attachments, nil)},
	}, middleware.AuthActor(middleware.Authenticator{JWT: verifier}), "reviewer", "admin")
	app.Use(handlers.NotFound)

	return &testServer{app: app, jwt: verifier, status: status, blobs: blobs}
}

func (s *testServer) do(t *testing.T, req *http.Request, actor *types.Actor) *http.Response {
	t.Helper()
	if actor != nil {
		token, err := s.jwt.Issue(actor, time.Minute)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (s *testServer) json(t *testing.T, method, path string, body interface{}, actor *types.Actor) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return s.do(t, req, actor)
}

func (s *testServer) createDraft(t *testing.T, actor *types.Actor) string {
	t.Helper()
	resp := s.json(t, http.MethodPost, "/api/drafts", map[string]string{"eventType": "school-based"}, actor)
	testenv.AssertStatus(t, resp, http.StatusCreated)
	var draft services.Draft
	testenv.ParseJSON(t, resp, &draft)
	return draft.DraftID
}

func orgInfoBody(id string) map[string]interface{} {
	return map[string]interface{}{
		"proposalId":        id,
		"organizationName":  "Robotics Club",
		"organizationTypes": "school-based",
		"contactName":       "Dana Cruz",
		"contactEmail":      "dana@example.org",
	}
}

func (s *testServer) completeDraft(t *testing.T, id string) {
	t.Helper()
	resp := s.json(t, http.MethodPost, "/api/proposals/section/orgInfo", orgInfoBody(id), owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	resp = s.json(t, http.MethodPut, "/api/proposals/section/schoolEvent", map[string]interface{}{
		"proposalId":     id,
		"eventName":      "Regional Robotics Fair",
		"eventVenue":     "Main Gym",
		"eventCategory":  "academic",
		"eventStartDate": "2026-11-02",
		"eventEndDate":   "2026-11-03",
		"eventMode":      "offline",
		"targetAudience": []string{"students"},
	}, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	resp = s.json(t, http.MethodPost, "/api/proposals/section/reporting", map[string]interface{}{
		"proposalId":        id,
		"reportDescription": "Forty teams competed.",
		"attendanceCount":   "320",
	}, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
}

func TestHealthIsPublic(t *testing.T) {
	s := setupServer(t)
	resp := s.json(t, http.MethodGet, "/api/health", nil, nil)
	testenv.AssertStatus(t, resp, http.StatusOK)

	var result services.HealthCheckResult
	testenv.ParseJSON(t, resp, &result)
	assert.True(t, result.Healthy())
}

func TestRequiresActor(t *testing.T) {
	s := setupServer(t)

	resp := s.json(t, http.MethodPost, "/api/drafts", nil, nil)
	testenv.AssertStatus(t, resp, http.StatusUnauthorized)
	var body map[string]interface{}
	testenv.ParseJSON(t, resp, &body)
	assert.Equal(t, "authorization.actor", body["type"])

	req := httptest.NewRequest(http.MethodPost, "/api/drafts", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp = s.do(t, req, nil)
	testenv.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestAPIVersionHeader(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/drafts", nil)
	req.Header.Set("X-Api-Version", "2.0")
	resp := s.do(t, req, owner)
	testenv.AssertStatus(t, resp, http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/api/drafts", nil)
	req.Header.Set("X-Api-Version", "v1")
	resp = s.do(t, req, owner)
	testenv.AssertStatus(t, resp, http.StatusCreated)
	assert.Equal(t, middleware.APIVersion, resp.Header.Get("X-Api-Version"))
}

func TestSectionValidationErrorNamesFields(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)

	body := orgInfoBody(id)
	delete(body, "contactEmail")
	resp := s.json(t, http.MethodPost, "/api/proposals/section/orgInfo", body, owner)
	testenv.AssertStatus(t, resp, http.StatusBadRequest)

	var envelope struct {
		Type   string             `json:"type"`
		Fields []types.FieldError `json:"fields"`
	}
	testenv.ParseJSON(t, resp, &envelope)
	assert.Equal(t, "validation", envelope.Type)
	require.Len(t, envelope.Fields, 1)
	assert.Equal(t, "contactEmail", envelope.Fields[0].Field)

	resp = s.json(t, http.MethodPost, "/api/proposals/section/eventTypeSelection", body, owner)
	testenv.AssertStatus(t, resp, http.StatusBadRequest)
}

func TestSubmitVerbAndReview(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)
	s.completeDraft(t, id)

	resp := s.json(t, http.MethodPost, "/api/proposals/"+id+":submit", map[string]string{"priority": "high"}, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	var tr services.Transition
	testenv.ParseJSON(t, resp, &tr)
	assert.Equal(t, types.StatusPending, tr.To)
	require.Len(t, tr.Notifications, 1)
	assert.Equal(t, types.PriorityHigh, tr.Notifications[0].Priority)

	resp = s.json(t, http.MethodPost, "/api/proposals/"+id+":submit", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusConflict)

	resp = s.json(t, http.MethodPost, "/api/proposals/"+id+":review", reviewBody("approve"), owner)
	testenv.AssertStatus(t, resp, http.StatusForbidden)

	resp = s.json(t, http.MethodPost, "/api/proposals/"+id+":review", reviewBody("maybe"), reviewer)
	testenv.AssertStatus(t, resp, http.StatusBadRequest)

	resp = s.json(t, http.MethodPost, "/api/proposals/"+id+":review", reviewBody("approve"), reviewer)
	testenv.AssertStatus(t, resp, http.StatusOK)

	resp = s.json(t, http.MethodGet, "/api/proposals/"+id+"/history", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	var history []map[string]interface{}
	testenv.ParseJSON(t, resp, &history)
	assert.Len(t, history, 2)
}

func reviewBody(decision string) handlers.ReviewRequest {
	return handlers.ReviewRequest{Decision: decision, Comments: "Looks good"}
}

func TestUnknownVerb(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)

	resp := s.json(t, http.MethodPost, "/api/proposals/"+id+":frobnicate", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusNotFound)

	resp = s.json(t, http.MethodPost, "/api/proposals/debug/"+id+":scrub", nil, reviewer)
	testenv.AssertStatus(t, resp, http.StatusNotFound)

	resp = s.json(t, http.MethodPatch, "/api/notifications/"+types.NewCanonicalID()+":star", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusNotFound)
}

func TestPlaceholderIDIsConflict(t *testing.T) {
	s := setupServer(t)
	resp := s.json(t, http.MethodGet, "/api/proposals/fallback-1760000000000-a1b2c3", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusConflict)

	var body map[string]interface{}
	testenv.ParseJSON(t, resp, &body)
	assert.Equal(t, "identity", body["type"])
}

func TestAdminListIsRelationalOnlyWithoutFiles(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)

	resp := s.json(t, http.MethodGet, "/api/admin/proposals", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusForbidden)

	resp = s.json(t, http.MethodGet, "/api/admin/proposals?status=draft", nil, reviewer)
	testenv.AssertStatus(t, resp, http.StatusOK)
	var page services.AdminPage
	testenv.ParseJSON(t, resp, &page)
	assert.Zero(t, page.Total, "drafts are hidden from reviewers")

	resp = s.json(t, http.MethodGet, "/api/admin/proposals?status=draft&size=5", nil, admin)
	testenv.AssertStatus(t, resp, http.StatusOK)
	testenv.ParseJSON(t, resp, &page)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 5, page.Size)
	require.Len(t, page.Items, 1)
	assert.Equal(t, id, page.Items[0].Proposal.ID)
	assert.Equal(t, types.DataSourceRelationalOnly, page.Items[0].DataSource)
	assert.Empty(t, page.Items[0].Attachments)
}

func TestMultipartSectionWithFile(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range map[string]string{
		"proposalId":       id,
		"organizationName": "Robotics Club",
		"contactName":      "Dana Cruz",
		"contactEmail":     "dana@example.org",
	} {
		require.NoError(t, w.WriteField(key, value))
	}
	require.NoError(t, w.WriteField("organizationTypes", "school-based"))
	require.NoError(t, w.WriteField("organizationTypes", "other"))
	part, err := w.CreateFormFile("gpoa", "gpoa.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/proposals/section/orgInfo", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	resp := s.do(t, req, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)

	var saved handlers.SectionResponse
	testenv.ParseJSON(t, resp, &saved)
	assert.Equal(t, types.SectionSchoolEvent, saved.CurrentSection)
	require.Len(t, saved.Attachments, 1)
	assert.Equal(t, "gpoa", saved.Attachments[0].Role)
	assert.Equal(t, 1, s.blobs.Len())

	resp = s.json(t, http.MethodGet, "/api/proposals/"+id+"/files/gpoa", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "gpoa.pdf")

	resp = s.json(t, http.MethodGet, "/api/proposals/"+id, nil, stranger)
	testenv.AssertStatus(t, resp, http.StatusForbidden)

	resp = s.json(t, http.MethodGet, "/api/proposals/"+id, nil, reviewer)
	testenv.AssertStatus(t, resp, http.StatusForbidden)

	resp = s.json(t, http.MethodGet, "/api/proposals/"+id, nil, admin)
	testenv.AssertStatus(t, resp, http.StatusOK)
	var merged services.MergedProposal
	testenv.ParseJSON(t, resp, &merged)
	assert.Equal(t, types.DataSourceHybrid, merged.DataSource)
}

func TestNotificationRoutes(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)
	s.completeDraft(t, id)
	resp := s.json(t, http.MethodPost, "/api/proposals/"+id+":submit", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)

	resp = s.json(t, http.MethodGet, "/api/notifications", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	var page services.NotificationPage
	testenv.ParseJSON(t, resp, &page)
	assert.Empty(t, page.Items)

	resp = s.json(t, http.MethodGet, "/api/notifications?unread=true", nil, reviewer)
	testenv.AssertStatus(t, resp, http.StatusOK)
	testenv.ParseJSON(t, resp, &page)
	require.Len(t, page.Items, 1)
	noteID := page.Items[0].ID

	resp = s.json(t, http.MethodPatch, "/api/notifications/"+noteID+":read", nil, stranger)
	testenv.AssertStatus(t, resp, http.StatusForbidden)

	resp = s.json(t, http.MethodPatch, "/api/notifications/"+noteID+":read", nil, reviewer)
	testenv.AssertStatus(t, resp, http.StatusOK)

	resp = s.json(t, http.MethodGet, "/api/notifications?unread=true", nil, reviewer)
	testenv.AssertStatus(t, resp, http.StatusOK)
	page = services.NotificationPage{}
	testenv.ParseJSON(t, resp, &page)
	assert.Empty(t, page.Items)

	resp = s.json(t, http.MethodPost, "/api/notifications", services.NotificationInput{
		TargetType: types.TargetAll, Title: "Deadline", Message: "Friday",
	}, reviewer)
	testenv.AssertStatus(t, resp, http.StatusCreated)
}

func TestDeleteDraft(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)

	resp := s.json(t, http.MethodDelete, "/api/proposals/"+id, nil, stranger)
	testenv.AssertStatus(t, resp, http.StatusForbidden)

	resp = s.json(t, http.MethodDelete, "/api/proposals/"+id, nil, owner)
	testenv.AssertStatus(t, resp, http.StatusNoContent)
	testenv.AssertNoContent(t, resp)

	resp = s.json(t, http.MethodGet, "/api/proposals/"+id, nil, owner)
	testenv.AssertStatus(t, resp, http.StatusNotFound)
}

func TestSetEventType_FailClosedIsOK(t *testing.T) {
	s := setupServer(t)
	id := s.createDraft(t, owner)

	resp := s.json(t, http.MethodPatch, "/api/drafts/"+id+"/event-type", map[string]string{"eventType": "festival"}, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	var draft services.Draft
	testenv.ParseJSON(t, resp, &draft)
	assert.Empty(t, draft.EventType)
	assert.Equal(t, types.SectionOrgInfo, draft.CurrentSection)
	require.Len(t, draft.Warnings, 1)
	assert.Equal(t, "eventType", draft.Warnings[0].Field)

	resp = s.json(t, http.MethodGet, "/api/proposals/"+id, nil, owner)
	testenv.AssertStatus(t, resp, http.StatusOK)
	var merged services.MergedProposal
	testenv.ParseJSON(t, resp, &merged)
	assert.Empty(t, merged.Proposal.EventType)
}

func TestUnknownRoute(t *testing.T) {
	s := setupServer(t)
	resp := s.json(t, http.MethodGet, "/api/nothing/here", nil, owner)
	testenv.AssertStatus(t, resp, http.StatusNotFound)

	t.Run("anonymous callers get the 404 envelope", func(t *testing.T) {
		resp := s.json(t, http.MethodGet, "/api/nothing/here", nil, nil)
		testenv.AssertStatus(t, resp, http.StatusNotFound)
		var body map[string]interface{}
		testenv.ParseJSON(t, resp, &body)
		assert.Equal(t, "/api/nothing/here", body["url"])
		assert.Equal(t, false, body["ok"])
	})

	t.Run("resource groups still require an actor", func(t *testing.T) {
		for _, path := range []string{"/api/drafts", "/api/proposals/x", "/api/admin/proposals", "/api/notifications"} {
			resp := s.json(t, http.MethodGet, path, nil, nil)
			testenv.AssertStatus(t, resp, http.StatusUnauthorized)
		}
	})
}
