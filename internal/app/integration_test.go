package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/testenv"
	"github.com/localnerve/proposaldb/internal/types"
)

// TestHybridStack_Integration runs a draft through MariaDB and MongoDB.
func TestHybridStack_Integration(t *testing.T) {
	testenv.RequireDocker(t)
	tc := testenv.StartContainers(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	rt, err := Open(ctx, tc.Config(), zap.NewNop(), nil)
	require.NoError(t, err)
	defer rt.Close()

	server := NewServer(rt, ServerOptions{})
	owner := &types.Actor{ID: "owner-1", Roles: []string{"user"}}
	token, err := rt.Auth.JWT.Issue(owner, time.Minute)
	require.NoError(t, err)

	call := func(req *http.Request) *http.Response {
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := server.Test(req, -1)
		require.NoError(t, err)
		return resp
	}
	jsonReq := func(method, path string, body any) *http.Request {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	resp := call(jsonReq(http.MethodPost, "/api/drafts", map[string]string{"eventType": "school-based", "originalDescriptiveId": "science-fair"}))
	testenv.AssertStatus(t, resp, http.StatusCreated)
	var draft struct {
		DraftID string `json:"draftId"`
	}
	testenv.ParseJSON(t, resp, &draft)

	resp = call(jsonReq(http.MethodPost, "/api/proposals/section/orgInfo", map[string]any{
		"proposalId":        draft.DraftID,
		"organizationName":  "Science Club",
		"organizationTypes": "school-based",
		"contactName":       "Ada",
		"contactEmail":      "ada@example.org",
	}))
	testenv.AssertStatus(t, resp, http.StatusOK)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "gpoa.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 integration"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/proposals/"+draft.DraftID+"/files/gpoa", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	testenv.AssertStatus(t, call(req), http.StatusCreated)

	resp = call(httptest.NewRequest(http.MethodGet, "/api/proposals/"+draft.DraftID, nil))
	testenv.AssertStatus(t, resp, http.StatusOK)
	var merged struct {
		DataSource  string `json:"dataSource"`
		Attachments []struct {
			Role string `json:"role"`
		} `json:"attachments"`
	}
	testenv.ParseJSON(t, resp, &merged)
	assert.Equal(t, "hybrid", merged.DataSource)
	require.Len(t, merged.Attachments, 1)

	resp = call(httptest.NewRequest(http.MethodGet, "/api/proposals/"+draft.DraftID+"/files/gpoa", nil))
	testenv.AssertStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 integration", string(body))

	t.Run("section check constraint", func(t *testing.T) {
		err := rt.Stores.DB.Model(&models.Proposal{}).
			Where("id = ?", draft.DraftID).
			Update("current_section", "eventTypeSelection").Error
		require.Error(t, err)
	})

	t.Run("delete cascades to documents", func(t *testing.T) {
		testenv.AssertStatus(t, call(httptest.NewRequest(http.MethodDelete, "/api/proposals/"+draft.DraftID, nil)), http.StatusNoContent)
		atts, err := rt.Stores.Attachments.ListByProposal(ctx, draft.DraftID)
		require.NoError(t, err)
		assert.Empty(t, atts)
	})
}
