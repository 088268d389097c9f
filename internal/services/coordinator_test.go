package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/types"
)

func TestCreateDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("with event type", func(t *testing.T) {
		draft, err := f.coord.CreateDraft(ctx, owner, "community", "Harvest Fair 2026")
		require.NoError(t, err)

		assert.True(t, types.IsCanonicalID(draft.DraftID))
		assert.Equal(t, types.EventTypeCommunity, draft.EventType)
		assert.Equal(t, types.SectionOrgInfo, draft.CurrentSection)
		assert.Equal(t, types.StatusDraft, draft.Status)

		p := f.proposal(t, draft.DraftID)
		assert.Equal(t, owner.ID, p.OwnerID)
		assert.Equal(t, "Harvest Fair 2026", p.OriginalDescriptiveID)
	})

	t.Run("without event type", func(t *testing.T) {
		draft, err := f.coord.CreateDraft(ctx, owner, "", "")
		require.NoError(t, err)
		assert.Empty(t, draft.EventType)
		assert.Equal(t, types.SectionOverview, draft.CurrentSection)
		assert.Equal(t, 0, draft.CompletionPercentage)
	})

	t.Run("distinct ids", func(t *testing.T) {
		a, err := f.coord.CreateDraft(ctx, owner, "school-based", "same")
		require.NoError(t, err)
		b, err := f.coord.CreateDraft(ctx, owner, "school-based", "same")
		require.NoError(t, err)
		assert.NotEqual(t, a.DraftID, b.DraftID)
	})

	t.Run("requires actor", func(t *testing.T) {
		_, err := f.coord.CreateDraft(ctx, nil, "school-based", "")
		var fe *types.ForbiddenError
		assert.ErrorAs(t, err, &fe)
	})
}

func TestSetEventType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "", "")
	require.NoError(t, err)

	t.Run("known type moves to orgInfo", func(t *testing.T) {
		got, err := f.coord.SetEventType(ctx, owner, draft.DraftID, "school-based")
		require.NoError(t, err)
		assert.Empty(t, got.Warnings)
		assert.Equal(t, types.EventTypeSchool, got.EventType)
		assert.Equal(t, types.SectionOrgInfo, got.CurrentSection)
	})

	t.Run("unknown type fails closed", func(t *testing.T) {
		got, err := f.coord.SetEventType(ctx, owner, draft.DraftID, "festival")
		require.NoError(t, err, "the fail-closed state is committed")
		require.Len(t, got.Warnings, 1)
		assert.Equal(t, models.FieldEventType, got.Warnings[0].Field)

		assert.Empty(t, got.EventType)
		assert.Equal(t, types.SectionOrgInfo, got.CurrentSection)
		assert.Empty(t, f.proposal(t, draft.DraftID).EventType)
	})

	t.Run("empty type fails closed", func(t *testing.T) {
		got, err := f.coord.SetEventType(ctx, owner, draft.DraftID, "")
		require.NoError(t, err)
		assert.NotEmpty(t, got.Warnings)
		assert.Equal(t, types.SectionOrgInfo, f.proposal(t, draft.DraftID).CurrentSection)
	})

	t.Run("other users are rejected", func(t *testing.T) {
		_, err := f.coord.SetEventType(ctx, stranger, draft.DraftID, "school-based")
		var fe *types.ForbiddenError
		assert.ErrorAs(t, err, &fe)
	})

	t.Run("switching branch leaves the event section", func(t *testing.T) {
		d, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
		require.NoError(t, err)
		_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(d.DraftID))
		require.NoError(t, err)
		require.Equal(t, types.SectionSchoolEvent, f.proposal(t, d.DraftID).CurrentSection)

		got, err := f.coord.SetEventType(ctx, owner, d.DraftID, "community-based")
		require.NoError(t, err)
		assert.Equal(t, types.SectionOrgInfo, got.CurrentSection)
	})
}

func TestSaveSection_GuardRejectsIncomplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)

	in := orgInfoInput(draft.DraftID)
	in.OrgInfo.ContactEmail = ""
	_, err = f.coord.SaveSection(ctx, owner, in)

	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{models.FieldContactEmail}, ve.FieldNames())

	p := f.proposal(t, draft.DraftID)
	assert.Equal(t, types.SectionOrgInfo, p.CurrentSection)
	assert.Empty(t, p.OrganizationName)
}

func TestSaveSection_DraftSkipsGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)

	in := orgInfoInput(draft.DraftID)
	in.OrgInfo.ContactEmail = ""
	in.Draft = true
	res, err := f.coord.SaveSection(ctx, owner, in)
	require.NoError(t, err)

	assert.Equal(t, types.SectionOrgInfo, res.CurrentSection)
	assert.Equal(t, "Robotics Club", f.proposal(t, draft.DraftID).OrganizationName)
}

func TestSaveSection_MalformedValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)

	in := orgInfoInput(draft.DraftID)
	in.OrgInfo.ContactEmail = "not-an-address"
	in.OrgInfo.OrganizationTypes = types.FlexList[string]{"guild"}
	_, err = f.coord.SaveSection(ctx, owner, in)

	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t, []string{models.FieldContactEmail, models.FieldOrganizationTypes}, ve.FieldNames())
}

func TestSaveSection_EventDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(draft.DraftID))
	require.NoError(t, err)

	in := eventInput(draft.DraftID, types.SectionSchoolEvent)
	in.Event.EventEndDate = "2026-11-01"
	_, err = f.coord.SaveSection(ctx, owner, in)

	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{models.FieldEventEndDate}, ve.FieldNames())
}

func TestSaveSection_OnlineEventNeedsNoVenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(draft.DraftID))
	require.NoError(t, err)

	in := eventInput(draft.DraftID, types.SectionSchoolEvent)
	in.Event.EventVenue = ""
	in.Event.EventMode = "online"
	res, err := f.coord.SaveSection(ctx, owner, in)
	require.NoError(t, err)
	assert.Equal(t, types.SectionReporting, res.CurrentSection)
}

func TestSaveSection_LockedSectionsAndWrongBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)

	_, err = f.coord.SaveSection(ctx, owner, reportingInput(draft.DraftID))
	var se *types.StateTransitionError
	assert.ErrorAs(t, err, &se, "reporting is not unlocked from orgInfo")

	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(draft.DraftID))
	require.NoError(t, err)

	_, err = f.coord.SaveSection(ctx, owner, eventInput(draft.DraftID, types.SectionCommunityEvent))
	assert.ErrorAs(t, err, &se, "community section is off the school path")
}

func TestSaveSection_FullFlowIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	id := draft.DraftID

	last := draft.CompletionPercentage
	steps := []struct {
		in   *SectionInput
		want types.Section
	}{
		{orgInfoInput(id), types.SectionSchoolEvent},
		{eventInput(id, types.SectionSchoolEvent), types.SectionReporting},
		{reportingInput(id), types.SectionReporting},
	}
	for _, step := range steps {
		res, err := f.coord.SaveSection(ctx, owner, step.in)
		require.NoError(t, err, step.in.Section)
		assert.Equal(t, step.want, res.CurrentSection, step.in.Section)
		assert.GreaterOrEqual(t, res.CompletionPercentage, last, step.in.Section)
		last = res.CompletionPercentage
	}
	assert.Equal(t, 100, last)

	// going back to an earlier section keeps position and completion
	edit := orgInfoInput(id)
	edit.OrgInfo.ContactPhone = ""
	edit.Draft = true
	res, err := f.coord.SaveSection(ctx, owner, edit)
	require.NoError(t, err)
	assert.Equal(t, types.SectionReporting, res.CurrentSection)
	assert.Equal(t, 100, res.CompletionPercentage)
}

func TestSaveSection_SubmitFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	id := draft.DraftID
	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(id))
	require.NoError(t, err)
	_, err = f.coord.SaveSection(ctx, owner, eventInput(id, types.SectionSchoolEvent))
	require.NoError(t, err)

	in := reportingInput(id)
	in.Submit = true
	res, err := f.coord.SaveSection(ctx, owner, in)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, res.Status)
	assert.Equal(t, types.SectionReporting, res.CurrentSection)
	assert.Empty(t, res.NotificationError)

	p := f.proposal(t, id)
	assert.Equal(t, types.StatusPending, p.Status)
	assert.NotNil(t, p.SubmittedAt)

	notes := f.notificationsFor(t, id)
	require.Len(t, notes, 1)
	assert.Equal(t, types.TargetRole, notes[0].TargetType)
	require.NotNil(t, notes[0].TargetRole)
	assert.Equal(t, "reviewer", *notes[0].TargetRole)
	assert.Equal(t, types.NotificationProposalSubmitted, notes[0].NotificationType)
}

func TestSaveSection_SubmitOnlyWithReporting(t *testing.T) {
	f := newFixture(t)
	draft, err := f.coord.CreateDraft(context.Background(), owner, "school-based", "")
	require.NoError(t, err)

	in := orgInfoInput(draft.DraftID)
	in.Submit = true
	_, err = f.coord.SaveSection(context.Background(), owner, in)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"submit"}, ve.FieldNames())
}

func TestSaveSection_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.readyDraft(t)

	_, err := f.coord.SaveSection(ctx, stranger, reportingInput(id))
	var fe *types.ForbiddenError
	assert.ErrorAs(t, err, &fe)

	_, err = f.coord.SaveSection(ctx, reviewer, reportingInput(id))
	assert.ErrorAs(t, err, &fe, "reviewers cannot edit drafts")

	_, err = f.status.Submit(ctx, owner, id, SubmitOptions{})
	require.NoError(t, err)

	_, err = f.coord.SaveSection(ctx, reviewer, reportingInput(id))
	assert.NoError(t, err, "reviewers share write access while pending")
}

func TestSaveSection_PlaceholderIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.SaveSection(ctx, owner, orgInfoInput("fallback-1760000000000-ab12cd"))
	var ie *types.IdentityResolutionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IdentityFallbacks))

	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput("draft_123"))
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(types.NewCanonicalID()))
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestAttachFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	id := draft.DraftID

	t.Run("role not unlocked yet", func(t *testing.T) {
		_, err := f.coord.AttachFile(ctx, owner, id, "gpoa", bytes.NewReader([]byte("x")), FileMeta{OriginalName: "gpoa.pdf"})
		var se *types.StateTransitionError
		assert.ErrorAs(t, err, &se)
		assert.Equal(t, 0, f.blobs.Len())
	})

	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(id))
	require.NoError(t, err)

	var first string
	t.Run("stores and declares", func(t *testing.T) {
		att, err := f.coord.AttachFile(ctx, owner, id, "gpoa", bytes.NewReader([]byte("v1")), FileMeta{OriginalName: "dir/gpoa.pdf"})
		require.NoError(t, err)
		first = att.StorageLocator

		assert.Equal(t, "gpoa.pdf", att.OriginalName)
		assert.Equal(t, "application/pdf", att.MimeType)
		assert.EqualValues(t, 2, att.SizeBytes)

		p := f.proposal(t, id)
		assert.Equal(t, []string{"gpoa"}, p.AttachmentRoles.Strings())
		assert.Equal(t, 1, p.DeclaredFileCount)
	})

	t.Run("second upload replaces the first", func(t *testing.T) {
		att, err := f.coord.AttachFile(ctx, owner, id, "gpoa", bytes.NewReader([]byte("v2-bytes")), FileMeta{OriginalName: "gpoa.pdf", MimeType: "application/x-custom"})
		require.NoError(t, err)

		stored, err := f.attachments.ListByProposal(ctx, id)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, att.StorageLocator, stored[0].StorageLocator)
		assert.Equal(t, "application/x-custom", stored[0].MimeType)

		assert.False(t, f.blobs.Has(first))
		assert.True(t, f.blobs.Has(att.StorageLocator))
		assert.Equal(t, 1, f.proposal(t, id).DeclaredFileCount)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := f.coord.AttachFile(ctx, owner, id, "selfie", bytes.NewReader([]byte("x")), FileMeta{})
		var ve *types.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"role"}, ve.FieldNames())
	})

	t.Run("open streams the bytes", func(t *testing.T) {
		att, rc, err := f.coord.OpenAttachment(ctx, admin, id, "gpoa")
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "v2-bytes", string(data))
		assert.Equal(t, "gpoa", att.Role)

		_, _, err = f.coord.OpenAttachment(ctx, owner, id, "projectProposal")
		var nf *types.NotFoundError
		assert.ErrorAs(t, err, &nf)

		var fe *types.ForbiddenError
		_, _, err = f.coord.OpenAttachment(ctx, stranger, id, "gpoa")
		assert.ErrorAs(t, err, &fe)
		_, _, err = f.coord.OpenAttachment(ctx, reviewer, id, "gpoa")
		assert.ErrorAs(t, err, &fe, "draft files stay with the owner")
	})

	t.Run("placeholder id", func(t *testing.T) {
		_, err := f.coord.AttachFile(ctx, owner, "fallback-1-x", "gpoa", bytes.NewReader(nil), FileMeta{})
		var ie *types.IdentityResolutionError
		assert.ErrorAs(t, err, &ie)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IdentityFallbacks))
	})
}

func TestAttachFile_MetadataFailureRemovesBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(draft.DraftID))
	require.NoError(t, err)

	f.attachments.FailWith = errors.New("mongo unavailable")
	_, err = f.coord.AttachFile(ctx, owner, draft.DraftID, "gpoa", bytes.NewReader([]byte("data")), FileMeta{OriginalName: "gpoa.pdf"})

	var pe *types.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable())
	assert.Equal(t, 0, f.blobs.Len())
	assert.Empty(t, f.proposal(t, draft.DraftID).AttachmentRoles.Strings())
}

func TestAttachFile_BlobFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(draft.DraftID))
	require.NoError(t, err)

	f.blobs.FailPut = errors.New("disk full")
	_, err = f.coord.AttachFile(ctx, owner, draft.DraftID, "gpoa", bytes.NewReader([]byte("data")), FileMeta{})
	var pe *types.PersistenceError
	require.ErrorAs(t, err, &pe)

	stored, err := f.attachments.ListByProposal(ctx, draft.DraftID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGetProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	id := draft.DraftID

	got, err := f.coord.GetProposal(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, types.DataSourceRelationalOnly, got.DataSource)
	assert.NotNil(t, got.Attachments)
	assert.Empty(t, got.Attachments)

	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(id))
	require.NoError(t, err)
	_, err = f.coord.AttachFile(ctx, owner, id, "gpoa", bytes.NewReader([]byte("x")), FileMeta{OriginalName: "a.pdf"})
	require.NoError(t, err)

	got, err = f.coord.GetProposal(ctx, admin, id)
	require.NoError(t, err)
	assert.Equal(t, types.DataSourceHybrid, got.DataSource)
	assert.Len(t, got.Attachments, 1)

	var fe *types.ForbiddenError
	_, err = f.coord.GetProposal(ctx, stranger, id)
	assert.ErrorAs(t, err, &fe)
	_, err = f.coord.GetProposal(ctx, reviewer, id)
	assert.ErrorAs(t, err, &fe, "drafts are private to their owner")

	f.attachments.FailWith = errors.New("down")
	_, err = f.coord.GetProposal(ctx, owner, id)
	var pe *types.PersistenceError
	assert.ErrorAs(t, err, &pe)
}

func TestDeleteProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("owner deletes draft with attachments", func(t *testing.T) {
		draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
		require.NoError(t, err)
		_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(draft.DraftID))
		require.NoError(t, err)
		_, err = f.coord.AttachFile(ctx, owner, draft.DraftID, "gpoa", bytes.NewReader([]byte("x")), FileMeta{})
		require.NoError(t, err)

		require.NoError(t, f.coord.DeleteProposal(ctx, owner, draft.DraftID))

		_, err = f.coord.GetProposal(ctx, owner, draft.DraftID)
		var nf *types.NotFoundError
		assert.ErrorAs(t, err, &nf)
		stored, err := f.attachments.ListByProposal(ctx, draft.DraftID)
		require.NoError(t, err)
		assert.Empty(t, stored)
		assert.Equal(t, 0, f.blobs.Len())
	})

	t.Run("owner cannot delete pending", func(t *testing.T) {
		id := f.pendingProposal(t)
		err := f.coord.DeleteProposal(ctx, owner, id)
		var se *types.StateTransitionError
		assert.ErrorAs(t, err, &se)

		require.NoError(t, f.coord.DeleteProposal(ctx, admin, id))
		var count int64
		require.NoError(t, f.db.Model(&models.StatusHistory{}).Where("proposal_id = ?", id).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("others cannot delete", func(t *testing.T) {
		draft, err := f.coord.CreateDraft(ctx, owner, "", "")
		require.NoError(t, err)
		err = f.coord.DeleteProposal(ctx, stranger, draft.DraftID)
		var fe *types.ForbiddenError
		assert.ErrorAs(t, err, &fe)
	})
}

func TestGetProposal_ReviewerSeesSubmittedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "")
	require.NoError(t, err)
	var fe *types.ForbiddenError
	_, err = f.coord.GetProposal(ctx, reviewer, draft.DraftID)
	assert.ErrorAs(t, err, &fe)

	pending := f.pendingProposal(t)
	got, err := f.coord.GetProposal(ctx, reviewer, pending)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Proposal.Status)
}
