package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/localnerve/proposaldb/internal/documents"
	"github.com/localnerve/proposaldb/internal/metrics"
	"github.com/localnerve/proposaldb/internal/models"
	"github.com/localnerve/proposaldb/internal/testenv"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/wizard"
)

var (
	owner    = &types.Actor{ID: "user-1", Email: "dana@example.org", Roles: []string{"user"}}
	stranger = &types.Actor{ID: "user-2", Email: "lee@example.org", Roles: []string{"user"}}
	reviewer = &types.Actor{ID: "rev-1", Email: "rev@example.org", Roles: []string{"user", "reviewer"}}
	admin    = &types.Actor{ID: "adm-1", Email: "adm@example.org", Roles: []string{"admin"}}
)

type fixture struct {
	db          *gorm.DB
	attachments *documents.MemoryStore
	blobs       *documents.MemoryBlobStore
	metrics     *metrics.Metrics
	status      *StatusEngine
	coord       *Coordinator
	dir         *Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testenv.SQLite(t)
	m := metrics.New(prometheus.NewRegistry())
	machine := wizard.NewMachine(nil)

	f := &fixture{
		db:          db,
		attachments: documents.NewMemoryStore(),
		blobs:       documents.NewMemoryBlobStore(),
		metrics:     m,
	}
	f.status = NewStatusEngine(db, machine, DefaultRoles, m, nil)
	f.coord = NewCoordinator(CoordinatorOptions{
		DB:          db,
		Attachments: f.attachments,
		Blobs:       f.blobs,
		Machine:     machine,
		Status:      f.status,
		Metrics:     m,
	})
	f.dir = NewDirectory(db, DefaultRoles, nil)
	return f
}

func orgInfoInput(id string) *SectionInput {
	return &SectionInput{
		ProposalID: id,
		Section:    types.SectionOrgInfo,
		OrgInfo: &OrgInfoInput{
			OrganizationName:  "Robotics Club",
			OrganizationTypes: types.FlexList[string]{"school-based"},
			ContactName:       "Dana Cruz",
			ContactEmail:      "dana@example.org",
			ContactPhone:      "555-0100",
		},
	}
}

func eventInput(id string, section types.Section) *SectionInput {
	return &SectionInput{
		ProposalID: id,
		Section:    section,
		Event: &EventInput{
			EventName:      "Regional Robotics Fair",
			EventVenue:     "Main Gym",
			EventCategory:  "academic",
			EventStartDate: "2026-11-02",
			EventEndDate:   "2026-11-03",
			EventMode:      "offline",
			TargetAudience: types.FlexList[string]{"students", "parents"},
		},
	}
}

func reportingInput(id string) *SectionInput {
	return &SectionInput{
		ProposalID: id,
		Section:    types.SectionReporting,
		Reporting: &ReportingInput{
			ReportDescription: "Forty teams competed.",
			AttendanceCount:   types.NewCount(320),
		},
	}
}

// readyDraft returns the id of a school-based draft with every section saved,
// still in draft status.
func (f *fixture) readyDraft(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	draft, err := f.coord.CreateDraft(ctx, owner, "school-based", "school-event")
	require.NoError(t, err)
	id := draft.DraftID

	_, err = f.coord.SaveSection(ctx, owner, orgInfoInput(id))
	require.NoError(t, err)
	_, err = f.coord.SaveSection(ctx, owner, eventInput(id, types.SectionSchoolEvent))
	require.NoError(t, err)
	_, err = f.coord.SaveSection(ctx, owner, reportingInput(id))
	require.NoError(t, err)
	return id
}

// pendingProposal returns the id of a submitted proposal.
func (f *fixture) pendingProposal(t *testing.T) string {
	t.Helper()
	id := f.readyDraft(t)
	_, err := f.status.Submit(context.Background(), owner, id, SubmitOptions{})
	require.NoError(t, err)
	return id
}

func (f *fixture) proposal(t *testing.T, id string) models.Proposal {
	t.Helper()
	var p models.Proposal
	require.NoError(t, f.db.Where("id = ?", id).First(&p).Error)
	return p
}

func (f *fixture) notificationsFor(t *testing.T, proposalID string) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, f.db.Where("related_proposal_id = ?", proposalID).Order("created_at ASC").Find(&out).Error)
	return out
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
