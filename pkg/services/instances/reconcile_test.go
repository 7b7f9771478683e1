package instances

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felttable/venuepipe/pkg/entities"
)

func TestReconcileInstancesPreview(t *testing.T) {
	svc, _, templates, tournaments := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))

	// Assigned during resolution but never materialized
	tr := matchedTournament("game-1", 150)
	tr.RecurringGameID = tpl.ID
	tr.RecurringGameAssignmentStatus = entities.AssignmentAuto
	tr.RecurringGameAssignmentConfidence = 0.9
	require.NoError(t, tournaments.Save(ctx, tr))

	report, err := svc.ReconcileInstances(ctx, ReconcileInput{
		VenueID:   "venue-1",
		StartDate: "2024-09-01",
		EndDate:   "2024-09-30",
		Preview:   true,
	})

	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Actions, 1)
	assert.Equal(t, "would_create", report.Actions[0].Action)
	assert.Equal(t, "game-1", report.Actions[0].TournamentID)
	assert.Equal(t, "2024-09-02", report.Actions[0].ExpectedDate)

	// Preview never writes
	_, err = svc.instances.GetByGameID(ctx, "game-1")
	assert.Error(t, err)
}

func TestReconcileInstancesApply(t *testing.T) {
	svc, instances, templates, tournaments := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))

	tr := matchedTournament("game-1", 150)
	tr.RecurringGameID = tpl.ID
	tr.RecurringGameAssignmentConfidence = 0.88
	require.NoError(t, tournaments.Save(ctx, tr))

	report, err := svc.ReconcileInstances(ctx, ReconcileInput{
		VenueID:   "venue-1",
		StartDate: "2024-09-01",
		EndDate:   "2024-09-30",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Actions, 1)
	assert.Equal(t, "create", report.Actions[0].Action)

	inst, err := instances.GetByGameID(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusConfirmed, inst.Status)
	assert.Equal(t, 0.88, inst.MatchConfidence)

	// Re-running finds nothing left to do
	again, err := svc.ReconcileInstances(ctx, ReconcileInput{
		VenueID:   "venue-1",
		StartDate: "2024-09-01",
		EndDate:   "2024-09-30",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 1, again.AlreadyMaterialized)
}

func TestReconcileInstancesOrphans(t *testing.T) {
	svc, _, _, tournaments := newTestService()
	ctx := context.Background()

	tr := matchedTournament("game-1", 150)
	tr.RecurringGameID = "tpl-deleted"
	require.NoError(t, tournaments.Save(ctx, tr))

	report, err := svc.ReconcileInstances(ctx, ReconcileInput{
		VenueID:   "venue-1",
		StartDate: "2024-09-01",
		EndDate:   "2024-09-30",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Orphans)
	assert.Equal(t, 0, report.Created)
	require.Len(t, report.Actions, 1)
	assert.Equal(t, "orphan", report.Actions[0].Action)
	assert.Equal(t, "tpl-deleted", report.Actions[0].RecurringGameID)
}

func TestReconcileInstancesIgnoresUnassignedAndOutOfRange(t *testing.T) {
	svc, _, templates, tournaments := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))

	unassigned := matchedTournament("game-1", 150)
	require.NoError(t, tournaments.Save(ctx, unassigned))

	outOfRange := matchedTournament("game-2", 150)
	outOfRange.RecurringGameID = tpl.ID
	outOfRange.GameStartDateTime = mondayAt19.AddDate(0, 2, 0)
	require.NoError(t, tournaments.Save(ctx, outOfRange))

	report, err := svc.ReconcileInstances(ctx, ReconcileInput{
		VenueID:   "venue-1",
		StartDate: "2024-09-01",
		EndDate:   "2024-09-30",
	})

	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Empty(t, report.Actions)
}

func TestReconcileInstancesBadRange(t *testing.T) {
	svc, _, _, _ := newTestService()

	report, err := svc.ReconcileInstances(context.Background(), ReconcileInput{
		VenueID:   "venue-1",
		StartDate: "not-a-date",
		EndDate:   "2024-09-30",
	})

	require.NoError(t, err)
	assert.False(t, report.Success)
}
