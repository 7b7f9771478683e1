package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felttable/venuepipe/pkg/entities"
)

// thursdayAt19 is 2024-09-05 19:00 AEST expressed in UTC
var thursdayAt19 = time.Date(2024, 9, 5, 9, 0, 0, 0, time.UTC)

func backlogTournament(id, name string, buyIn int64, start time.Time) *entities.Tournament {
	b := decimal.NewFromInt(buyIn)
	return &entities.Tournament{
		ID:                id,
		VenueID:           "venue-1",
		Name:              name,
		GameStartDateTime: start,
		GameVariant:       entities.VariantNLHE,
		BuyIn:             &b,
	}
}

func TestBulkDryRunClustersByStructure(t *testing.T) {
	svc, _, tournaments := newTestService()
	ctx := context.Background()

	// Three $150 Thursday tournaments and two $1000 ones at the same hour.
	// The buy-in ratio keeps the tiers apart even though start times agree.
	for _, tr := range []*entities.Tournament{
		backlogTournament("t1", "Thursday Thriller", 150, thursdayAt19),
		backlogTournament("t2", "Thursday Thriller", 150, thursdayAt19.AddDate(0, 0, 7)),
		backlogTournament("t3", "Thursday Thriller", 160, thursdayAt19.AddDate(0, 0, 14).Add(30*time.Minute)),
		backlogTournament("t4", "Big Thursday", 1000, thursdayAt19),
		backlogTournament("t5", "Big Thursday", 1000, thursdayAt19.AddDate(0, 0, 7)),
	} {
		require.NoError(t, tournaments.Save(ctx, tr))
	}

	result, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{VenueID: "venue-1", DryRun: true})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 5, result.Processed)
	require.Len(t, result.Candidates, 2)

	byName := make(map[string]CandidateTemplate)
	for _, c := range result.Candidates {
		byName[c.Name] = c
	}
	thriller, ok := byName["Thursday Thriller"]
	require.True(t, ok)
	assert.Equal(t, 3, thriller.Size)
	assert.Equal(t, entities.Thursday, thriller.DayOfWeek)
	assert.Equal(t, entities.SessionTournament, thriller.SessionMode)
	assert.True(t, thriller.TypicalBuyIn.Equal(decimal.NewFromInt(150)), "median buy-in")

	big, ok := byName["Big Thursday"]
	require.True(t, ok)
	assert.Equal(t, 2, big.Size)

	// Dry run predicts but never writes
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Assigned)
	backlog, err := tournaments.ListUnassignedByVenue(ctx, "venue-1")
	require.NoError(t, err)
	assert.Len(t, backlog, 5)
}

func TestBulkDryRunDegradedSimilarity(t *testing.T) {
	svc, _, tournaments := newTestService()
	ctx := context.Background()

	// No buy-ins anywhere: clustering degrades to the start-time criterion
	a := backlogTournament("t1", "Mystery Game", 0, thursdayAt19)
	a.BuyIn = nil
	b := backlogTournament("t2", "Mystery Game", 0, thursdayAt19.AddDate(0, 0, 7).Add(45*time.Minute))
	b.BuyIn = nil
	require.NoError(t, tournaments.Save(ctx, a))
	require.NoError(t, tournaments.Save(ctx, b))

	result, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{
		VenueID:                    "venue-1",
		DryRun:                     true,
		RequirePatternConfirmation: true,
	})

	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, 2, result.Candidates[0].Size)
}

func TestBulkRequirePatternConfirmation(t *testing.T) {
	svc, _, tournaments := newTestService()
	ctx := context.Background()
	require.NoError(t, tournaments.Save(ctx, backlogTournament("t1", "One Off", 150, thursdayAt19)))

	result, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{
		VenueID:                    "venue-1",
		DryRun:                     true,
		RequirePatternConfirmation: true,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Candidates, "a singleton is not a pattern")
}

func TestBulkApplyCreatesAndAssigns(t *testing.T) {
	svc, templates, tournaments := newTestService()
	ctx := context.Background()
	require.NoError(t, tournaments.Save(ctx, backlogTournament("t1", "Thursday Thriller", 150, thursdayAt19)))
	require.NoError(t, tournaments.Save(ctx, backlogTournament("t2", "Thursday Thriller", 150, thursdayAt19.AddDate(0, 0, 7))))

	result, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{VenueID: "venue-1", EntityID: "entity-1"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Processed)
	// One tournament creates the template, the other resolves against it
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Assigned)
	assert.Equal(t, 0, result.Errors)

	created, err := templates.GetByVenueAndDay(ctx, "venue-1", entities.Thursday)
	require.NoError(t, err)
	require.Len(t, created, 1, "exactly one template for the pattern")

	// The backlog is drained: both tournaments carry the assignment
	backlog, err := tournaments.ListUnassignedByVenue(ctx, "venue-1")
	require.NoError(t, err)
	assert.Empty(t, backlog)

	for _, id := range []string{"t1", "t2"} {
		got, err := tournaments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, created[0].ID, got.RecurringGameID)
		assert.Equal(t, entities.AssignmentAuto, got.RecurringGameAssignmentStatus)
	}
}

func TestBulkApplyFallsBackToTournamentEntity(t *testing.T) {
	svc, templates, tournaments := newTestService()
	ctx := context.Background()
	for i, id := range []string{"t1", "t2"} {
		tr := backlogTournament(id, "Thursday Thriller", 150, thursdayAt19.AddDate(0, 0, 7*i))
		tr.EntityID = "entity-9"
		require.NoError(t, tournaments.Save(ctx, tr))
	}

	result, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{VenueID: "venue-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	created, err := templates.GetByVenueAndDay(ctx, "venue-1", entities.Thursday)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "entity-9", created[0].EntityID)
}

func TestBulkApplyIsIdempotent(t *testing.T) {
	svc, _, tournaments := newTestService()
	ctx := context.Background()
	require.NoError(t, tournaments.Save(ctx, backlogTournament("t1", "Thursday Thriller", 150, thursdayAt19)))

	first, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{VenueID: "venue-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	// Nothing unassigned remains, so a second run is a no-op
	second, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{VenueID: "venue-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Created)
}

func TestBulkCountsUnplaceableTournaments(t *testing.T) {
	svc, _, tournaments := newTestService()
	ctx := context.Background()
	tr := backlogTournament("t1", "Thursday Thriller", 150, time.Time{})
	require.NoError(t, tournaments.Save(ctx, tr))

	result, err := svc.ProcessUnassignedTournaments(ctx, BulkInput{VenueID: "venue-1", DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.NoMatch)
	require.Len(t, result.Details, 1)
	assert.Equal(t, ReasonUnresolvableDay, result.Details[0].Reason)
}

func TestBulkEmptyBacklog(t *testing.T) {
	svc, _, _ := newTestService()

	result, err := svc.ProcessUnassignedTournaments(context.Background(), BulkInput{VenueID: "venue-1"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, result.Details)
}

func TestUnionFindGroups(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 2)
	uf.union(2, 4)
	uf.union(1, 3)

	groups := uf.groups()

	require.Len(t, groups, 2)
	assert.Equal(t, []int{0, 2, 4}, groups[0])
	assert.Equal(t, []int{1, 3}, groups[1])
}

func TestBuyInsWithinRatio(t *testing.T) {
	assert.True(t, buyInsWithinRatio(decimal.NewFromInt(150), decimal.NewFromInt(300)))
	assert.False(t, buyInsWithinRatio(decimal.NewFromInt(150), decimal.NewFromInt(301)))
	assert.True(t, buyInsWithinRatio(decimal.Zero, decimal.Zero))
	assert.False(t, buyInsWithinRatio(decimal.Zero, decimal.NewFromInt(50)))
}
