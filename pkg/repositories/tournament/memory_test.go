package tournament

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felttable/venuepipe/pkg/entities"
)

func savedTournament(t *testing.T, repo *MemoryRepository, id string) *entities.Tournament {
	t.Helper()
	buyIn := decimal.NewFromInt(100)
	tr := &entities.Tournament{
		ID:                id,
		VenueID:           "venue-1",
		EntityID:          "entity-1",
		Name:              "Monday Special",
		GameStartDateTime: time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC),
		GameVariant:       entities.VariantNLHE,
		BuyIn:             &buyIn,
	}
	require.NoError(t, repo.Save(context.Background(), tr))
	return tr
}

func TestApplyResolutionNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	err := repo.ApplyResolution(context.Background(), "missing", &entities.ResolutionPatch{})
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestApplyResolutionWritesNarrowFields(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	savedTournament(t, repo, "t1")

	inheritedBuyIn := decimal.NewFromInt(150)
	guarantee := decimal.NewFromInt(5000)
	variant := entities.VariantPLO
	hasGuarantee := true
	jackpot := decimal.NewFromInt(10)

	err := repo.ApplyResolution(ctx, "t1", &entities.ResolutionPatch{
		RecurringGameAssignmentStatus:     entities.AssignmentAuto,
		RecurringGameAssignmentConfidence: 0.92,
		RecurringGameID:                   "tpl-monday",
		BuyIn:                             &inheritedBuyIn,
		GameVariant:                       &variant,
		HasGuarantee:                      &hasGuarantee,
		GuaranteeAmount:                   &guarantee,
		HasJackpotContributions:           &hasGuarantee,
		JackpotContributionAmount:         &jackpot,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, entities.AssignmentAuto, got.RecurringGameAssignmentStatus)
	assert.Equal(t, 0.92, got.RecurringGameAssignmentConfidence)
	assert.Equal(t, "tpl-monday", got.RecurringGameID)
	assert.True(t, inheritedBuyIn.Equal(*got.BuyIn))
	assert.Equal(t, entities.VariantPLO, got.GameVariant)
	require.NotNil(t, got.GuaranteeAmount)
	assert.True(t, guarantee.Equal(*got.GuaranteeAmount))

	// The rest of the row is untouched by the narrow write
	assert.Equal(t, "Monday Special", got.Name)
	assert.Equal(t, "entity-1", got.EntityID)
}

func TestApplyResolutionLeavesNilFieldsUntouched(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	original := savedTournament(t, repo, "t1")

	err := repo.ApplyResolution(ctx, "t1", &entities.ResolutionPatch{
		RecurringGameAssignmentStatus:     entities.AssignmentPending,
		RecurringGameAssignmentConfidence: 0.6,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, entities.AssignmentPending, got.RecurringGameAssignmentStatus)
	assert.Empty(t, got.RecurringGameID)
	assert.True(t, original.BuyIn.Equal(*got.BuyIn))
	assert.Equal(t, entities.VariantNLHE, got.GameVariant)
	assert.Nil(t, got.GuaranteeAmount)
}

func TestListUnassignedByVenue(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	savedTournament(t, repo, "t1")
	savedTournament(t, repo, "t2")

	require.NoError(t, repo.ApplyResolution(ctx, "t1", &entities.ResolutionPatch{
		RecurringGameAssignmentStatus: entities.AssignmentAuto,
		RecurringGameID:               "tpl-monday",
	}))

	backlog, err := repo.ListUnassignedByVenue(ctx, "venue-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "t2", backlog[0].ID)
}
