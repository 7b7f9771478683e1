package instances

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felttable/venuepipe/internal/logging"
	"github.com/felttable/venuepipe/internal/types"
	"github.com/felttable/venuepipe/pkg/entities"
	"github.com/felttable/venuepipe/pkg/repositories/instance"
	"github.com/felttable/venuepipe/pkg/repositories/template"
	"github.com/felttable/venuepipe/pkg/repositories/tournament"
)

// mondayAt19 is 2024-09-02 19:00 AEST expressed in UTC
var mondayAt19 = time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

func newTestService() (*Service, *instance.MemoryRepository, *template.MemoryRepository, *tournament.MemoryRepository) {
	instances := instance.NewMemoryRepository()
	templates := template.NewMemoryRepository()
	tournaments := tournament.NewMemoryRepository()
	svc := NewService(instances, templates, tournaments, logging.Discard())
	return svc, instances, templates, tournaments
}

func mondayTemplate() *entities.RecurringGame {
	return &entities.RecurringGame{
		ID:               "tpl-monday",
		VenueID:          "venue-1",
		EntityID:         "entity-1",
		Name:             "Monday Special",
		NormalizedName:   "monday special",
		DayOfWeek:        entities.Monday,
		Frequency:        entities.FrequencyWeekly,
		GameType:         entities.GameTypeTournament,
		GameVariant:      entities.VariantNLHE,
		StartTime:        "19:00",
		TypicalBuyIn:     decimal.NewFromInt(150),
		TypicalGuarantee: decimal.NewFromInt(5000),
		IsActive:         true,
	}
}

func matchedTournament(id string, buyIn int64) *entities.Tournament {
	b := decimal.NewFromInt(buyIn)
	return &entities.Tournament{
		ID:                id,
		VenueID:           "venue-1",
		EntityID:          "entity-1",
		Name:              "Monday Special",
		GameStartDateTime: mondayAt19,
		GameVariant:       entities.VariantNLHE,
		BuyIn:             &b,
	}
}

func TestCreateConfirmedInstance(t *testing.T) {
	svc, instances, templates, _ := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))

	res, err := svc.CreateConfirmedInstance(ctx, CreateConfirmedInput{
		Tournament:      matchedTournament("game-1", 150),
		Template:        tpl,
		MatchConfidence: 0.92,
	})

	require.NoError(t, err)
	assert.True(t, res.WasCreated)
	inst := res.Instance
	assert.Equal(t, "tpl-monday", inst.RecurringGameID)
	assert.Equal(t, "game-1", inst.GameID)
	assert.Equal(t, "2024-09-02", inst.ExpectedDate)
	assert.Equal(t, entities.Monday, inst.DayOfWeek)
	assert.Equal(t, "2024-W36", inst.WeekKey)
	assert.Equal(t, entities.StatusConfirmed, inst.Status)
	assert.Equal(t, entities.SourceGameMatch, inst.Source)
	assert.Equal(t, 0.92, inst.MatchConfidence)
	assert.False(t, inst.HasDeviation)
	assert.Equal(t, entities.DeviationNone, inst.DeviationType)

	// Counter incremented on the template
	got, err := templates.Get(ctx, "tpl-monday")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalInstancesRun)

	// Row is findable by game
	byGame, err := instances.GetByGameID(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, byGame.ID)
}

func TestCreateConfirmedInstanceIdempotent(t *testing.T) {
	svc, _, templates, _ := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))
	input := CreateConfirmedInput{Tournament: matchedTournament("game-1", 150), Template: tpl, MatchConfidence: 0.9}

	first, err := svc.CreateConfirmedInstance(ctx, input)
	require.NoError(t, err)
	second, err := svc.CreateConfirmedInstance(ctx, input)
	require.NoError(t, err)

	assert.True(t, first.WasCreated)
	assert.False(t, second.WasCreated)
	assert.Equal(t, first.Instance.ID, second.Instance.ID)

	// The counter must not double-count
	got, err := templates.Get(ctx, "tpl-monday")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalInstancesRun)
}

func TestCreateConfirmedInstanceDeviations(t *testing.T) {
	testCases := []struct {
		name          string
		buyIn         int64
		guarantee     int64
		wantDeviation bool
		wantType      entities.DeviationType
		wantReview    bool
	}{
		{
			name:          "typical values carry no deviation",
			buyIn:         150,
			guarantee:     5000,
			wantDeviation: false,
			wantType:      entities.DeviationNone,
		},
		{
			name:          "buy-in drift beyond 10 percent",
			buyIn:         180,
			guarantee:     5000,
			wantDeviation: true,
			wantType:      entities.DeviationBuyIn,
		},
		{
			name:          "guarantee drift beyond 20 percent",
			buyIn:         150,
			guarantee:     2000,
			wantDeviation: true,
			wantType:      entities.DeviationGuarantee,
			wantReview:    true, // 60% off flags review
		},
		{
			name:          "both drifting",
			buyIn:         200,
			guarantee:     7000,
			wantDeviation: true,
			wantType:      entities.DeviationMultiple,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, templates, _ := newTestService()
			ctx := context.Background()
			tpl := mondayTemplate()
			require.NoError(t, templates.Create(ctx, tpl))

			tr := matchedTournament("game-1", tc.buyIn)
			g := decimal.NewFromInt(tc.guarantee)
			tr.GuaranteeAmount = &g

			res, err := svc.CreateConfirmedInstance(ctx, CreateConfirmedInput{Tournament: tr, Template: tpl})

			require.NoError(t, err)
			assert.Equal(t, tc.wantDeviation, res.Instance.HasDeviation)
			assert.Equal(t, tc.wantType, res.Instance.DeviationType)
			assert.Equal(t, tc.wantReview, res.Instance.NeedsReview)
		})
	}
}

func TestCreateConfirmedInstancePromotesPlaceholder(t *testing.T) {
	svc, instances, templates, _ := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))

	// Gap detection ran before the tournament was scraped
	placeholder := &entities.RecurringGameInstance{
		ID:              "i-placeholder",
		RecurringGameID: tpl.ID,
		VenueID:         "venue-1",
		ExpectedDate:    "2024-09-02",
		DayOfWeek:       entities.Monday,
		WeekKey:         "2024-W36",
		Status:          entities.StatusUnknown,
		Source:          entities.SourceGapDetection,
		NeedsReview:     true,
	}
	require.NoError(t, instances.Create(ctx, placeholder))

	res, err := svc.CreateConfirmedInstance(ctx, CreateConfirmedInput{
		Tournament:      matchedTournament("game-1", 150),
		Template:        tpl,
		MatchConfidence: 0.9,
	})

	require.NoError(t, err)
	assert.False(t, res.WasCreated)
	assert.Equal(t, "i-placeholder", res.Instance.ID, "placeholder promoted, not duplicated")
	assert.Equal(t, entities.StatusConfirmed, res.Instance.Status)
	assert.Equal(t, "game-1", res.Instance.GameID)

	got, err := instances.Get(ctx, "i-placeholder")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusConfirmed, got.Status)
}

func TestCreateConfirmedInstanceRejectsBadInput(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateConfirmedInstance(ctx, CreateConfirmedInput{})
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	tr := matchedTournament("game-1", 150)
	tr.GameStartDateTime = time.Time{}
	_, err = svc.CreateConfirmedInstance(ctx, CreateConfirmedInput{Tournament: tr, Template: mondayTemplate()})
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

func TestRecordMissedInstance(t *testing.T) {
	svc, _, templates, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, templates.Create(ctx, mondayTemplate()))

	res, err := svc.RecordMissedInstance(ctx, RecordMissedInput{
		RecurringGameID:    "tpl-monday",
		ExpectedDate:       "2024-09-02",
		Status:             entities.StatusCancelled,
		CancellationReason: "venue flooded",
	})

	require.NoError(t, err)
	assert.True(t, res.WasCreated)
	inst := res.Instance
	assert.Equal(t, entities.StatusCancelled, inst.Status)
	assert.Empty(t, inst.GameID)
	assert.Equal(t, entities.SourceManual, inst.Source)
	assert.Equal(t, "venue flooded", inst.CancellationReason)
	assert.Equal(t, entities.Monday, inst.DayOfWeek)
	assert.False(t, inst.NeedsReview)
}

func TestRecordMissedInstanceUnknownNeedsReview(t *testing.T) {
	svc, _, templates, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, templates.Create(ctx, mondayTemplate()))

	res, err := svc.RecordMissedInstance(ctx, RecordMissedInput{
		RecurringGameID: "tpl-monday",
		ExpectedDate:    "2024-09-02",
		Status:          entities.StatusUnknown,
	})

	require.NoError(t, err)
	assert.True(t, res.Instance.NeedsReview)
}

func TestRecordMissedInstanceValidation(t *testing.T) {
	svc, _, templates, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, templates.Create(ctx, mondayTemplate()))

	// CONFIRMED is not a missed status
	_, err := svc.RecordMissedInstance(ctx, RecordMissedInput{
		RecurringGameID: "tpl-monday", ExpectedDate: "2024-09-02", Status: entities.StatusConfirmed})
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	_, err = svc.RecordMissedInstance(ctx, RecordMissedInput{
		RecurringGameID: "tpl-monday", ExpectedDate: "02/09/2024", Status: entities.StatusCancelled})
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	_, err = svc.RecordMissedInstance(ctx, RecordMissedInput{
		RecurringGameID: "missing", ExpectedDate: "2024-09-02", Status: entities.StatusCancelled})
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestRecordMissedInstanceNeverDowngradesConfirmed(t *testing.T) {
	svc, _, templates, _ := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))
	_, err := svc.CreateConfirmedInstance(ctx, CreateConfirmedInput{
		Tournament: matchedTournament("game-1", 150), Template: tpl})
	require.NoError(t, err)

	_, err = svc.RecordMissedInstance(ctx, RecordMissedInput{
		RecurringGameID: "tpl-monday", ExpectedDate: "2024-09-02", Status: entities.StatusUnknown})

	assert.True(t, types.IsCode(err, types.ErrConflict))
}

func TestRecordMissedInstanceCancelsConfirmed(t *testing.T) {
	svc, instances, templates, _ := newTestService()
	ctx := context.Background()
	tpl := mondayTemplate()
	require.NoError(t, templates.Create(ctx, tpl))
	_, err := svc.CreateConfirmedInstance(ctx, CreateConfirmedInput{
		Tournament: matchedTournament("game-1", 150), Template: tpl})
	require.NoError(t, err)

	// An explicit cancellation is allowed to override a confirmation
	res, err := svc.RecordMissedInstance(ctx, RecordMissedInput{
		RecurringGameID:    "tpl-monday",
		ExpectedDate:       "2024-09-02",
		Status:             entities.StatusCancelled,
		CancellationReason: "called off mid-registration",
	})

	require.NoError(t, err)
	assert.False(t, res.WasCreated)
	assert.Equal(t, entities.StatusCancelled, res.Instance.Status)
	assert.Empty(t, res.Instance.GameID)

	// The game index entry is released
	_, err = instances.GetByGameID(ctx, "game-1")
	assert.ErrorIs(t, err, instance.ErrInstanceNotFound)
}
