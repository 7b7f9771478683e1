// Package instances owns the materialized calendar of recurring-game
// occurrences: confirming real tournaments against their templates,
// recording missed occurrences, detecting gaps, reconciling strays, and
// reporting schedule compliance.
package instances

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/internal/types"
	"github.com/felttable/venuepipe/pkg/entities"
	"github.com/felttable/venuepipe/pkg/repositories/instance"
	"github.com/felttable/venuepipe/pkg/repositories/template"
	"github.com/felttable/venuepipe/pkg/repositories/tournament"
	"github.com/felttable/venuepipe/pkg/schedule"
)

// Deviation thresholds, as absolute percent difference from the template's
// typical values
const (
	buyInDeviationPct     = 10.0
	guaranteeDeviationPct = 20.0
	significantPct        = 50.0

	significantReviewReason = "Significant deviation from typical values"
	gapDetectionNote        = "Created by gap detection"
)

// Service manages the RecurringGameInstance table
type Service struct {
	instances   instance.Repository
	templates   template.Repository
	tournaments tournament.Repository
	logger      *logrus.Logger
}

// NewService creates a new instance manager
func NewService(instances instance.Repository, templates template.Repository, tournaments tournament.Repository, logger *logrus.Logger) *Service {
	return &Service{
		instances:   instances,
		templates:   templates,
		tournaments: tournaments,
		logger:      logger,
	}
}

// CreateConfirmedInput attaches a matched tournament to its template
type CreateConfirmedInput struct {
	Tournament      *entities.Tournament
	Template        *entities.RecurringGame
	MatchConfidence float64
}

// InstanceResult reports the row an operation settled on and whether this
// call created it
type InstanceResult struct {
	Instance   *entities.RecurringGameInstance
	WasCreated bool
}

// CreateConfirmedInstance materializes a CONFIRMED occurrence for a matched
// tournament. Idempotent per tournament: an existing instance for the gameID
// is returned unchanged, and a placeholder for the same (template, date) is
// promoted rather than duplicated.
func (s *Service) CreateConfirmedInstance(ctx context.Context, input CreateConfirmedInput) (*InstanceResult, error) {
	t, tpl := input.Tournament, input.Template
	if t == nil || tpl == nil {
		return nil, types.NewCoreError(types.ErrInvalidInput, "tournament and template are required")
	}

	aest, ok := schedule.AsAEST(t.GameStartDateTime)
	if !ok {
		return nil, types.NewCoreError(types.ErrInvalidInput, "tournament has no resolvable start time")
	}
	weekKey, _ := schedule.ISOWeekKeyForDate(aest.ISODate)

	log := s.logger.WithFields(logrus.Fields{
		"tournament_id": t.ID,
		"template_id":   tpl.ID,
		"expected_date": aest.ISODate,
	})

	// Already materialized for this game.
	existing, err := s.instances.GetByGameID(ctx, t.ID)
	if err == nil {
		return &InstanceResult{Instance: existing, WasCreated: false}, nil
	}
	if !errors.Is(err, instance.ErrInstanceNotFound) {
		return nil, types.WrapError(types.ErrStoreUnavailable, "failed to look up instance by game", err)
	}

	// A placeholder row for this occurrence gets promoted once the game is
	// discovered.
	placeholder, err := s.instances.GetByTemplateAndDate(ctx, tpl.ID, aest.ISODate)
	if err == nil {
		if placeholder.GameID != "" {
			// Another tournament already confirmed this occurrence.
			return &InstanceResult{Instance: placeholder, WasCreated: false}, nil
		}
		s.applyDeviations(placeholder, t, tpl)
		placeholder.GameID = t.ID
		placeholder.Status = entities.StatusConfirmed
		placeholder.MatchConfidence = input.MatchConfidence
		if err := s.instances.Update(ctx, placeholder); err != nil {
			if errors.Is(err, instance.ErrVersionConflict) {
				// Concurrent writer got there first; the winning row stands.
				winner, rerr := s.instances.GetByTemplateAndDate(ctx, tpl.ID, aest.ISODate)
				if rerr == nil {
					return &InstanceResult{Instance: winner, WasCreated: false}, nil
				}
			}
			return nil, types.WrapError(types.ErrStoreUnavailable, "failed to promote placeholder instance", err)
		}
		log.Info("promoted placeholder instance to confirmed")
		return &InstanceResult{Instance: placeholder, WasCreated: false}, nil
	}
	if !errors.Is(err, instance.ErrInstanceNotFound) {
		return nil, types.WrapError(types.ErrStoreUnavailable, "failed to look up instance by occurrence", err)
	}

	inst := &entities.RecurringGameInstance{
		ID:                uuid.New().String(),
		RecurringGameID:   tpl.ID,
		GameID:            t.ID,
		VenueID:           t.VenueID,
		EntityID:          t.EntityID,
		RecurringGameName: tpl.Name,
		ExpectedDate:      aest.ISODate,
		DayOfWeek:         aest.DayOfWeek,
		WeekKey:           weekKey,
		Status:            entities.StatusConfirmed,
		Source:            entities.SourceGameMatch,
		MatchConfidence:   input.MatchConfidence,
	}
	s.applyDeviations(inst, t, tpl)

	err = s.instances.Create(ctx, inst)
	if errors.Is(err, instance.ErrIDConflict) {
		inst.ID = uuid.New().String()
		err = s.instances.Create(ctx, inst)
	}
	if errors.Is(err, instance.ErrDuplicateOccurrence) || errors.Is(err, instance.ErrDuplicateGame) {
		// Lost the insert race; re-read and return the winning row.
		winner, rerr := s.instances.GetByTemplateAndDate(ctx, tpl.ID, aest.ISODate)
		if rerr != nil {
			return nil, types.WrapError(types.ErrConflict, "lost instance creation race and re-read failed", rerr)
		}
		return &InstanceResult{Instance: winner, WasCreated: false}, nil
	}
	if err != nil {
		return nil, types.WrapError(types.ErrStoreUnavailable, "failed to create instance", err)
	}

	if err := s.templates.IncrementInstancesRun(ctx, tpl.ID); err != nil {
		log.WithError(err).Warn("failed to increment template instance counter")
	}

	log.Info("created confirmed instance")
	return &InstanceResult{Instance: inst, WasCreated: true}, nil
}

// applyDeviations fills the deviation summary on an instance by comparing
// the tournament against its template's typical values.
func (s *Service) applyDeviations(inst *entities.RecurringGameInstance, t *entities.Tournament, tpl *entities.RecurringGame) {
	var details []entities.DeviationDetail

	if t.BuyIn != nil && tpl.TypicalBuyIn.IsPositive() {
		pct := percentDiff(*t.BuyIn, tpl.TypicalBuyIn)
		if pct > buyInDeviationPct {
			details = append(details, entities.DeviationDetail{
				Field:    "buyIn",
				Expected: tpl.TypicalBuyIn,
				Actual:   *t.BuyIn,
				Percent:  pct,
			})
		}
	}
	if t.GuaranteeAmount != nil && tpl.TypicalGuarantee.IsPositive() {
		pct := percentDiff(*t.GuaranteeAmount, tpl.TypicalGuarantee)
		if pct > guaranteeDeviationPct {
			details = append(details, entities.DeviationDetail{
				Field:    "guarantee",
				Expected: tpl.TypicalGuarantee,
				Actual:   *t.GuaranteeAmount,
				Percent:  pct,
			})
		}
	}

	inst.DeviationDetails = details
	inst.HasDeviation = len(details) > 0
	switch len(details) {
	case 0:
		inst.DeviationType = entities.DeviationNone
	case 1:
		if details[0].Field == "buyIn" {
			inst.DeviationType = entities.DeviationBuyIn
		} else {
			inst.DeviationType = entities.DeviationGuarantee
		}
	default:
		inst.DeviationType = entities.DeviationMultiple
	}

	for _, d := range details {
		if d.Percent > significantPct {
			inst.NeedsReview = true
			inst.ReviewReason = significantReviewReason
			break
		}
	}
}

// percentDiff returns |actual - expected| / expected as a percentage
func percentDiff(actual, expected decimal.Decimal) float64 {
	diff := actual.Sub(expected).Abs().Div(expected).Mul(decimal.NewFromInt(100))
	f, _ := diff.Float64()
	return f
}

// RecordMissedInput is the admin entry for marking an occurrence that did
// not run
type RecordMissedInput struct {
	RecurringGameID    string
	ExpectedDate       string // YYYY-MM-DD AEST
	Status             entities.InstanceStatus
	CancellationReason string
	Notes              string
}

// RecordMissedInstance marks a template occurrence as CANCELLED, SKIPPED,
// NO_SHOW, or UNKNOWN. An existing placeholder is updated; otherwise a new
// one is created with no game attached.
func (s *Service) RecordMissedInstance(ctx context.Context, input RecordMissedInput) (*InstanceResult, error) {
	if !input.Status.RequiresNilGame() {
		return nil, types.NewCoreError(types.ErrInvalidInput,
			fmt.Sprintf("status %s is not a missed-instance status", input.Status))
	}
	day, ok := schedule.DayOfWeekForDate(input.ExpectedDate)
	if !ok {
		return nil, types.NewCoreError(types.ErrInvalidInput,
			fmt.Sprintf("invalid expected date %q", input.ExpectedDate))
	}
	weekKey, _ := schedule.ISOWeekKeyForDate(input.ExpectedDate)

	tpl, err := s.templates.Get(ctx, input.RecurringGameID)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			return nil, types.WrapError(types.ErrNotFound, "template not found", err)
		}
		return nil, types.WrapError(types.ErrStoreUnavailable, "failed to load template", err)
	}

	existing, err := s.instances.GetByTemplateAndDate(ctx, input.RecurringGameID, input.ExpectedDate)
	if err == nil {
		// A confirmed occurrence is never downgraded to unknown.
		if existing.Status == entities.StatusConfirmed && input.Status == entities.StatusUnknown {
			return nil, types.NewCoreError(types.ErrConflict, "occurrence is already confirmed")
		}
		existing.Status = input.Status
		existing.GameID = ""
		existing.CancellationReason = input.CancellationReason
		if input.Notes != "" {
			existing.Notes = input.Notes
		}
		if input.Status == entities.StatusUnknown {
			existing.NeedsReview = true
		}
		if err := s.instances.Update(ctx, existing); err != nil {
			return nil, types.WrapError(types.ErrStoreUnavailable, "failed to update instance", err)
		}
		return &InstanceResult{Instance: existing, WasCreated: false}, nil
	}
	if !errors.Is(err, instance.ErrInstanceNotFound) {
		return nil, types.WrapError(types.ErrStoreUnavailable, "failed to look up instance", err)
	}

	inst := &entities.RecurringGameInstance{
		ID:                 uuid.New().String(),
		RecurringGameID:    tpl.ID,
		VenueID:            tpl.VenueID,
		EntityID:           tpl.EntityID,
		RecurringGameName:  tpl.Name,
		ExpectedDate:       input.ExpectedDate,
		DayOfWeek:          day,
		WeekKey:            weekKey,
		Status:             input.Status,
		DeviationType:      entities.DeviationNone,
		Source:             entities.SourceManual,
		CancellationReason: input.CancellationReason,
		Notes:              input.Notes,
		NeedsReview:        input.Status == entities.StatusUnknown,
	}

	err = s.instances.Create(ctx, inst)
	if errors.Is(err, instance.ErrIDConflict) {
		inst.ID = uuid.New().String()
		err = s.instances.Create(ctx, inst)
	}
	if errors.Is(err, instance.ErrDuplicateOccurrence) {
		winner, rerr := s.instances.GetByTemplateAndDate(ctx, tpl.ID, input.ExpectedDate)
		if rerr != nil {
			return nil, types.WrapError(types.ErrConflict, "lost instance creation race and re-read failed", rerr)
		}
		return &InstanceResult{Instance: winner, WasCreated: false}, nil
	}
	if err != nil {
		return nil, types.WrapError(types.ErrStoreUnavailable, "failed to create instance", err)
	}

	return &InstanceResult{Instance: inst, WasCreated: true}, nil
}
