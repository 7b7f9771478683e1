// Package resolver decides, for each observed tournament, whether it is an
// occurrence of a known recurring schedule, inheriting template attributes
// onto the tournament and auto-creating templates for genuinely new games.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/internal/config"
	"github.com/felttable/venuepipe/pkg/entities"
	"github.com/felttable/venuepipe/pkg/matching"
	"github.com/felttable/venuepipe/pkg/repositories/template"
	"github.com/felttable/venuepipe/pkg/repositories/tournament"
	"github.com/felttable/venuepipe/pkg/schedule"
)

// Decision reasons surfaced in resolution metadata
const (
	ReasonMissingVenue      = "missing_venue"
	ReasonMissingStartTime  = "missing_start_time"
	ReasonMissingVariant    = "missing_variant"
	ReasonSeriesEvent       = "series_event"
	ReasonUnresolvableDay   = "unresolvable_day_of_week"
	ReasonAllFilteredByMode = "all_filtered_by_session_mode"
	ReasonNoCandidates      = "no_candidates"
	ReasonBelowThreshold    = "below_threshold"
	ReasonMatched           = "matched"
	ReasonAmbiguousMatch    = "ambiguous_match"
	ReasonCrossDayDuplicate = "cross_day_duplicate"
	ReasonAutoCreated       = "auto_created"
	ReasonDuplicateLostRace = "duplicate_creation_lost_race"
	ReasonError             = "error"
	ReasonDeadlineExceeded  = "deadline_exceeded"
)

// Service orchestrates end-to-end recurring assignment for one tournament,
// plus the bulk discovery mode over a backlog of unassigned tournaments
type Service struct {
	templates   template.Repository
	tournaments tournament.Repository
	matching    config.Matching
	bulk        config.Bulk
	weights     matching.Weights
	logger      *logrus.Logger
}

// NewService creates a new resolver service
func NewService(templates template.Repository, tournaments tournament.Repository, matchingCfg config.Matching, bulkCfg config.Bulk, logger *logrus.Logger) *Service {
	return &Service{
		templates:   templates,
		tournaments: tournaments,
		matching:    matchingCfg,
		bulk:        bulkCfg,
		weights:     matching.DefaultWeights(),
		logger:      logger,
	}
}

// ResolveInput is the single-tournament entry point's argument
type ResolveInput struct {
	Tournament *entities.Tournament
	EntityID   string
	AutoCreate bool
}

// Resolution is the resolver's decision plus its evidence. Patch is the only
// part callers may write back onto the tournament.
type Resolution struct {
	Success bool
	Patch   entities.ResolutionPatch

	Reason      string
	Warnings    []string
	DayMismatch bool
	WasCreated  bool // True when this resolution created a template

	SessionMode    entities.SessionMode
	ModeConfidence float64
	DayOfWeek      entities.DayOfWeek
	Candidates     []matching.CandidateScore
}

// notRecurring builds the terminal no-match decision
func notRecurring(reason string, success bool) *Resolution {
	return &Resolution{
		Success: success,
		Reason:  reason,
		Patch: entities.ResolutionPatch{
			RecurringGameAssignmentStatus: entities.AssignmentNone,
		},
	}
}

// ResolveRecurringAssignment runs the full assignment sequence for one
// tournament. It is idempotent: re-running against an unchanged store yields
// the same decision.
func (s *Service) ResolveRecurringAssignment(ctx context.Context, input ResolveInput) (*Resolution, error) {
	t := input.Tournament
	if t == nil {
		return notRecurring(ReasonError, false), nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"tournament_id": t.ID,
		"venue_id":      t.VenueID,
	})

	// Preconditions. Any failure is a decision, not an error.
	if t.VenueID == "" {
		return notRecurring(ReasonMissingVenue, true), nil
	}
	if t.GameStartDateTime.IsZero() {
		return notRecurring(ReasonMissingStartTime, true), nil
	}
	if t.IsSeries {
		return notRecurring(ReasonSeriesEvent, true), nil
	}
	variant := t.GameVariant
	if variant == "" {
		variant = matching.DetectVariant(t.Name)
	}
	if variant == "" {
		return notRecurring(ReasonMissingVariant, true), nil
	}

	aest, ok := schedule.AsAEST(t.GameStartDateTime)
	if !ok {
		return notRecurring(ReasonUnresolvableDay, true), nil
	}
	startMinutes := aest.Hour*60 + aest.Minute

	mode, modeConfidence := matching.ClassifySessionMode(t.Name)

	res := &Resolution{
		Success:        true,
		SessionMode:    mode,
		ModeConfidence: modeConfidence,
		DayOfWeek:      aest.DayOfWeek,
	}

	// A weekday in the name that disagrees with the calendar is worth a
	// warning, but the calendar wins.
	nameDay, hasHint := matching.ExtractWeekdayHint(t.Name)
	if hasHint && nameDay != aest.DayOfWeek {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("name suggests %s but start time is %s", nameDay, aest.DayOfWeek))
	}

	candidates, err := s.templates.GetByVenueAndDay(ctx, t.VenueID, aest.DayOfWeek)
	if err != nil {
		log.WithError(err).Error("failed to load same-day templates")
		return s.storeFailure(err), nil
	}

	filtered := matching.FilterBySessionMode(mode, candidates)
	if len(filtered) > 0 {
		scores := matching.ScoreCandidates(t, startMinutes, filtered, s.weights)
		res.Candidates = scores
		best := scores[0]

		switch {
		case best.Score >= s.matching.HighThreshold && !matching.IsAmbiguous(scores, s.matching.AmbiguityMargin):
			res.Reason = ReasonMatched
			s.applyMatch(res, t, best.Template, entities.AssignmentAuto, confidenceFromScore(best.Score))
			return res, nil
		case best.Score >= s.matching.HighThreshold:
			res.Reason = ReasonAmbiguousMatch
			s.applyMatch(res, t, best.Template, entities.AssignmentPending, confidenceFromScore(best.Score))
			return res, nil
		case best.Score >= s.matching.MediumThreshold:
			res.Reason = ReasonMatched
			s.applyMatch(res, t, best.Template, entities.AssignmentPending, confidenceFromScore(best.Score))
			return res, nil
		}
	}

	// No same-day match.
	if !input.AutoCreate {
		if len(candidates) > 0 && len(filtered) == 0 {
			res.Reason = ReasonAllFilteredByMode
		} else if len(filtered) == 0 {
			res.Reason = ReasonNoCandidates
		} else {
			res.Reason = ReasonBelowThreshold
		}
		res.Patch.RecurringGameAssignmentStatus = entities.AssignmentNone
		return res, nil
	}

	return s.autoCreate(ctx, res, t, input.EntityID, mode, variant, aest, hasHint, nameDay)
}

// applyMatch fills the resolution with the matched template and the
// inheritance patch.
func (s *Service) applyMatch(res *Resolution, t *entities.Tournament, tpl *entities.RecurringGame, status entities.AssignmentStatus, confidence float64) {
	res.Patch = buildInheritancePatch(t, tpl)
	res.Patch.RecurringGameAssignmentStatus = status
	res.Patch.RecurringGameAssignmentConfidence = confidence
	res.Patch.RecurringGameID = tpl.ID
}

// buildInheritancePatch copies declared template attributes onto the patch
// when the tournament is missing them.
func buildInheritancePatch(t *entities.Tournament, tpl *entities.RecurringGame) entities.ResolutionPatch {
	var patch entities.ResolutionPatch

	if t.BuyIn == nil {
		buyIn := tpl.TypicalBuyIn
		patch.BuyIn = &buyIn
	}
	if t.GameVariant == "" && tpl.GameVariant != "" {
		v := tpl.GameVariant
		patch.GameVariant = &v
	}

	// Guarantee inheritance has one exception: a known prize pool below the
	// template's typical guarantee means this occurrence ran without it.
	if t.GuaranteeAmount == nil && tpl.TypicalGuarantee.IsPositive() {
		if t.PrizepoolPaid != nil && t.PrizepoolPaid.LessThan(tpl.TypicalGuarantee) {
			suppressed := false
			zero := decimal.Zero
			patch.HasGuarantee = &suppressed
			patch.GuaranteeAmount = &zero
		} else {
			hasGuarantee := true
			guarantee := tpl.TypicalGuarantee
			patch.HasGuarantee = &hasGuarantee
			patch.GuaranteeAmount = &guarantee
		}
	}

	if tpl.HasJackpotContributions {
		yes := true
		amount := tpl.JackpotContributionAmount
		patch.HasJackpotContributions = &yes
		patch.JackpotContributionAmount = &amount
	}
	if tpl.HasAccumulatorTickets {
		yes := true
		value := tpl.AccumulatorTicketValue
		patch.HasAccumulatorTickets = &yes
		patch.AccumulatorTicketValue = &value
	}

	return patch
}

// GuaranteeSuppressed reports whether the patch recorded the occurrence as
// running without its typical guarantee.
func GuaranteeSuppressed(patch entities.ResolutionPatch) bool {
	return patch.HasGuarantee != nil && !*patch.HasGuarantee
}

// autoCreate handles the no-match tail: cross-day duplicate detection first,
// then template creation.
func (s *Service) autoCreate(ctx context.Context, res *Resolution, t *entities.Tournament, entityID string, mode entities.SessionMode, variant entities.GameVariant, aest schedule.AESTTime, hasHint bool, nameDay entities.DayOfWeek) (*Resolution, error) {
	log := s.logger.WithFields(logrus.Fields{
		"tournament_id": t.ID,
		"venue_id":      t.VenueID,
	})

	normalized := matching.NormalizeName(t.Name)

	// A near-identical template on another weekday is a duplicate, not a new
	// game. Defer to a human instead of creating a twin.
	all, err := s.templates.GetByVenue(ctx, t.VenueID)
	if err != nil {
		log.WithError(err).Error("failed to load venue templates for duplicate check")
		return s.storeFailure(err), nil
	}

	var bestDup *entities.RecurringGame
	bestSim := 0.0
	for _, tpl := range all {
		if !mode.Matches(tpl.GameType) {
			continue
		}
		if tpl.GameVariant != "" && variant != "" && tpl.GameVariant != variant {
			continue
		}
		tplName := tpl.NormalizedName
		if tplName == "" {
			tplName = matching.NormalizeName(tpl.Name)
		}
		sim := matching.BigramSimilarity(normalized, tplName)
		if sim >= s.matching.DuplicateSimilarity && sim > bestSim {
			bestDup = tpl
			bestSim = sim
		}
	}
	if bestDup != nil {
		res.Reason = ReasonCrossDayDuplicate
		res.DayMismatch = bestDup.DayOfWeek != aest.DayOfWeek
		s.applyMatch(res, t, bestDup, entities.AssignmentPending, 0.7)
		return res, nil
	}

	day := aest.DayOfWeek
	if hasHint {
		day = nameDay
	}

	tpl := &entities.RecurringGame{
		ID:             uuid.New().String(),
		VenueID:        t.VenueID,
		EntityID:       entityID,
		Name:           matching.DisplayName(t.Name),
		NormalizedName: normalized,
		DayOfWeek:      day,
		Frequency:      entities.FrequencyWeekly,
		GameType:       gameTypeForMode(mode),
		GameVariant:    variant,
		TournamentType: t.TournamentType,
		StartTime:      aest.Clock(),
		IsActive:       true,
	}
	if t.BuyIn != nil {
		tpl.TypicalBuyIn = *t.BuyIn
	}
	if t.GuaranteeAmount != nil {
		tpl.TypicalGuarantee = *t.GuaranteeAmount
	}

	err = s.templates.Create(ctx, tpl)
	if errors.Is(err, template.ErrIDConflict) {
		// One retry with a fresh id; a second collision means something is
		// deeply wrong with the id source.
		tpl.ID = uuid.New().String()
		err = s.templates.Create(ctx, tpl)
	}
	if errors.Is(err, template.ErrDuplicateTemplate) {
		// A concurrent creator won. Re-read and assign to the winning row.
		winner, findErr := s.findSemanticDuplicate(ctx, tpl)
		if findErr != nil || winner == nil {
			log.WithError(findErr).Warn("lost creation race but could not find winning template")
			return s.storeFailure(err), nil
		}
		res.Reason = ReasonDuplicateLostRace
		s.applyMatch(res, t, winner, entities.AssignmentAuto, 0.9)
		return res, nil
	}
	if err != nil {
		log.WithError(err).Error("failed to create template")
		return s.storeFailure(err), nil
	}

	log.WithFields(logrus.Fields{
		"template_id": tpl.ID,
		"day_of_week": tpl.DayOfWeek,
	}).Info("auto-created recurring game template")

	res.Reason = ReasonAutoCreated
	res.WasCreated = true
	s.applyMatch(res, t, tpl, entities.AssignmentAuto, 0.9)
	return res, nil
}

// findSemanticDuplicate locates the active row occupying this template's
// (venue, day, normalized name, game type) slot.
func (s *Service) findSemanticDuplicate(ctx context.Context, tpl *entities.RecurringGame) (*entities.RecurringGame, error) {
	sameDay, err := s.templates.GetByVenueAndDay(ctx, tpl.VenueID, tpl.DayOfWeek)
	if err != nil {
		return nil, err
	}
	for _, existing := range sameDay {
		if existing.NormalizedName == tpl.NormalizedName && existing.GameType == tpl.GameType {
			return existing, nil
		}
	}
	return nil, nil
}

// storeFailure maps a store error onto the terminal decision. The resolver
// never invents matches when the store is unreachable.
func (s *Service) storeFailure(err error) *Resolution {
	if errors.Is(err, context.DeadlineExceeded) {
		return notRecurring(ReasonDeadlineExceeded, false)
	}
	return notRecurring(ReasonError, false)
}

func gameTypeForMode(mode entities.SessionMode) entities.GameType {
	if mode == entities.SessionCash {
		return entities.GameTypeCashGame
	}
	return entities.GameTypeTournament
}

// confidenceFromScore maps a match score onto [0, 0.99]
func confidenceFromScore(score int) float64 {
	c := float64(score) / 100.0
	if c > 0.99 {
		return 0.99
	}
	if c < 0 {
		return 0
	}
	return c
}
