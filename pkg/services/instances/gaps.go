package instances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/pkg/entities"
	"github.com/felttable/venuepipe/pkg/repositories/instance"
	"github.com/felttable/venuepipe/pkg/schedule"
)

// GapInput selects the venue and date range to audit
type GapInput struct {
	VenueID   string
	StartDate string // YYYY-MM-DD AEST, inclusive
	EndDate   string // YYYY-MM-DD AEST, inclusive

	// CreateInstances materializes an UNKNOWN placeholder for every gap
	CreateInstances bool
}

// Gap is one expected occurrence with no instance
type Gap struct {
	RecurringGameID   string             `json:"recurringGameId"`
	RecurringGameName string             `json:"recurringGameName"`
	ExpectedDate      string             `json:"expectedDate"`
	DayOfWeek         entities.DayOfWeek `json:"dayOfWeek"`
	Created           bool               `json:"created"` // Placeholder materialized this pass
}

// GapReport aggregates one detection pass
type GapReport struct {
	Success   bool  `json:"success"`
	Expected  int   `json:"expected"`
	Confirmed int   `json:"confirmed"`
	Other     int   `json:"other"` // Instance exists with a non-confirmed status
	GapCount  int   `json:"gaps"`
	Created   int   `json:"created"`
	Gaps      []Gap `json:"gapDetails"`
}

// occurrenceRef indexes instances by (recurringGameID, expectedDate)
type occurrenceRef struct {
	recurringGameID string
	expectedDate    string
}

// DetectGaps enumerates every date each active template was expected to run
// within the range and classifies it as confirmed, gap, or other. With
// CreateInstances set, each gap gets an UNKNOWN placeholder; per-gap write
// failures are logged and the pass continues.
func (s *Service) DetectGaps(ctx context.Context, input GapInput) (*GapReport, error) {
	report := &GapReport{Success: true, Gaps: make([]Gap, 0)}
	log := s.logger.WithFields(logrus.Fields{
		"venue_id": input.VenueID,
		"range":    input.StartDate + ".." + input.EndDate,
	})

	templates, err := s.templates.GetByVenue(ctx, input.VenueID)
	if err != nil {
		log.WithError(err).Error("failed to load templates for gap detection")
		report.Success = false
		return report, nil
	}

	existing, err := s.instances.ListByVenueDateRange(ctx, input.VenueID, input.StartDate, input.EndDate)
	if err != nil {
		log.WithError(err).Error("failed to load instances for gap detection")
		report.Success = false
		return report, nil
	}
	byOccurrence := make(map[occurrenceRef]*entities.RecurringGameInstance, len(existing))
	for _, inst := range existing {
		byOccurrence[occurrenceRef{inst.RecurringGameID, inst.ExpectedDate}] = inst
	}

	for _, tpl := range templates {
		if tpl.IsPaused || !tpl.DayOfWeek.IsValid() {
			continue
		}
		dates, err := schedule.EnumerateDatesForDayOfWeek(input.StartDate, input.EndDate, tpl.DayOfWeek)
		if err != nil {
			log.WithError(err).WithField("template_id", tpl.ID).Warn("failed to enumerate expected dates")
			continue
		}

		for _, date := range dates {
			report.Expected++
			inst, exists := byOccurrence[occurrenceRef{tpl.ID, date}]
			if exists {
				if inst.Status == entities.StatusConfirmed {
					report.Confirmed++
				} else {
					report.Other++
				}
				continue
			}

			gap := Gap{
				RecurringGameID:   tpl.ID,
				RecurringGameName: tpl.Name,
				ExpectedDate:      date,
				DayOfWeek:         tpl.DayOfWeek,
			}
			if input.CreateInstances {
				if s.createGapPlaceholder(ctx, tpl, date) {
					gap.Created = true
					report.Created++
				}
			}
			report.GapCount++
			report.Gaps = append(report.Gaps, gap)
		}
	}

	log.WithFields(logrus.Fields{
		"expected":  report.Expected,
		"confirmed": report.Confirmed,
		"gaps":      report.GapCount,
		"created":   report.Created,
	}).Info("gap detection pass complete")
	return report, nil
}

// createGapPlaceholder inserts an UNKNOWN instance for one gap, tolerating
// conflicts from concurrent passes.
func (s *Service) createGapPlaceholder(ctx context.Context, tpl *entities.RecurringGame, date string) bool {
	weekKey, _ := schedule.ISOWeekKeyForDate(date)
	inst := &entities.RecurringGameInstance{
		ID:                uuid.New().String(),
		RecurringGameID:   tpl.ID,
		VenueID:           tpl.VenueID,
		EntityID:          tpl.EntityID,
		RecurringGameName: tpl.Name,
		ExpectedDate:      date,
		DayOfWeek:         tpl.DayOfWeek,
		WeekKey:           weekKey,
		Status:            entities.StatusUnknown,
		DeviationType:     entities.DeviationNone,
		Source:            entities.SourceGapDetection,
		NeedsReview:       true,
		Notes:             gapDetectionNote,
	}

	err := s.instances.Create(ctx, inst)
	if errors.Is(err, instance.ErrIDConflict) {
		inst.ID = uuid.New().String()
		err = s.instances.Create(ctx, inst)
	}
	if errors.Is(err, instance.ErrDuplicateOccurrence) {
		// Another pass already materialized this occurrence.
		return false
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"template_id":   tpl.ID,
			"expected_date": date,
		}).Warn("failed to create gap placeholder")
		return false
	}
	return true
}
