package instances

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/pkg/repositories/instance"
	"github.com/felttable/venuepipe/pkg/repositories/template"
	"github.com/felttable/venuepipe/pkg/schedule"
)

// ReconcileInput selects the venue and date range to reconcile
type ReconcileInput struct {
	VenueID   string
	StartDate string // YYYY-MM-DD AEST, inclusive
	EndDate   string // YYYY-MM-DD AEST, inclusive

	// Preview reports would-do actions without writing
	Preview bool
}

// ReconcileAction is one tournament the pass acted on (or would act on)
type ReconcileAction struct {
	TournamentID    string `json:"tournamentId"`
	RecurringGameID string `json:"recurringGameId"`
	ExpectedDate    string `json:"expectedDate"`
	Action          string `json:"action"` // create | would_create | orphan
}

// ReconcileReport aggregates one reconciliation pass
type ReconcileReport struct {
	Success             bool              `json:"success"`
	Scanned             int               `json:"scanned"`
	AlreadyMaterialized int               `json:"alreadyMaterialized"`
	Created             int               `json:"created"`
	Orphans             int               `json:"orphans"`
	Errors              int               `json:"errors"`
	Actions             []ReconcileAction `json:"actions"`
}

// ReconcileInstances finds tournaments assigned to a template but missing an
// instance and creates CONFIRMED instances for them. Tournaments pointing at
// a template that no longer exists are reported as orphans and never written.
func (s *Service) ReconcileInstances(ctx context.Context, input ReconcileInput) (*ReconcileReport, error) {
	report := &ReconcileReport{Success: true, Actions: make([]ReconcileAction, 0)}
	log := s.logger.WithFields(logrus.Fields{
		"venue_id": input.VenueID,
		"range":    input.StartDate + ".." + input.EndDate,
		"preview":  input.Preview,
	})

	startUTC, endUTC, err := utcWindowForAESTRange(input.StartDate, input.EndDate)
	if err != nil {
		log.WithError(err).Error("invalid reconciliation range")
		report.Success = false
		return report, nil
	}

	tournaments, err := s.tournaments.ListByVenueDateRange(ctx, input.VenueID, startUTC, endUTC)
	if err != nil {
		log.WithError(err).Error("failed to list tournaments for reconciliation")
		report.Success = false
		return report, nil
	}

	for _, t := range tournaments {
		if t.RecurringGameID == "" {
			continue
		}
		aest, ok := schedule.AsAEST(t.GameStartDateTime)
		if !ok || aest.ISODate < input.StartDate || aest.ISODate > input.EndDate {
			continue
		}
		report.Scanned++

		if _, err := s.instances.GetByGameID(ctx, t.ID); err == nil {
			report.AlreadyMaterialized++
			continue
		} else if !errors.Is(err, instance.ErrInstanceNotFound) {
			log.WithError(err).WithField("tournament_id", t.ID).Warn("instance lookup failed; skipping")
			report.Errors++
			continue
		}

		tpl, err := s.templates.Get(ctx, t.RecurringGameID)
		if errors.Is(err, template.ErrTemplateNotFound) {
			report.Orphans++
			report.Actions = append(report.Actions, ReconcileAction{
				TournamentID:    t.ID,
				RecurringGameID: t.RecurringGameID,
				ExpectedDate:    aest.ISODate,
				Action:          "orphan",
			})
			continue
		}
		if err != nil {
			log.WithError(err).WithField("tournament_id", t.ID).Warn("template lookup failed; skipping")
			report.Errors++
			continue
		}

		if input.Preview {
			report.Created++
			report.Actions = append(report.Actions, ReconcileAction{
				TournamentID:    t.ID,
				RecurringGameID: tpl.ID,
				ExpectedDate:    aest.ISODate,
				Action:          "would_create",
			})
			continue
		}

		res, err := s.CreateConfirmedInstance(ctx, CreateConfirmedInput{
			Tournament:      t,
			Template:        tpl,
			MatchConfidence: t.RecurringGameAssignmentConfidence,
		})
		if err != nil {
			log.WithError(err).WithField("tournament_id", t.ID).Warn("failed to create instance during reconciliation")
			report.Errors++
			continue
		}
		if res.WasCreated {
			report.Created++
			report.Actions = append(report.Actions, ReconcileAction{
				TournamentID:    t.ID,
				RecurringGameID: tpl.ID,
				ExpectedDate:    aest.ISODate,
				Action:          "create",
			})
		} else {
			report.AlreadyMaterialized++
		}
	}

	log.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"created": report.Created,
		"orphans": report.Orphans,
	}).Info("reconciliation pass complete")
	return report, nil
}

// utcWindowForAESTRange widens an AEST date range into a UTC query window.
// Callers re-check the exact AEST date per tournament; the widening only has
// to be generous enough to cover both offsets.
func utcWindowForAESTRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := schedule.ParseDate(startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := schedule.ParseDate(endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.Add(-11 * time.Hour), end.AddDate(0, 0, 1).Add(11 * time.Hour), nil
}
