package instances

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/pkg/entities"
	"github.com/felttable/venuepipe/pkg/schedule"
)

// ComplianceInput selects the venue and AEST date range to report on
type ComplianceInput struct {
	VenueID   string
	StartDate string // YYYY-MM-DD, inclusive
	EndDate   string // YYYY-MM-DD, inclusive
}

// weekAggregator is implemented by instance stores that can serve the
// per-week status counts without a full scan (the Elasticsearch decorator)
type weekAggregator interface {
	StatusCountsByWeek(ctx context.Context, venueID, startDate, endDate string) (map[string]map[string]int, error)
}

// WeekCompliance is one ISO week's slice of the report
type WeekCompliance struct {
	WeekKey        string         `json:"weekKey"`
	Expected       int            `json:"expected"`
	Confirmed      int            `json:"confirmed"`
	StatusCounts   map[string]int `json:"statusCounts"`
	NeedsReview    int            `json:"needsReview"`
	ComplianceRate float64        `json:"complianceRate"`
}

// ComplianceReport summarizes how reliably scheduled games actually ran
type ComplianceReport struct {
	Success        bool             `json:"success"`
	Expected       int              `json:"expected"`
	Confirmed      int              `json:"confirmed"`
	NeedsReview    int              `json:"needsReview"`
	ComplianceRate float64          `json:"complianceRate"`
	Weeks          []WeekCompliance `json:"weeks"`
}

// ComplianceByWeek reports, per ISO week, how many instances each active
// template was expected to produce against what was actually recorded.
// Expected counts come from the templates' schedules, so weeks with no
// recorded instances at all still show up as non-compliant.
func (s *Service) ComplianceByWeek(ctx context.Context, input ComplianceInput) (*ComplianceReport, error) {
	report := &ComplianceReport{Success: true, Weeks: make([]WeekCompliance, 0)}
	log := s.logger.WithFields(logrus.Fields{
		"venue_id": input.VenueID,
		"range":    input.StartDate + ".." + input.EndDate,
	})

	templates, err := s.templates.GetByVenue(ctx, input.VenueID)
	if err != nil {
		log.WithError(err).Error("failed to load templates for compliance report")
		report.Success = false
		return report, nil
	}

	expectedByWeek := make(map[string]int)
	for _, tpl := range templates {
		if tpl.IsPaused || !tpl.DayOfWeek.IsValid() {
			continue
		}
		dates, err := schedule.EnumerateDatesForDayOfWeek(input.StartDate, input.EndDate, tpl.DayOfWeek)
		if err != nil {
			log.WithError(err).Error("invalid compliance range")
			report.Success = false
			return report, nil
		}
		for _, d := range dates {
			if key, ok := schedule.ISOWeekKeyForDate(d); ok {
				expectedByWeek[key]++
			}
		}
	}

	var tallies map[string]*weekTally
	if agg, ok := s.instances.(weekAggregator); ok {
		aggregated, err := s.talliesFromAggregate(ctx, agg, input)
		if err != nil {
			log.WithError(err).Warn("week aggregation failed, falling back to store scan")
		} else {
			tallies = aggregated
		}
	}
	if tallies == nil {
		scanned, err := s.talliesFromScan(ctx, input)
		if err != nil {
			log.WithError(err).Error("failed to list instances for compliance report")
			report.Success = false
			return report, nil
		}
		tallies = scanned
	}

	keys := make([]string, 0, len(expectedByWeek))
	for key := range expectedByWeek {
		keys = append(keys, key)
	}
	for key := range tallies {
		if _, ok := expectedByWeek[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected := expectedByWeek[key]
		week := WeekCompliance{
			WeekKey:      key,
			Expected:     expected,
			StatusCounts: map[string]int{},
		}
		if t, ok := tallies[key]; ok {
			week.Confirmed = t.confirmed
			week.NeedsReview = t.needsReview
			week.StatusCounts = t.statuses
		}
		if expected > 0 {
			week.ComplianceRate = float64(week.Confirmed) / float64(expected)
		} else if week.Confirmed > 0 {
			// ad-hoc instances with no scheduled expectation
			week.ComplianceRate = 1
		}
		report.Expected += expected
		report.Confirmed += week.Confirmed
		report.NeedsReview += week.NeedsReview
		report.Weeks = append(report.Weeks, week)
	}
	if report.Expected > 0 {
		report.ComplianceRate = float64(report.Confirmed) / float64(report.Expected)
	} else if report.Confirmed > 0 {
		report.ComplianceRate = 1
	}

	log.WithFields(logrus.Fields{
		"weeks":     len(report.Weeks),
		"expected":  report.Expected,
		"confirmed": report.Confirmed,
	}).Info("compliance report built")
	return report, nil
}

// weekTally accumulates one week's recorded instances
type weekTally struct {
	statuses    map[string]int
	confirmed   int
	needsReview int
}

// talliesFromAggregate serves the per-week status counts from an aggregating
// store. Review tallies are not part of the aggregation, so those come from
// the week index, filtered back down to the report range.
func (s *Service) talliesFromAggregate(ctx context.Context, agg weekAggregator, input ComplianceInput) (map[string]*weekTally, error) {
	counts, err := agg.StatusCountsByWeek(ctx, input.VenueID, input.StartDate, input.EndDate)
	if err != nil {
		return nil, err
	}

	tallies := make(map[string]*weekTally, len(counts))
	for key, statuses := range counts {
		t := &weekTally{
			statuses:  statuses,
			confirmed: statuses[string(entities.StatusConfirmed)],
		}
		weekInstances, err := s.instances.ListByWeek(ctx, key, input.VenueID)
		if err != nil {
			return nil, err
		}
		for _, inst := range weekInstances {
			if inst.NeedsReview && inst.ExpectedDate >= input.StartDate && inst.ExpectedDate <= input.EndDate {
				t.needsReview++
			}
		}
		tallies[key] = t
	}
	return tallies, nil
}

// talliesFromScan builds the per-week tallies from a range scan of the store
func (s *Service) talliesFromScan(ctx context.Context, input ComplianceInput) (map[string]*weekTally, error) {
	recorded, err := s.instances.ListByVenueDateRange(ctx, input.VenueID, input.StartDate, input.EndDate)
	if err != nil {
		return nil, err
	}

	tallies := make(map[string]*weekTally)
	for _, inst := range recorded {
		t, ok := tallies[inst.WeekKey]
		if !ok {
			t = &weekTally{statuses: make(map[string]int)}
			tallies[inst.WeekKey] = t
		}
		t.statuses[string(inst.Status)]++
		if inst.Status == entities.StatusConfirmed {
			t.confirmed++
		}
		if inst.NeedsReview {
			t.needsReview++
		}
	}
	return tallies, nil
}
