package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/pkg/schedule"
	"github.com/felttable/venuepipe/pkg/services/instances"
	"github.com/felttable/venuepipe/pkg/services/resolver"
	"github.com/felttable/venuepipe/pkg/storage"
)

const (
	bulkResolveInterval  = 24 * time.Hour
	gapDetectionInterval = 24 * time.Hour
	reconcileInterval    = 24 * time.Hour
	complianceInterval   = 7 * 24 * time.Hour

	// Maintenance passes audit the trailing four weeks, up to yesterday.
	// Today is excluded because its games may not have been scraped yet.
	lookbackDays = 28
)

// MaintenanceScheduler manages the recurring audit passes for a set of venues
type MaintenanceScheduler struct {
	scheduler *Scheduler
	instances *instances.Service
	resolver  *resolver.Service
	archive   storage.Archive
	venueIDs  []string
	logger    *logrus.Logger
}

// NewMaintenanceScheduler creates a scheduler for calendar maintenance tasks.
// The archive may be nil, in which case reports are only logged.
func NewMaintenanceScheduler(svc *instances.Service, res *resolver.Service, archive storage.Archive, venueIDs []string, logger *logrus.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		scheduler: NewScheduler(logger),
		instances: svc,
		resolver:  res,
		archive:   archive,
		venueIDs:  venueIDs,
		logger:    logger,
	}
}

// Start initializes and starts the maintenance scheduler
func (m *MaintenanceScheduler) Start(ctx context.Context) {
	m.scheduler.AddTask("bulk_resolve", bulkResolveInterval, m.bulkResolve)
	m.scheduler.AddTask("gap_detection", gapDetectionInterval, m.detectGaps)
	m.scheduler.AddTask("reconcile", reconcileInterval, m.reconcile)
	m.scheduler.AddTask("compliance", complianceInterval, m.compliance)
	m.scheduler.Start(ctx)
}

// Stop stops the maintenance scheduler
func (m *MaintenanceScheduler) Stop() {
	m.scheduler.Stop()
}

// auditRange returns the trailing lookback window as AEST calendar dates
func auditRange(now time.Time) (string, string, bool) {
	today, ok := schedule.AsAEST(now)
	if !ok {
		return "", "", false
	}
	end, err := schedule.ParseDate(today.ISODate)
	if err != nil {
		return "", "", false
	}
	end = end.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(lookbackDays - 1))
	return start.Format(schedule.DateLayout), end.Format(schedule.DateLayout), true
}

// bulkResolve drains each venue's unassigned-tournament backlog before the
// gap and reconcile passes read the results
func (m *MaintenanceScheduler) bulkResolve(ctx context.Context) error {
	for _, venueID := range m.venueIDs {
		result, err := m.resolver.ProcessUnassignedTournaments(ctx, resolver.BulkInput{
			VenueID:                    venueID,
			RequirePatternConfirmation: true,
		})
		if err != nil {
			return err
		}
		m.archiveReport(ctx, venueID, storage.KindBulkResolve, result)
	}
	return nil
}

func (m *MaintenanceScheduler) detectGaps(ctx context.Context) error {
	startDate, endDate, ok := auditRange(time.Now())
	if !ok {
		return fmt.Errorf("could not compute audit range")
	}

	for _, venueID := range m.venueIDs {
		report, err := m.instances.DetectGaps(ctx, instances.GapInput{
			VenueID:         venueID,
			StartDate:       startDate,
			EndDate:         endDate,
			CreateInstances: true,
		})
		if err != nil {
			return err
		}
		m.archiveReport(ctx, venueID, storage.KindGapDetection, report)
	}
	return nil
}

func (m *MaintenanceScheduler) reconcile(ctx context.Context) error {
	startDate, endDate, ok := auditRange(time.Now())
	if !ok {
		return fmt.Errorf("could not compute audit range")
	}

	for _, venueID := range m.venueIDs {
		report, err := m.instances.ReconcileInstances(ctx, instances.ReconcileInput{
			VenueID:   venueID,
			StartDate: startDate,
			EndDate:   endDate,
		})
		if err != nil {
			return err
		}
		m.archiveReport(ctx, venueID, storage.KindReconcile, report)
	}
	return nil
}

func (m *MaintenanceScheduler) compliance(ctx context.Context) error {
	startDate, endDate, ok := auditRange(time.Now())
	if !ok {
		return fmt.Errorf("could not compute audit range")
	}

	for _, venueID := range m.venueIDs {
		report, err := m.instances.ComplianceByWeek(ctx, instances.ComplianceInput{
			VenueID:   venueID,
			StartDate: startDate,
			EndDate:   endDate,
		})
		if err != nil {
			return err
		}
		m.archiveReport(ctx, venueID, storage.KindCompliance, report)
	}
	return nil
}

// archiveReport persists a pass result; archival failures are logged, never
// fatal to the pass itself.
func (m *MaintenanceScheduler) archiveReport(ctx context.Context, venueID, kind string, report interface{}) {
	if m.archive == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		m.logger.WithError(err).WithField("kind", kind).Warn("failed to marshal report for archive")
		return
	}
	err = m.archive.SaveReport(ctx, &storage.Report{
		ID:      uuid.New().String(),
		Kind:    kind,
		VenueID: venueID,
		Payload: payload,
	})
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"kind":     kind,
			"venue_id": venueID,
		}).Warn("failed to archive report")
	}
}
