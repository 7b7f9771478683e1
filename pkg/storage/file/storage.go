package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/felttable/venuepipe/pkg/storage"
)

// Archive implements file-based persistence for maintenance reports
type Archive struct {
	path      string
	mu        sync.RWMutex
	reports   map[string]*storage.Report
	options   *storage.Options
	logger    *logrus.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new file archive instance
func New(options *storage.Options, logger *logrus.Logger) (*Archive, error) {
	if options == nil {
		options = storage.NewOptions()
	}

	a := &Archive{
		path:    options.Path,
		reports: make(map[string]*storage.Report),
		options: options,
		logger:  logger,
		done:    make(chan struct{}),
	}

	// Load existing reports from file
	if err := a.load(); err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	// Start cleanup goroutine if enabled
	if options.AutoCleanup {
		go a.cleanupRoutine()
	}

	return a, nil
}

// SaveReport saves or updates a report
func (a *Archive) SaveReport(ctx context.Context, report *storage.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	a.reports[report.ID] = report

	return a.save()
}

// LoadReport loads a report by ID
func (a *Archive) LoadReport(ctx context.Context, id string) (*storage.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	report, ok := a.reports[id]
	if !ok {
		return nil, storage.ErrReportNotFound
	}

	return report, nil
}

// LoadLatest loads the most recent report of a kind for a venue
func (a *Archive) LoadLatest(ctx context.Context, venueID, kind string) (*storage.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var latest *storage.Report
	for _, report := range a.reports {
		if report.VenueID != venueID || report.Kind != kind {
			continue
		}
		if latest == nil || report.CreatedAt.After(latest.CreatedAt) {
			latest = report
		}
	}
	if latest == nil {
		return nil, storage.ErrReportNotFound
	}

	return latest, nil
}

// ListReports lists all archived reports
func (a *Archive) ListReports(ctx context.Context) ([]*storage.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	reports := make([]*storage.Report, 0, len(a.reports))
	for _, report := range a.reports {
		reports = append(reports, report)
	}

	return reports, nil
}

// CleanupOldReports removes reports older than maxAge
func (a *Archive) CleanupOldReports(ctx context.Context, maxAge time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for id, report := range a.reports {
		if now.Sub(report.UpdatedAt) > maxAge {
			delete(a.reports, id)
		}
	}

	return a.save()
}

// Helper functions

func (a *Archive) load() error {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &a.reports)
}

func (a *Archive) save() error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(a.reports)
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}

	if err := os.WriteFile(a.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (a *Archive) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	return nil
}

func (a *Archive) cleanupRoutine() {
	ticker := time.NewTicker(a.options.MaxReportAge / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.CleanupOldReports(context.Background(), a.options.MaxReportAge); err != nil {
				a.logger.WithError(err).Warn("failed to clean up old reports")
			}
		case <-a.done:
			return
		}
	}
}
