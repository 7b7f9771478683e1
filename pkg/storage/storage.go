// Package storage persists the audit reports the maintenance passes produce,
// so operators can inspect what gap detection and reconciliation did after
// the fact.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Common storage errors
var (
	ErrReportNotFound = errors.New("report not found")
)

// Report kinds
const (
	KindGapDetection = "gap_detection"
	KindReconcile    = "reconcile"
	KindCompliance   = "compliance"
	KindBulkResolve  = "bulk_resolve"
)

// Report is one archived maintenance-pass result
type Report struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	VenueID   string          `json:"venue_id"`
	Payload   json.RawMessage `json:"payload"` // Kind-specific report body
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Archive defines the interface for report persistence
type Archive interface {
	// SaveReport saves or updates a report
	SaveReport(ctx context.Context, report *Report) error

	// LoadReport loads a report by ID
	LoadReport(ctx context.Context, id string) (*Report, error)

	// LoadLatest loads the most recent report of a kind for a venue
	LoadLatest(ctx context.Context, venueID, kind string) (*Report, error)

	// ListReports lists all archived reports
	ListReports(ctx context.Context) ([]*Report, error)

	// CleanupOldReports removes reports older than maxAge
	CleanupOldReports(ctx context.Context, maxAge time.Duration) error
}

// Options represents archive configuration options
type Options struct {
	Path         string
	MaxReportAge time.Duration
	AutoCleanup  bool
}

// NewOptions creates a new Options with default values
func NewOptions() *Options {
	return &Options{
		Path:         "reports.json",
		MaxReportAge: 90 * 24 * time.Hour,
		AutoCleanup:  true,
	}
}
