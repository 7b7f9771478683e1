package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstanceStatus represents the state of a materialized occurrence
type InstanceStatus string

const (
	StatusConfirmed InstanceStatus = "CONFIRMED"
	StatusCancelled InstanceStatus = "CANCELLED"
	StatusSkipped   InstanceStatus = "SKIPPED"
	StatusNoShow    InstanceStatus = "NO_SHOW"
	StatusUnknown   InstanceStatus = "UNKNOWN"
	StatusReplaced  InstanceStatus = "REPLACED"
)

// RequiresNilGame reports whether the status forbids an attached game
func (s InstanceStatus) RequiresNilGame() bool {
	switch s {
	case StatusCancelled, StatusSkipped, StatusUnknown, StatusNoShow:
		return true
	}
	return false
}

// DeviationType summarises how an occurrence differed from its template
type DeviationType string

const (
	DeviationNone      DeviationType = "NONE"
	DeviationBuyIn     DeviationType = "BUYIN_CHANGE"
	DeviationGuarantee DeviationType = "GUARANTEE_CHANGE"
	DeviationMultiple  DeviationType = "MULTIPLE"
)

// InstanceSource records which path created an instance
type InstanceSource string

const (
	SourceGameMatch    InstanceSource = "GAME_MATCH"
	SourceManual       InstanceSource = "MANUAL"
	SourceGapDetection InstanceSource = "GAP_DETECTION"
)

// DeviationDetail captures one expected-vs-actual difference
type DeviationDetail struct {
	Field    string          `json:"field"` // "buyIn" or "guarantee"
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
	Percent  float64         `json:"percent"` // Absolute percent difference from expected
}

// RecurringGameInstance is a materialized occurrence of a template: a real
// tournament attached to its template (CONFIRMED) or a placeholder for
// schedule completeness.
type RecurringGameInstance struct {
	ID                string
	RecurringGameID   string
	GameID            string // Empty unless status is CONFIRMED
	VenueID           string
	EntityID          string
	RecurringGameName string

	ExpectedDate string    // AEST calendar date, YYYY-MM-DD
	DayOfWeek    DayOfWeek
	WeekKey      string // ISO week of ExpectedDate, "YYYY-Www"

	Status InstanceStatus

	HasDeviation     bool
	DeviationType    DeviationType
	DeviationDetails []DeviationDetail
	NeedsReview      bool
	ReviewReason     string

	Source             InstanceSource
	MatchConfidence    float64
	CancellationReason string
	Notes              string

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}
