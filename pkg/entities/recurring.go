package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DayOfWeek is an uppercase weekday name as stored on templates and instances
type DayOfWeek string

const (
	Sunday    DayOfWeek = "SUNDAY"
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
)

// DayOfWeekFromTime converts a Go weekday to the stored enum
func DayOfWeekFromTime(wd time.Weekday) DayOfWeek {
	switch wd {
	case time.Sunday:
		return Sunday
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	default:
		return Saturday
	}
}

// IsValid reports whether d is one of the seven weekday values
func (d DayOfWeek) IsValid() bool {
	switch d {
	case Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday:
		return true
	}
	return false
}

// Frequency describes how often a recurring game runs
type Frequency string

const (
	FrequencyDaily       Frequency = "DAILY"
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyFortnightly Frequency = "FORTNIGHTLY"
	FrequencyMonthly     Frequency = "MONTHLY"
)

// GameType distinguishes tournaments from cash games
type GameType string

const (
	GameTypeTournament GameType = "TOURNAMENT"
	GameTypeCashGame   GameType = "CASH_GAME"
)

// GameVariant is the poker variant played (NLHE, PLO, ...)
type GameVariant string

const (
	VariantNLHE GameVariant = "NLHE"
	VariantPLO  GameVariant = "PLO"
)

// RecurringGame is the declared schedule for a venue's recurring game on a
// weekday. One row per (venue, day of week, game identity). Templates are
// never deleted, only deactivated.
type RecurringGame struct {
	ID       string // Opaque unique identifier
	VenueID  string
	EntityID string

	Name           string    // Display name
	NormalizedName string    // Matching key; set by the resolver on creation
	DayOfWeek      DayOfWeek // Scheduled weekday (AEST)
	Frequency      Frequency // WEEKLY unless told otherwise

	GameType       GameType
	GameVariant    GameVariant
	TournamentType string // e.g. FREEZEOUT, REBUY; empty when unknown

	StartTime        string          // HH:MM in AEST
	TypicalBuyIn     decimal.Decimal // Non-negative, cent precision
	TypicalGuarantee decimal.Decimal // Zero when the game carries no guarantee

	// Inheritable attributes copied onto matched tournaments when declared
	HasJackpotContributions   bool
	JackpotContributionAmount decimal.Decimal
	HasAccumulatorTickets     bool
	AccumulatorTicketValue    decimal.Decimal

	IsActive          bool
	IsPaused          bool
	TotalInstancesRun int

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64 // Monotonic counter for optimistic writes
}

// SortKey returns the composite secondary key used for same-day duplicate
// detection, e.g. "MONDAY#Monday Deepstack".
func (r *RecurringGame) SortKey() string {
	return fmt.Sprintf("%s#%s", r.DayOfWeek, r.Name)
}
