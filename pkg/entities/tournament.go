package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssignmentStatus is the outcome of resolving a tournament against the
// known recurring schedules
type AssignmentStatus string

const (
	AssignmentAuto    AssignmentStatus = "AUTO_ASSIGNED"
	AssignmentPending AssignmentStatus = "PENDING_ASSIGNMENT"
	AssignmentNone    AssignmentStatus = "NOT_RECURRING"
)

// SessionMode classifies an occurrence as a tournament or a cash session.
// It is a hard filter during matching, not a soft signal.
type SessionMode string

const (
	SessionTournament SessionMode = "TOURNAMENT"
	SessionCash       SessionMode = "CASH"
)

// Matches reports whether a template's declared game type agrees with the
// detected session mode (CASH_GAME and CASH are the same thing).
func (m SessionMode) Matches(gt GameType) bool {
	if gt == "" {
		return true
	}
	if m == SessionCash {
		return gt == GameTypeCashGame
	}
	return gt == GameTypeTournament
}

// Tournament is the normalized record the pipeline hands to the resolver.
// It is owned externally; the core only ever writes the resolution-status
// fields and inherited attributes via a ResolutionPatch.
type Tournament struct {
	ID       string
	VenueID  string
	EntityID string

	Name              string
	GameStartDateTime time.Time // UTC instant
	GameType          GameType  // May be empty when the source did not declare it
	GameVariant       GameVariant
	TournamentType    string // e.g. FREEZEOUT, REBUY; empty when unknown

	BuyIn           *decimal.Decimal // Nil when the source carried no buy-in
	GuaranteeAmount *decimal.Decimal
	PrizepoolPaid   *decimal.Decimal
	IsSeries        bool

	RecurringGameID                   string
	RecurringGameAssignmentStatus     AssignmentStatus
	RecurringGameAssignmentConfidence float64
}

// ResolutionPatch is the narrow write the core is allowed to make back onto
// a tournament: assignment status plus any attributes inherited from the
// matched template. Stores persist only the buy-in, variant, and guarantee
// amount; the jackpot and accumulator fields are advisory, read by consumers
// of the Resolution.
type ResolutionPatch struct {
	RecurringGameAssignmentStatus     AssignmentStatus
	RecurringGameAssignmentConfidence float64
	RecurringGameID                   string

	// Inherited fields; nil pointers mean "leave untouched"
	BuyIn           *decimal.Decimal
	GameVariant     *GameVariant
	HasGuarantee    *bool
	GuaranteeAmount *decimal.Decimal

	HasJackpotContributions   *bool
	JackpotContributionAmount *decimal.Decimal
	HasAccumulatorTickets     *bool
	AccumulatorTicketValue    *decimal.Decimal
}
