package template

import (
	"context"

	"github.com/felttable/venuepipe/pkg/entities"
)

// Repository defines the interface for recurring-game template storage.
// Templates are never deleted, only deactivated.
type Repository interface {
	// Get retrieves a template by ID regardless of active state
	Get(ctx context.Context, id string) (*entities.RecurringGame, error)

	// GetByVenue retrieves all active templates at a venue, any day
	GetByVenue(ctx context.Context, venueID string) ([]*entities.RecurringGame, error)

	// GetByVenueAndDay retrieves active templates for one weekday at a venue
	GetByVenueAndDay(ctx context.Context, venueID string, day entities.DayOfWeek) ([]*entities.RecurringGame, error)

	// Create writes the template iff no row exists with the same ID.
	// Returns ErrIDConflict on an ID collision and ErrDuplicateTemplate when
	// an active row already exists for the same
	// (venue, dayOfWeek, normalizedName, gameType).
	Create(ctx context.Context, t *entities.RecurringGame) error

	// Update performs an optimistic write: it succeeds only when the stored
	// version matches t.Version, and bumps the version on success.
	// Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, t *entities.RecurringGame) error

	// IncrementInstancesRun bumps the template's confirmed-occurrence counter
	IncrementInstancesRun(ctx context.Context, id string) error

	// Deactivate marks a template inactive; it stops matching and gap
	// detection but stays queryable by ID
	Deactivate(ctx context.Context, id string) error

	// SetPaused toggles the paused flag without deactivating
	SetPaused(ctx context.Context, id string, paused bool) error
}
