package instance

import (
	"context"

	"github.com/felttable/venuepipe/pkg/entities"
)

// Repository defines the interface for recurring-game instance storage.
// The store enforces three uniqueness properties: one row per ID, one row per
// gameID, and one row per (recurringGameID, expectedDate).
type Repository interface {
	// Get retrieves an instance by ID
	Get(ctx context.Context, id string) (*entities.RecurringGameInstance, error)

	// GetByGameID retrieves the instance attached to a tournament, if any
	GetByGameID(ctx context.Context, gameID string) (*entities.RecurringGameInstance, error)

	// GetByTemplateAndDate retrieves the instance for one template occurrence
	GetByTemplateAndDate(ctx context.Context, recurringGameID, expectedDate string) (*entities.RecurringGameInstance, error)

	// ListByVenueDateRange retrieves instances at a venue whose expected date
	// falls in the inclusive range [startDate, endDate]
	ListByVenueDateRange(ctx context.Context, venueID, startDate, endDate string) ([]*entities.RecurringGameInstance, error)

	// ListByWeek retrieves instances for one ISO week at a venue
	ListByWeek(ctx context.Context, weekKey, venueID string) ([]*entities.RecurringGameInstance, error)

	// Create writes the instance iff no row exists with the same ID.
	// Returns ErrIDConflict on an ID collision, ErrDuplicateOccurrence when
	// a row already exists for (recurringGameID, expectedDate), and
	// ErrDuplicateGame when the gameID is already attached elsewhere.
	Create(ctx context.Context, inst *entities.RecurringGameInstance) error

	// Update performs a version-checked write; ErrVersionConflict otherwise
	Update(ctx context.Context, inst *entities.RecurringGameInstance) error
}
