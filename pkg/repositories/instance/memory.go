package instance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felttable/venuepipe/pkg/entities"
)

var (
	ErrInstanceNotFound    = errors.New("instance not found")
	ErrIDConflict          = errors.New("instance id already exists")
	ErrDuplicateOccurrence = errors.New("instance already exists for template and date")
	ErrDuplicateGame       = errors.New("instance already exists for game")
	ErrVersionConflict     = errors.New("instance version conflict")
)

// occurrenceKey indexes instances by (recurringGameID, expectedDate)
type occurrenceKey struct {
	recurringGameID string
	expectedDate    string
}

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	instances    map[string]*entities.RecurringGameInstance
	byGame       map[string]string        // gameID -> instance ID
	byOccurrence map[occurrenceKey]string // (template, date) -> instance ID
	mu           sync.RWMutex
}

// NewMemoryRepository creates a new in-memory instance repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		instances:    make(map[string]*entities.RecurringGameInstance),
		byGame:       make(map[string]string),
		byOccurrence: make(map[occurrenceKey]string),
	}
}

// Get retrieves an instance by ID
func (r *MemoryRepository) Get(ctx context.Context, id string) (*entities.RecurringGameInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.instances[id]
	if !exists {
		return nil, ErrInstanceNotFound
	}
	return copyInstance(inst), nil
}

// GetByGameID retrieves the instance attached to a tournament, if any
func (r *MemoryRepository) GetByGameID(ctx context.Context, gameID string) (*entities.RecurringGameInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byGame[gameID]
	if !exists {
		return nil, ErrInstanceNotFound
	}
	return copyInstance(r.instances[id]), nil
}

// GetByTemplateAndDate retrieves the instance for one template occurrence
func (r *MemoryRepository) GetByTemplateAndDate(ctx context.Context, recurringGameID, expectedDate string) (*entities.RecurringGameInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byOccurrence[occurrenceKey{recurringGameID, expectedDate}]
	if !exists {
		return nil, ErrInstanceNotFound
	}
	return copyInstance(r.instances[id]), nil
}

// ListByVenueDateRange retrieves instances at a venue in a date range
func (r *MemoryRepository) ListByVenueDateRange(ctx context.Context, venueID, startDate, endDate string) ([]*entities.RecurringGameInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.RecurringGameInstance, 0)
	for _, inst := range r.instances {
		if inst.VenueID == venueID && inst.ExpectedDate >= startDate && inst.ExpectedDate <= endDate {
			result = append(result, copyInstance(inst))
		}
	}
	return result, nil
}

// ListByWeek retrieves instances for one ISO week at a venue
func (r *MemoryRepository) ListByWeek(ctx context.Context, weekKey, venueID string) ([]*entities.RecurringGameInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.RecurringGameInstance, 0)
	for _, inst := range r.instances {
		if inst.VenueID == venueID && inst.WeekKey == weekKey {
			result = append(result, copyInstance(inst))
		}
	}
	return result, nil
}

// Create writes the instance iff no row exists with the same ID
func (r *MemoryRepository) Create(ctx context.Context, inst *entities.RecurringGameInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[inst.ID]; exists {
		return ErrIDConflict
	}
	key := occurrenceKey{inst.RecurringGameID, inst.ExpectedDate}
	if _, exists := r.byOccurrence[key]; exists {
		return ErrDuplicateOccurrence
	}
	if inst.GameID != "" {
		if _, exists := r.byGame[inst.GameID]; exists {
			return ErrDuplicateGame
		}
	}

	now := time.Now()
	instCopy := *inst
	instCopy.DeviationDetails = append([]entities.DeviationDetail(nil), inst.DeviationDetails...)
	instCopy.CreatedAt = now
	instCopy.UpdatedAt = now
	instCopy.Version = 1

	r.instances[inst.ID] = &instCopy
	r.byOccurrence[key] = inst.ID
	if inst.GameID != "" {
		r.byGame[inst.GameID] = inst.ID
	}

	inst.CreatedAt = instCopy.CreatedAt
	inst.UpdatedAt = instCopy.UpdatedAt
	inst.Version = instCopy.Version
	return nil
}

// Update performs a version-checked write
func (r *MemoryRepository) Update(ctx context.Context, inst *entities.RecurringGameInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.instances[inst.ID]
	if !exists {
		return ErrInstanceNotFound
	}
	if existing.Version != inst.Version {
		return ErrVersionConflict
	}
	if inst.GameID != "" && inst.GameID != existing.GameID {
		if _, taken := r.byGame[inst.GameID]; taken {
			return ErrDuplicateGame
		}
	}

	instCopy := *inst
	instCopy.DeviationDetails = append([]entities.DeviationDetail(nil), inst.DeviationDetails...)
	instCopy.CreatedAt = existing.CreatedAt
	instCopy.UpdatedAt = time.Now()
	instCopy.Version = existing.Version + 1

	if existing.GameID != "" && existing.GameID != inst.GameID {
		delete(r.byGame, existing.GameID)
	}
	if inst.GameID != "" {
		r.byGame[inst.GameID] = inst.ID
	}
	r.instances[inst.ID] = &instCopy

	inst.UpdatedAt = instCopy.UpdatedAt
	inst.Version = instCopy.Version
	return nil
}

// copyInstance returns a deep copy to prevent concurrent modification
func copyInstance(inst *entities.RecurringGameInstance) *entities.RecurringGameInstance {
	instCopy := *inst
	instCopy.DeviationDetails = append([]entities.DeviationDetail(nil), inst.DeviationDetails...)
	return &instCopy
}
