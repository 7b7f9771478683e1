package template

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felttable/venuepipe/pkg/entities"
)

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrIDConflict        = errors.New("template id already exists")
	ErrDuplicateTemplate = errors.New("active template already exists for venue/day/name/type")
	ErrVersionConflict   = errors.New("template version conflict")
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	templates map[string]*entities.RecurringGame
	mu        sync.RWMutex
}

// NewMemoryRepository creates a new in-memory template repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		templates: make(map[string]*entities.RecurringGame),
	}
}

// Get retrieves a template by ID
func (r *MemoryRepository) Get(ctx context.Context, id string) (*entities.RecurringGame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.templates[id]
	if !exists {
		return nil, ErrTemplateNotFound
	}

	// Return a copy to prevent concurrent modification
	tCopy := *t
	return &tCopy, nil
}

// GetByVenue retrieves all active templates at a venue
func (r *MemoryRepository) GetByVenue(ctx context.Context, venueID string) ([]*entities.RecurringGame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.RecurringGame, 0)
	for _, t := range r.templates {
		if t.VenueID == venueID && t.IsActive {
			tCopy := *t
			result = append(result, &tCopy)
		}
	}
	return result, nil
}

// GetByVenueAndDay retrieves active templates for one weekday at a venue
func (r *MemoryRepository) GetByVenueAndDay(ctx context.Context, venueID string, day entities.DayOfWeek) ([]*entities.RecurringGame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.RecurringGame, 0)
	for _, t := range r.templates {
		if t.VenueID == venueID && t.DayOfWeek == day && t.IsActive {
			tCopy := *t
			result = append(result, &tCopy)
		}
	}
	return result, nil
}

// Create writes the template iff no row exists with the same ID
func (r *MemoryRepository) Create(ctx context.Context, t *entities.RecurringGame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.ID]; exists {
		return ErrIDConflict
	}
	for _, existing := range r.templates {
		if existing.IsActive &&
			existing.VenueID == t.VenueID &&
			existing.DayOfWeek == t.DayOfWeek &&
			existing.NormalizedName == t.NormalizedName &&
			existing.GameType == t.GameType {
			return ErrDuplicateTemplate
		}
	}

	now := time.Now()
	tCopy := *t
	tCopy.CreatedAt = now
	tCopy.UpdatedAt = now
	tCopy.Version = 1
	r.templates[t.ID] = &tCopy

	t.CreatedAt = tCopy.CreatedAt
	t.UpdatedAt = tCopy.UpdatedAt
	t.Version = tCopy.Version
	return nil
}

// Update performs a version-checked write
func (r *MemoryRepository) Update(ctx context.Context, t *entities.RecurringGame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.templates[t.ID]
	if !exists {
		return ErrTemplateNotFound
	}
	if existing.Version != t.Version {
		return ErrVersionConflict
	}

	tCopy := *t
	tCopy.CreatedAt = existing.CreatedAt
	tCopy.UpdatedAt = time.Now()
	tCopy.Version = existing.Version + 1
	r.templates[t.ID] = &tCopy

	t.UpdatedAt = tCopy.UpdatedAt
	t.Version = tCopy.Version
	return nil
}

// IncrementInstancesRun bumps the confirmed-occurrence counter
func (r *MemoryRepository) IncrementInstancesRun(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.templates[id]
	if !exists {
		return ErrTemplateNotFound
	}
	t.TotalInstancesRun++
	t.UpdatedAt = time.Now()
	return nil
}

// Deactivate marks a template inactive
func (r *MemoryRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.templates[id]
	if !exists {
		return ErrTemplateNotFound
	}
	t.IsActive = false
	t.UpdatedAt = time.Now()
	t.Version++
	return nil
}

// SetPaused toggles the paused flag
func (r *MemoryRepository) SetPaused(ctx context.Context, id string, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.templates[id]
	if !exists {
		return ErrTemplateNotFound
	}
	t.IsPaused = paused
	t.UpdatedAt = time.Now()
	t.Version++
	return nil
}
