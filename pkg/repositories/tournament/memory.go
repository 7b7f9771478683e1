package tournament

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felttable/venuepipe/pkg/entities"
)

var ErrTournamentNotFound = errors.New("tournament not found")

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	tournaments map[string]*entities.Tournament
	mu          sync.RWMutex
}

// NewMemoryRepository creates a new in-memory tournament repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tournaments: make(map[string]*entities.Tournament),
	}
}

// Get retrieves a tournament by ID
func (r *MemoryRepository) Get(ctx context.Context, id string) (*entities.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tournaments[id]
	if !exists {
		return nil, ErrTournamentNotFound
	}
	tCopy := *t
	return &tCopy, nil
}

// Save writes a full tournament row
func (r *MemoryRepository) Save(ctx context.Context, t *entities.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tCopy := *t
	r.tournaments[t.ID] = &tCopy
	return nil
}

// ListByVenueDateRange retrieves tournaments at a venue in a UTC range
func (r *MemoryRepository) ListByVenueDateRange(ctx context.Context, venueID string, startUTC, endUTC time.Time) ([]*entities.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Tournament, 0)
	for _, t := range r.tournaments {
		if t.VenueID != venueID {
			continue
		}
		if t.GameStartDateTime.Before(startUTC) || !t.GameStartDateTime.Before(endUTC) {
			continue
		}
		tCopy := *t
		result = append(result, &tCopy)
	}
	return result, nil
}

// ListUnassignedByVenue retrieves tournaments without a recurring assignment
func (r *MemoryRepository) ListUnassignedByVenue(ctx context.Context, venueID string) ([]*entities.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Tournament, 0)
	for _, t := range r.tournaments {
		if t.VenueID == venueID && t.RecurringGameID == "" {
			tCopy := *t
			result = append(result, &tCopy)
		}
	}
	return result, nil
}

// ApplyResolution writes the narrow resolution patch onto a tournament
func (r *MemoryRepository) ApplyResolution(ctx context.Context, id string, patch *entities.ResolutionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tournaments[id]
	if !exists {
		return ErrTournamentNotFound
	}

	t.RecurringGameAssignmentStatus = patch.RecurringGameAssignmentStatus
	t.RecurringGameAssignmentConfidence = patch.RecurringGameAssignmentConfidence
	if patch.RecurringGameID != "" {
		t.RecurringGameID = patch.RecurringGameID
	}
	if patch.BuyIn != nil {
		v := *patch.BuyIn
		t.BuyIn = &v
	}
	if patch.GameVariant != nil {
		t.GameVariant = *patch.GameVariant
	}
	if patch.GuaranteeAmount != nil {
		v := *patch.GuaranteeAmount
		t.GuaranteeAmount = &v
	}
	return nil
}
