package tournament

import (
	"context"
	"time"

	"github.com/felttable/venuepipe/pkg/entities"
)

// Repository is the core's view of the externally-owned tournament table:
// reads plus the one narrow write the resolver is allowed to make.
type Repository interface {
	// Get retrieves a tournament by ID
	Get(ctx context.Context, id string) (*entities.Tournament, error)

	// Save writes a full tournament row. The ingestion pipeline owns this
	// path; the core only uses it in tests and tooling.
	Save(ctx context.Context, t *entities.Tournament) error

	// ListByVenueDateRange retrieves tournaments at a venue whose start
	// instant falls in [startUTC, endUTC)
	ListByVenueDateRange(ctx context.Context, venueID string, startUTC, endUTC time.Time) ([]*entities.Tournament, error)

	// ListUnassignedByVenue retrieves tournaments at a venue without a
	// recurring assignment
	ListUnassignedByVenue(ctx context.Context, venueID string) ([]*entities.Tournament, error)

	// ApplyResolution writes the resolution-status fields and inherited
	// attributes from a patch onto a tournament. Only buy-in, variant, and
	// guarantee amount land on the row; the jackpot and accumulator
	// enrichments travel on the Resolution itself, because the
	// externally-owned tournament table has no columns for them.
	ApplyResolution(ctx context.Context, id string, patch *entities.ResolutionPatch) error
}
