package tournament

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/felttable/venuepipe/pkg/entities"
	_ "github.com/mattn/go-sqlite3"
)

const createTournamentsTableSQL = `
	CREATE TABLE IF NOT EXISTS tournaments (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		name TEXT NOT NULL,
		game_start_datetime TIMESTAMP NOT NULL,  -- UTC instant
		game_type TEXT,
		game_variant TEXT,
		tournament_type TEXT,
		buy_in TEXT,
		guarantee_amount TEXT,
		prizepool_paid TEXT,
		is_series INTEGER NOT NULL DEFAULT 0,
		recurring_game_id TEXT NOT NULL DEFAULT '',
		assignment_status TEXT NOT NULL DEFAULT '',
		assignment_confidence REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tournaments_venue
		ON tournaments(venue_id, game_start_datetime)`

const tournamentColumns = `id, venue_id, entity_id, name, game_start_datetime, game_type, game_variant,
	tournament_type, buy_in, guarantee_amount, prizepool_paid, is_series,
	recurring_game_id, assignment_status, assignment_confidence`

// SQLiteRepository implements Repository using SQLite storage
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite tournament repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(createTournamentsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tournaments table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// NewSQLiteRepositoryFromDB wraps an existing database handle
func NewSQLiteRepositoryFromDB(db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.Exec(createTournamentsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create tournaments table: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Get retrieves a tournament by ID
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*entities.Tournament, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments WHERE id = ?`, id)
	t, err := scanTournament(row)
	if err == sql.ErrNoRows {
		return nil, ErrTournamentNotFound
	}
	return t, err
}

// Save writes a full tournament row
func (r *SQLiteRepository) Save(ctx context.Context, t *entities.Tournament) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tournaments (`+tournamentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			venue_id = excluded.venue_id, entity_id = excluded.entity_id, name = excluded.name,
			game_start_datetime = excluded.game_start_datetime, game_type = excluded.game_type,
			game_variant = excluded.game_variant, tournament_type = excluded.tournament_type,
			buy_in = excluded.buy_in, guarantee_amount = excluded.guarantee_amount,
			prizepool_paid = excluded.prizepool_paid, is_series = excluded.is_series,
			recurring_game_id = excluded.recurring_game_id,
			assignment_status = excluded.assignment_status,
			assignment_confidence = excluded.assignment_confidence`,
		t.ID, t.VenueID, t.EntityID, t.Name, t.GameStartDateTime.UTC(), string(t.GameType),
		string(t.GameVariant), t.TournamentType, decimalPtrToNull(t.BuyIn),
		decimalPtrToNull(t.GuaranteeAmount), decimalPtrToNull(t.PrizepoolPaid),
		boolToInt(t.IsSeries), t.RecurringGameID, string(t.RecurringGameAssignmentStatus),
		t.RecurringGameAssignmentConfidence)
	if err != nil {
		return fmt.Errorf("failed to save tournament: %w", err)
	}
	return nil
}

// ListByVenueDateRange retrieves tournaments at a venue in a UTC range
func (r *SQLiteRepository) ListByVenueDateRange(ctx context.Context, venueID string, startUTC, endUTC time.Time) ([]*entities.Tournament, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments
		 WHERE venue_id = ? AND game_start_datetime >= ? AND game_start_datetime < ?
		 ORDER BY game_start_datetime`, venueID, startUTC.UTC(), endUTC.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments by venue and date: %w", err)
	}
	defer rows.Close()
	return scanTournaments(rows)
}

// ListUnassignedByVenue retrieves tournaments without a recurring assignment
func (r *SQLiteRepository) ListUnassignedByVenue(ctx context.Context, venueID string) ([]*entities.Tournament, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments
		 WHERE venue_id = ? AND recurring_game_id = ''
		 ORDER BY game_start_datetime`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unassigned tournaments: %w", err)
	}
	defer rows.Close()
	return scanTournaments(rows)
}

// ApplyResolution writes the narrow resolution patch onto a tournament
func (r *SQLiteRepository) ApplyResolution(ctx context.Context, id string, patch *entities.ResolutionPatch) error {
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
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
	return r.Save(ctx, t)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTournament(row rowScanner) (*entities.Tournament, error) {
	var t entities.Tournament
	var gameType, gameVariant, tournamentType sql.NullString
	var buyIn, guarantee, prizepool sql.NullString
	var isSeries int
	var status string

	err := row.Scan(&t.ID, &t.VenueID, &t.EntityID, &t.Name, &t.GameStartDateTime,
		&gameType, &gameVariant, &tournamentType, &buyIn, &guarantee, &prizepool,
		&isSeries, &t.RecurringGameID, &status, &t.RecurringGameAssignmentConfidence)
	if err != nil {
		return nil, err
	}

	t.GameType = entities.GameType(gameType.String)
	t.GameVariant = entities.GameVariant(gameVariant.String)
	t.TournamentType = tournamentType.String
	t.IsSeries = isSeries != 0
	t.RecurringGameAssignmentStatus = entities.AssignmentStatus(status)

	if t.BuyIn, err = nullToDecimalPtr(buyIn); err != nil {
		return nil, fmt.Errorf("bad buy_in for tournament %s: %w", t.ID, err)
	}
	if t.GuaranteeAmount, err = nullToDecimalPtr(guarantee); err != nil {
		return nil, fmt.Errorf("bad guarantee_amount for tournament %s: %w", t.ID, err)
	}
	if t.PrizepoolPaid, err = nullToDecimalPtr(prizepool); err != nil {
		return nil, fmt.Errorf("bad prizepool_paid for tournament %s: %w", t.ID, err)
	}
	return &t, nil
}

func scanTournaments(rows *sql.Rows) ([]*entities.Tournament, error) {
	tournaments := make([]*entities.Tournament, 0)
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func decimalPtrToNull(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullToDecimalPtr(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
