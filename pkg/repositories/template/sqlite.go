package template

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/felttable/venuepipe/pkg/entities"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite table schema. Monetary columns are stored as decimal strings to keep
// cent precision; the sort_key column materializes the dayOfWeek#name
// composite used for same-day duplicate checks.
const createRecurringGamesTableSQL = `
	CREATE TABLE IF NOT EXISTS recurring_games (
		id TEXT PRIMARY KEY,
		venue_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		day_of_week TEXT NOT NULL,
		sort_key TEXT NOT NULL,  -- day_of_week || '#' || name
		frequency TEXT NOT NULL,
		game_type TEXT NOT NULL,
		game_variant TEXT,
		tournament_type TEXT,
		start_time TEXT NOT NULL,  -- HH:MM AEST
		typical_buy_in TEXT NOT NULL,
		typical_guarantee TEXT NOT NULL,
		has_jackpot_contributions INTEGER NOT NULL DEFAULT 0,
		jackpot_contribution_amount TEXT NOT NULL DEFAULT '0',
		has_accumulator_tickets INTEGER NOT NULL DEFAULT 0,
		accumulator_ticket_value TEXT NOT NULL DEFAULT '0',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_paused INTEGER NOT NULL DEFAULT 0,
		total_instances_run INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_recurring_games_venue ON recurring_games(venue_id);
	CREATE INDEX IF NOT EXISTS idx_recurring_games_venue_day ON recurring_games(venue_id, day_of_week);
	CREATE INDEX IF NOT EXISTS idx_recurring_games_venue_sort ON recurring_games(venue_id, sort_key);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_recurring_games_identity
		ON recurring_games(venue_id, day_of_week, normalized_name, game_type)
		WHERE is_active = 1`

const recurringGameColumns = `id, venue_id, entity_id, name, normalized_name, day_of_week, frequency,
	game_type, game_variant, tournament_type, start_time, typical_buy_in, typical_guarantee,
	has_jackpot_contributions, jackpot_contribution_amount, has_accumulator_tickets, accumulator_ticket_value,
	is_active, is_paused, total_instances_run, created_at, updated_at, version`

// SQLiteRepository implements Repository using SQLite storage
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite template repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(createRecurringGamesTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create recurring_games table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// NewSQLiteRepositoryFromDB wraps an existing database handle, used when the
// template and instance stores share one file
func NewSQLiteRepositoryFromDB(db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.Exec(createRecurringGamesTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create recurring_games table: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Get retrieves a template by ID
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*entities.RecurringGame, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recurringGameColumns+` FROM recurring_games WHERE id = ?`, id)
	t, err := scanRecurringGame(row)
	if err == sql.ErrNoRows {
		return nil, ErrTemplateNotFound
	}
	return t, err
}

// GetByVenue retrieves all active templates at a venue
func (r *SQLiteRepository) GetByVenue(ctx context.Context, venueID string) ([]*entities.RecurringGame, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recurringGameColumns+` FROM recurring_games WHERE venue_id = ? AND is_active = 1`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates by venue: %w", err)
	}
	defer rows.Close()
	return scanRecurringGames(rows)
}

// GetByVenueAndDay retrieves active templates for one weekday at a venue
func (r *SQLiteRepository) GetByVenueAndDay(ctx context.Context, venueID string, day entities.DayOfWeek) ([]*entities.RecurringGame, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recurringGameColumns+` FROM recurring_games
		 WHERE venue_id = ? AND day_of_week = ? AND is_active = 1`, venueID, string(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query templates by venue and day: %w", err)
	}
	defer rows.Close()
	return scanRecurringGames(rows)
}

// Create writes the template iff no row exists with the same ID
func (r *SQLiteRepository) Create(ctx context.Context, t *entities.RecurringGame) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_games (`+recurringGameColumns+`, sort_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.VenueID, t.EntityID, t.Name, t.NormalizedName, string(t.DayOfWeek), string(t.Frequency),
		string(t.GameType), string(t.GameVariant), t.TournamentType, t.StartTime,
		t.TypicalBuyIn.String(), t.TypicalGuarantee.String(),
		boolToInt(t.HasJackpotContributions), t.JackpotContributionAmount.String(),
		boolToInt(t.HasAccumulatorTickets), t.AccumulatorTicketValue.String(),
		boolToInt(t.IsActive), boolToInt(t.IsPaused), t.TotalInstancesRun,
		now, now, 1, t.SortKey())
	if err != nil {
		if isUniqueViolation(err, "recurring_games.id") {
			return ErrIDConflict
		}
		if isUniqueViolation(err, "recurring_games.venue_id") {
			return ErrDuplicateTemplate
		}
		return fmt.Errorf("failed to insert template: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1
	return nil
}

// Update performs a version-checked write
func (r *SQLiteRepository) Update(ctx context.Context, t *entities.RecurringGame) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_games SET
			name = ?, normalized_name = ?, day_of_week = ?, sort_key = ?, frequency = ?,
			game_type = ?, game_variant = ?, tournament_type = ?, start_time = ?,
			typical_buy_in = ?, typical_guarantee = ?,
			has_jackpot_contributions = ?, jackpot_contribution_amount = ?,
			has_accumulator_tickets = ?, accumulator_ticket_value = ?,
			is_active = ?, is_paused = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		t.Name, t.NormalizedName, string(t.DayOfWeek), t.SortKey(), string(t.Frequency),
		string(t.GameType), string(t.GameVariant), t.TournamentType, t.StartTime,
		t.TypicalBuyIn.String(), t.TypicalGuarantee.String(),
		boolToInt(t.HasJackpotContributions), t.JackpotContributionAmount.String(),
		boolToInt(t.HasAccumulatorTickets), t.AccumulatorTicketValue.String(),
		boolToInt(t.IsActive), boolToInt(t.IsPaused), now,
		t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	t.UpdatedAt = now
	t.Version++
	return nil
}

// IncrementInstancesRun bumps the confirmed-occurrence counter
func (r *SQLiteRepository) IncrementInstancesRun(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_games SET total_instances_run = total_instances_run + 1, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment instances run: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Deactivate marks a template inactive
func (r *SQLiteRepository) Deactivate(ctx context.Context, id string) error {
	return r.setFlag(ctx, id, "is_active", false)
}

// SetPaused toggles the paused flag
func (r *SQLiteRepository) SetPaused(ctx context.Context, id string, paused bool) error {
	return r.setFlag(ctx, id, "is_paused", paused)
}

func (r *SQLiteRepository) setFlag(ctx context.Context, id, column string, value bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_games SET `+column+` = ?, updated_at = ?, version = version + 1 WHERE id = ?`,
		boolToInt(value), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecurringGame(row rowScanner) (*entities.RecurringGame, error) {
	var t entities.RecurringGame
	var dayOfWeek, frequency, gameType string
	var gameVariant, tournamentType sql.NullString
	var typicalBuyIn, typicalGuarantee, jackpotAmount, ticketValue string
	var hasJackpot, hasTickets, isActive, isPaused int

	err := row.Scan(&t.ID, &t.VenueID, &t.EntityID, &t.Name, &t.NormalizedName, &dayOfWeek, &frequency,
		&gameType, &gameVariant, &tournamentType, &t.StartTime, &typicalBuyIn, &typicalGuarantee,
		&hasJackpot, &jackpotAmount, &hasTickets, &ticketValue,
		&isActive, &isPaused, &t.TotalInstancesRun, &t.CreatedAt, &t.UpdatedAt, &t.Version)
	if err != nil {
		return nil, err
	}

	t.DayOfWeek = entities.DayOfWeek(dayOfWeek)
	t.Frequency = entities.Frequency(frequency)
	t.GameType = entities.GameType(gameType)
	t.GameVariant = entities.GameVariant(gameVariant.String)
	t.TournamentType = tournamentType.String
	t.HasJackpotContributions = hasJackpot != 0
	t.HasAccumulatorTickets = hasTickets != 0
	t.IsActive = isActive != 0
	t.IsPaused = isPaused != 0

	if t.TypicalBuyIn, err = decimal.NewFromString(typicalBuyIn); err != nil {
		return nil, fmt.Errorf("bad typical_buy_in for template %s: %w", t.ID, err)
	}
	if t.TypicalGuarantee, err = decimal.NewFromString(typicalGuarantee); err != nil {
		return nil, fmt.Errorf("bad typical_guarantee for template %s: %w", t.ID, err)
	}
	if t.JackpotContributionAmount, err = decimal.NewFromString(jackpotAmount); err != nil {
		return nil, fmt.Errorf("bad jackpot_contribution_amount for template %s: %w", t.ID, err)
	}
	if t.AccumulatorTicketValue, err = decimal.NewFromString(ticketValue); err != nil {
		return nil, fmt.Errorf("bad accumulator_ticket_value for template %s: %w", t.ID, err)
	}
	return &t, nil
}

func scanRecurringGames(rows *sql.Rows) ([]*entities.RecurringGame, error) {
	templates := make([]*entities.RecurringGame, 0)
	for rows.Next() {
		t, err := scanRecurringGame(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error, columnHint string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, columnHint)
}
