package instance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felttable/venuepipe/pkg/entities"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite table schema. deviation_details is a JSON array; the partial unique
// index on game_id enforces at most one instance per tournament while
// allowing any number of placeholder rows.
const createInstancesTableSQL = `
	CREATE TABLE IF NOT EXISTS recurring_game_instances (
		id TEXT PRIMARY KEY,
		recurring_game_id TEXT NOT NULL,
		game_id TEXT NOT NULL DEFAULT '',
		venue_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		recurring_game_name TEXT NOT NULL,
		expected_date TEXT NOT NULL,  -- YYYY-MM-DD AEST
		day_of_week TEXT NOT NULL,
		week_key TEXT NOT NULL,  -- YYYY-Www
		status TEXT NOT NULL,
		has_deviation INTEGER NOT NULL DEFAULT 0,
		deviation_type TEXT NOT NULL DEFAULT 'NONE',
		deviation_details TEXT,  -- JSON array of deviation rows
		needs_review INTEGER NOT NULL DEFAULT 0,
		review_reason TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		match_confidence REAL NOT NULL DEFAULT 0,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_occurrence
		ON recurring_game_instances(recurring_game_id, expected_date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_game
		ON recurring_game_instances(game_id) WHERE game_id != '';
	CREATE INDEX IF NOT EXISTS idx_instances_venue_date
		ON recurring_game_instances(venue_id, expected_date);
	CREATE INDEX IF NOT EXISTS idx_instances_week
		ON recurring_game_instances(week_key, venue_id)`

const instanceColumns = `id, recurring_game_id, game_id, venue_id, entity_id, recurring_game_name,
	expected_date, day_of_week, week_key, status, has_deviation, deviation_type, deviation_details,
	needs_review, review_reason, source, match_confidence, cancellation_reason, notes,
	created_at, updated_at, version`

// SQLiteRepository implements Repository using SQLite storage
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite instance repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(createInstancesTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create recurring_game_instances table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// NewSQLiteRepositoryFromDB wraps an existing database handle
func NewSQLiteRepositoryFromDB(db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.Exec(createInstancesTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create recurring_game_instances table: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Get retrieves an instance by ID
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*entities.RecurringGameInstance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_game_instances WHERE id = ?`, id)
	return scanInstanceRow(row)
}

// GetByGameID retrieves the instance attached to a tournament, if any
func (r *SQLiteRepository) GetByGameID(ctx context.Context, gameID string) (*entities.RecurringGameInstance, error) {
	if gameID == "" {
		return nil, ErrInstanceNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_game_instances WHERE game_id = ?`, gameID)
	return scanInstanceRow(row)
}

// GetByTemplateAndDate retrieves the instance for one template occurrence
func (r *SQLiteRepository) GetByTemplateAndDate(ctx context.Context, recurringGameID, expectedDate string) (*entities.RecurringGameInstance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_game_instances
		 WHERE recurring_game_id = ? AND expected_date = ?`, recurringGameID, expectedDate)
	return scanInstanceRow(row)
}

// ListByVenueDateRange retrieves instances at a venue in a date range
func (r *SQLiteRepository) ListByVenueDateRange(ctx context.Context, venueID, startDate, endDate string) ([]*entities.RecurringGameInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_game_instances
		 WHERE venue_id = ? AND expected_date >= ? AND expected_date <= ?
		 ORDER BY expected_date`, venueID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances by venue and date: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// ListByWeek retrieves instances for one ISO week at a venue
func (r *SQLiteRepository) ListByWeek(ctx context.Context, weekKey, venueID string) ([]*entities.RecurringGameInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_game_instances
		 WHERE week_key = ? AND venue_id = ? ORDER BY expected_date`, weekKey, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances by week: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// Create writes the instance iff no row exists with the same ID
func (r *SQLiteRepository) Create(ctx context.Context, inst *entities.RecurringGameInstance) error {
	details, err := json.Marshal(inst.DeviationDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal deviation details: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO recurring_game_instances (`+instanceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.RecurringGameID, inst.GameID, inst.VenueID, inst.EntityID, inst.RecurringGameName,
		inst.ExpectedDate, string(inst.DayOfWeek), inst.WeekKey, string(inst.Status),
		boolToInt(inst.HasDeviation), string(inst.DeviationType), string(details),
		boolToInt(inst.NeedsReview), inst.ReviewReason, string(inst.Source), inst.MatchConfidence,
		inst.CancellationReason, inst.Notes, now, now, 1)
	if err != nil {
		switch {
		case isUniqueViolation(err, "recurring_game_instances.id"):
			return ErrIDConflict
		case isUniqueViolation(err, "recurring_game_instances.recurring_game_id"):
			return ErrDuplicateOccurrence
		case isUniqueViolation(err, "recurring_game_instances.game_id"):
			return ErrDuplicateGame
		}
		return fmt.Errorf("failed to insert instance: %w", err)
	}

	inst.CreatedAt = now
	inst.UpdatedAt = now
	inst.Version = 1
	return nil
}

// Update performs a version-checked write
func (r *SQLiteRepository) Update(ctx context.Context, inst *entities.RecurringGameInstance) error {
	details, err := json.Marshal(inst.DeviationDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal deviation details: %w", err)
	}

	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_game_instances SET
			game_id = ?, status = ?, has_deviation = ?, deviation_type = ?, deviation_details = ?,
			needs_review = ?, review_reason = ?, source = ?, match_confidence = ?,
			cancellation_reason = ?, notes = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		inst.GameID, string(inst.Status), boolToInt(inst.HasDeviation), string(inst.DeviationType),
		string(details), boolToInt(inst.NeedsReview), inst.ReviewReason, string(inst.Source),
		inst.MatchConfidence, inst.CancellationReason, inst.Notes, now,
		inst.ID, inst.Version)
	if err != nil {
		if isUniqueViolation(err, "recurring_game_instances.game_id") {
			return ErrDuplicateGame
		}
		return fmt.Errorf("failed to update instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	inst.UpdatedAt = now
	inst.Version++
	return nil
}

func scanInstanceRow(row *sql.Row) (*entities.RecurringGameInstance, error) {
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, ErrInstanceNotFound
	}
	return inst, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entities.RecurringGameInstance, error) {
	var inst entities.RecurringGameInstance
	var dayOfWeek, status, deviationType, source string
	var details sql.NullString
	var hasDeviation, needsReview int

	err := row.Scan(&inst.ID, &inst.RecurringGameID, &inst.GameID, &inst.VenueID, &inst.EntityID,
		&inst.RecurringGameName, &inst.ExpectedDate, &dayOfWeek, &inst.WeekKey, &status,
		&hasDeviation, &deviationType, &details, &needsReview, &inst.ReviewReason,
		&source, &inst.MatchConfidence, &inst.CancellationReason, &inst.Notes,
		&inst.CreatedAt, &inst.UpdatedAt, &inst.Version)
	if err != nil {
		return nil, err
	}

	inst.DayOfWeek = entities.DayOfWeek(dayOfWeek)
	inst.Status = entities.InstanceStatus(status)
	inst.DeviationType = entities.DeviationType(deviationType)
	inst.Source = entities.InstanceSource(source)
	inst.HasDeviation = hasDeviation != 0
	inst.NeedsReview = needsReview != 0

	if details.Valid && details.String != "" && details.String != "null" {
		if err := json.Unmarshal([]byte(details.String), &inst.DeviationDetails); err != nil {
			return nil, fmt.Errorf("bad deviation_details for instance %s: %w", inst.ID, err)
		}
	}
	return &inst, nil
}

func scanInstances(rows *sql.Rows) ([]*entities.RecurringGameInstance, error) {
	instances := make([]*entities.RecurringGameInstance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
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
