package profile

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/ulid"
)

// Common errors returned by the repository
var (
	// ErrProfileNotFound is returned when a profile doesn't exist
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileAlreadyExists is returned when a profile with the same name exists
	ErrProfileAlreadyExists = errors.New("profile already exists")
)

// Repository defines operations for managing profiles in the database
type Repository interface {
	// CreateProfile saves a new profile
	CreateProfile(ctx context.Context, profile *Profile) error

	// GetProfile retrieves a profile by its ID
	GetProfile(ctx context.Context, id ulid.ULID) (*Profile, error)

	// GetProfileByName retrieves a profile by its unique name
	GetProfileByName(ctx context.Context, name string) (*Profile, error)

	// GetActiveProfile retrieves the currently active profile
	GetActiveProfile(ctx context.Context) (*Profile, error)

	// ListProfiles retrieves all profiles ordered by creation time
	ListProfiles(ctx context.Context) ([]*Profile, error)

	// SetActiveProfile marks the given profile active and deactivates all others
	SetActiveProfile(ctx context.Context, id ulid.ULID) error

	// DeleteProfile deletes a profile by its ID
	DeleteProfile(ctx context.Context, id ulid.ULID) error
}

// SQLRepository implements Repository using SQLite database
type SQLRepository struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLRepository creates a new profile SQL repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) Repository {
	return &SQLRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// CreateProfile saves a new profile to the database
func (r *SQLRepository) CreateProfile(ctx context.Context, profile *Profile) error {
	// Check if a profile with the same name already exists
	existing, err := r.GetProfileByName(ctx, profile.Name)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return fmt.Errorf("checking for existing profile: %w", err)
	}

	if existing != nil {
		return ErrProfileAlreadyExists
	}

	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = now
	}

	storedToken := profile.APIToken
	if profile.APIToken != "" {
		storedToken, err = obfuscateToken(profile.APIToken)
		if err != nil {
			return fmt.Errorf("obfuscating api token: %w", err)
		}
	}

	query, args, err := r.builder.
		Insert("profiles").
		Columns(
			"id",
			"name",
			"hub_url",
			"api_token",
			"active",
			"created_at",
			"updated_at",
		).
		Values(
			profile.ID,
			profile.Name,
			profile.HubURL,
			storedToken,
			profile.Active,
			profile.CreatedAt.UTC().Format(time.RFC3339),
			profile.UpdatedAt.UTC().Format(time.RFC3339),
		).
		ToSql()

	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("inserting profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no rows affected when creating profile")
	}

	r.logger.Info("Created profile", "id", profile.ID, "name", profile.Name, "hub_url", profile.HubURL)
	return nil
}

// GetProfile retrieves a profile by its ID
func (r *SQLRepository) GetProfile(ctx context.Context, id ulid.ULID) (*Profile, error) {
	query, args, err := r.builder.
		Select(
			"id",
			"name",
			"hub_url",
			"api_token",
			"active",
			"created_at",
			"updated_at",
		).
		From("profiles").
		Where(sq.Eq{"id": id}).
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}

	return profile, nil
}

// GetProfileByName retrieves a profile by its unique name
func (r *SQLRepository) GetProfileByName(ctx context.Context, name string) (*Profile, error) {
	query, args, err := r.builder.
		Select(
			"id",
			"name",
			"hub_url",
			"api_token",
			"active",
			"created_at",
			"updated_at",
		).
		From("profiles").
		Where(sq.Eq{"name": name}).
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}

	return profile, nil
}

// GetActiveProfile retrieves the currently active profile
func (r *SQLRepository) GetActiveProfile(ctx context.Context) (*Profile, error) {
	query, args, err := r.builder.
		Select(
			"id",
			"name",
			"hub_url",
			"api_token",
			"active",
			"created_at",
			"updated_at",
		).
		From("profiles").
		Where(sq.Eq{"active": true}).
		Limit(1).
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}

	return profile, nil
}

// ListProfiles retrieves all profiles ordered by creation time
func (r *SQLRepository) ListProfiles(ctx context.Context) ([]*Profile, error) {
	query, args, err := r.builder.
		Select(
			"id",
			"name",
			"hub_url",
			"api_token",
			"active",
			"created_at",
			"updated_at",
		).
		From("profiles").
		OrderBy("created_at ASC").
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing select query: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		profile, err := scanProfileFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile rows: %w", err)
	}

	return profiles, nil
}

// SetActiveProfile marks the given profile active and deactivates all others.
// Both updates happen in one transaction so there is never more than one
// active profile.
func (r *SQLRepository) SetActiveProfile(ctx context.Context, id ulid.ULID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := r.builder.
		Update("profiles").
		Set("active", false).
		Where(sq.Eq{"active": true}).
		ToSql()

	if err != nil {
		return fmt.Errorf("building deactivate query: %w", err)
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivating profiles: %w", err)
	}

	query, args, err = r.builder.
		Update("profiles").
		Set("active", true).
		Set("updated_at", time.Now().UTC().Format(time.RFC3339)).
		Where(sq.Eq{"id": id}).
		ToSql()

	if err != nil {
		return fmt.Errorf("building activate query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("activating profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = ErrProfileNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	r.logger.Info("Activated profile", "id", id)
	return nil
}

// DeleteProfile deletes a profile by its ID
func (r *SQLRepository) DeleteProfile(ctx context.Context, id ulid.ULID) error {
	query, args, err := r.builder.
		Delete("profiles").
		Where(sq.Eq{"id": id}).
		ToSql()

	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProfileNotFound
	}

	r.logger.Info("Deleted profile", "id", id)
	return nil
}

// scanProfile scans a profile from a single row
func scanProfile(row *sql.Row) (*Profile, error) {
	var profile Profile
	var storedToken, createdAtStr, updatedAtStr string

	err := row.Scan(
		&profile.ID,
		&profile.Name,
		&profile.HubURL,
		&storedToken,
		&profile.Active,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	profile.APIToken, err = deobfuscateToken(storedToken)
	if err != nil {
		return nil, fmt.Errorf("deobfuscating api token: %w", err)
	}

	// Parse the time strings
	profile.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	profile.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &profile, nil
}

// scanProfileFromRows scans a profile from a rows object
func scanProfileFromRows(rows *sql.Rows) (*Profile, error) {
	var profile Profile
	var storedToken, createdAtStr, updatedAtStr string

	err := rows.Scan(
		&profile.ID,
		&profile.Name,
		&profile.HubURL,
		&storedToken,
		&profile.Active,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	profile.APIToken, err = deobfuscateToken(storedToken)
	if err != nil {
		return nil, fmt.Errorf("deobfuscating api token: %w", err)
	}

	// Parse the time strings
	profile.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	profile.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &profile, nil
}

// Token obfuscation functions. These keep API tokens out of casual
// database dumps; they provide basic obfuscation, not true encryption.

// obfuscateToken performs basic token obfuscation
func obfuscateToken(token string) (string, error) {
	// Reverse the token
	runes := []rune(token)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	reversed := string(runes)

	// Base64 encode and add a marker
	encoded := base64.StdEncoding.EncodeToString([]byte(reversed))
	return "OBFS:" + encoded, nil
}

// deobfuscateToken reverses the obfuscation
func deobfuscateToken(obfuscated string) (string, error) {
	// Values without the marker are stored as-is
	if !strings.HasPrefix(obfuscated, "OBFS:") {
		return obfuscated, nil
	}

	encoded := strings.TrimPrefix(obfuscated, "OBFS:")

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated token: %w", err)
	}

	// Reverse the string
	runes := []rune(string(decoded))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return string(runes), nil
}
