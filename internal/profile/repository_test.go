package profile

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/ulid"
)

// testSQLRepository is a wrapper around SQLRepository for testing
type testSQLRepository struct {
	*SQLRepository
}

// NewTestSQLRepository creates a new test repository instance
func NewTestSQLRepository(db *sql.DB) *testSQLRepository {
	// Create a noop logger for testing
	logger := loggy.NewNoopLogger()

	return &testSQLRepository{
		SQLRepository: &SQLRepository{
			db:      db,
			logger:  logger,
			builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		},
	}
}

func TestProfileRepository(t *testing.T) {
	// Create a mock database connection
	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock database")
	defer db.Close()

	repo := NewTestSQLRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	sampleProfile := &Profile{
		ID:        ulid.MustParse("prof-01HGW2N0000000000000000000"),
		Name:      "staging",
		HubURL:    "https://hub.staging.example.com",
		APIToken:  "bhs_secret_token",
		Active:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	storedToken, err := obfuscateToken(sampleProfile.APIToken)
	require.NoError(t, err, "Failed to obfuscate sample token")

	// profileRows builds the row set the repository queries return
	profileRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "name", "hub_url", "api_token", "active", "created_at", "updated_at",
		}).AddRow(
			sampleProfile.ID.String(),
			sampleProfile.Name,
			sampleProfile.HubURL,
			storedToken,
			sampleProfile.Active,
			sampleProfile.CreatedAt.Format(time.RFC3339),
			sampleProfile.UpdatedAt.Format(time.RFC3339),
		)
	}

	t.Run("CreateProfile", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM profiles WHERE name = ?").
			WithArgs(sampleProfile.Name).
			WillReturnError(sql.ErrNoRows)

		mock.ExpectExec("INSERT INTO profiles").
			WithArgs(
				sampleProfile.ID,
				sampleProfile.Name,
				sampleProfile.HubURL,
				storedToken,
				sampleProfile.Active,
				sqlmock.AnyArg(),
				sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.CreateProfile(context.Background(), sampleProfile)
		assert.NoError(t, err, "CreateProfile should not return an error")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CreateProfileDuplicateName", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM profiles WHERE name = ?").
			WithArgs(sampleProfile.Name).
			WillReturnRows(profileRows())

		err := repo.CreateProfile(context.Background(), sampleProfile)
		assert.ErrorIs(t, err, ErrProfileAlreadyExists)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetProfile", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM profiles WHERE id = ?").
			WithArgs(sampleProfile.ID).
			WillReturnRows(profileRows())

		profile, err := repo.GetProfile(context.Background(), sampleProfile.ID)
		assert.NoError(t, err, "GetProfile should not return an error")
		require.NotNil(t, profile, "Profile should not be nil")
		assert.Equal(t, sampleProfile.ID, profile.ID)
		assert.Equal(t, sampleProfile.Name, profile.Name)
		assert.Equal(t, sampleProfile.HubURL, profile.HubURL)
		assert.Equal(t, sampleProfile.APIToken, profile.APIToken, "token should round-trip through obfuscation")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetProfileNotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM profiles WHERE id = ?").
			WithArgs(sampleProfile.ID).
			WillReturnError(sql.ErrNoRows)

		profile, err := repo.GetProfile(context.Background(), sampleProfile.ID)
		assert.ErrorIs(t, err, ErrProfileNotFound)
		assert.Nil(t, profile)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetProfileByName", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM profiles WHERE name = ?").
			WithArgs(sampleProfile.Name).
			WillReturnRows(profileRows())

		profile, err := repo.GetProfileByName(context.Background(), sampleProfile.Name)
		assert.NoError(t, err, "GetProfileByName should not return an error")
		require.NotNil(t, profile, "Profile should not be nil")
		assert.Equal(t, sampleProfile.Name, profile.Name)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetActiveProfile", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "name", "hub_url", "api_token", "active", "created_at", "updated_at",
		}).AddRow(
			sampleProfile.ID.String(),
			sampleProfile.Name,
			sampleProfile.HubURL,
			storedToken,
			true,
			sampleProfile.CreatedAt.Format(time.RFC3339),
			sampleProfile.UpdatedAt.Format(time.RFC3339),
		)

		mock.ExpectQuery("SELECT .+ FROM profiles WHERE active = ?").
			WithArgs(true).
			WillReturnRows(rows)

		profile, err := repo.GetActiveProfile(context.Background())
		assert.NoError(t, err, "GetActiveProfile should not return an error")
		require.NotNil(t, profile, "Profile should not be nil")
		assert.True(t, profile.Active)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetActiveProfileNone", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM profiles WHERE active = ?").
			WithArgs(true).
			WillReturnError(sql.ErrNoRows)

		profile, err := repo.GetActiveProfile(context.Background())
		assert.ErrorIs(t, err, ErrProfileNotFound)
		assert.Nil(t, profile)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ListProfiles", func(t *testing.T) {
		second := ulid.MustParse("prof-01HGW2N0000000000000000001")
		rows := profileRows().AddRow(
			second.String(),
			"production",
			"https://hub.example.com",
			storedToken,
			true,
			sampleProfile.CreatedAt.Add(time.Hour).Format(time.RFC3339),
			sampleProfile.UpdatedAt.Add(time.Hour).Format(time.RFC3339),
		)

		mock.ExpectQuery("SELECT .+ FROM profiles ORDER BY created_at ASC").
			WillReturnRows(rows)

		profiles, err := repo.ListProfiles(context.Background())
		assert.NoError(t, err, "ListProfiles should not return an error")
		require.Len(t, profiles, 2, "Should return two profiles")
		assert.Equal(t, sampleProfile.Name, profiles[0].Name)
		assert.Equal(t, "production", profiles[1].Name)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SetActiveProfile", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE profiles SET active = ?").
			WithArgs(false, true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE profiles SET active = \?, updated_at = \?`).
			WithArgs(true, sqlmock.AnyArg(), sampleProfile.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.SetActiveProfile(context.Background(), sampleProfile.ID)
		assert.NoError(t, err, "SetActiveProfile should not return an error")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SetActiveProfileNotFound", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE profiles SET active = ?").
			WithArgs(false, true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE profiles SET active = \?, updated_at = \?`).
			WithArgs(true, sqlmock.AnyArg(), sampleProfile.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.SetActiveProfile(context.Background(), sampleProfile.ID)
		assert.ErrorIs(t, err, ErrProfileNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeleteProfile", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM profiles").
			WithArgs(sampleProfile.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DeleteProfile(context.Background(), sampleProfile.ID)
		assert.NoError(t, err, "DeleteProfile should not return an error")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeleteProfileNotFound", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM profiles").
			WithArgs(sampleProfile.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.DeleteProfile(context.Background(), sampleProfile.ID)
		assert.ErrorIs(t, err, ErrProfileNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenObfuscation(t *testing.T) {
	token := "bhs_4fXj2kQ9"

	obfuscated, err := obfuscateToken(token)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obfuscated, "OBFS:"))
	assert.NotContains(t, obfuscated, token)

	plain, err := deobfuscateToken(obfuscated)
	require.NoError(t, err)
	assert.Equal(t, token, plain)
}

func TestDeobfuscateTokenPassthrough(t *testing.T) {
	// Values stored before obfuscation was introduced come back untouched
	plain, err := deobfuscateToken("raw-token")
	require.NoError(t, err)
	assert.Equal(t, "raw-token", plain)

	empty, err := deobfuscateToken("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}
