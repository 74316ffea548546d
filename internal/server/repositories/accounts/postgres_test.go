package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

const (
	insertQ = `(?s)^\s*INSERT\s+INTO\s+accounts\s+\(id,\s*email,\s*password_hash,\s*display_name\).*RETURNING\s+created_at\s*$`
	byIDQ   = `(?s)^\s*SELECT\s+id,\s*email,\s*password_hash,\s*display_name,\s*created_at\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s*$`
	byMailQ = `(?s)^\s*SELECT\s+id,\s*email,\s*password_hash,\s*display_name,\s*created_at\s+FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\s*$`
	deleteQ = `(?s)^\s*DELETE\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s*$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	email := "a@example.com"
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs("id-1", "a@example.com", []byte("hash"), "Ann").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	got, err := repo.Create(context.Background(), &models.Account{ID: "id-1", Email: &email, PasswordHash: []byte("hash"), DisplayName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	email := "a@example.com"
	_, err := repo.Create(context.Background(), &models.Account{ID: "id-1", Email: &email})
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Account{ID: "id-1"})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now().UTC()
	mock.ExpectQuery(byMailQ).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "display_name", "created_at"}).
			AddRow("id-1", "a@example.com", []byte("hash"), "Ann", created))

	got, err := repo.GetByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
	require.NotNil(t, got.Email)
	assert.Equal(t, "a@example.com", *got.Email)
	assert.False(t, got.IsGuest())
}

func TestGetByID_Guest(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(byIDQ).
		WithArgs("id-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "display_name", "created_at"}).
			AddRow("id-2", nil, nil, "Guest", time.Now()))

	got, err := repo.GetByID(context.Background(), "id-2")
	require.NoError(t, err)
	assert.Nil(t, got.Email)
	assert.True(t, got.IsGuest())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(byIDQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(deleteQ).WithArgs("id-1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Delete(context.Background(), "id-1"))
	})

	t.Run("absent", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(deleteQ).WithArgs("id-1").WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, repo.Delete(context.Background(), "id-1"), common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(deleteQ).WithArgs("id-1").WillReturnError(errors.New("boom"))
		err := repo.Delete(context.Background(), "id-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error: boom")
	})
}
