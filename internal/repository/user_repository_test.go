package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "email", "password_hash", "name", "role", "created_at", "updated_at"}

func TestFindByEmailLowercases(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "user@example.com", "hash", "User", string(models.RoleUser), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "User@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListUsersAppliesFilterAndPage(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "a@example.com", "hash", "A", string(models.RoleAdmin), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE 1=1 AND role = $1 AND (LOWER(email) LIKE $2 OR LOWER(name) LIKE $2) ORDER BY created_at DESC LIMIT 100 OFFSET 10")).
		WithArgs(models.RoleAdmin, "%ann%").
		WillReturnRows(rows)

	users, err := repo.List(context.Background(), models.UserFilter{
		Role:   models.RoleAdmin,
		Search: "Ann",
		Page:   models.Page{Limit: 500, Offset: 10},
	})
	require.NoError(t, err)
	assert.Len(t, users, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	total, err := repo.Count(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAdminsForUpdateLocksRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE role = 'admin' FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2"))

	count, err := repo.CountAdminsForUpdate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET email").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), nil, &models.User{ID: "u1", Email: "X@Example.com", Role: models.RoleUser})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLogDefaultsPayload(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{Action: models.AuditActionLogin, Resource: "auth"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "{}", string(entry.NewValues))
	assert.NoError(t, mock.ExpectationsWereMet())
}
