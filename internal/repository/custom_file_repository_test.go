package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
)

func TestLinkOrderItem(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCustomFileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND order_item_id IS NULL")).
		WithArgs("cf1", "item1", models.CustomFileStatusOrdered, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.LinkOrderItem(context.Background(), nil, "cf1", "item1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkOrderItemAlreadyLinked(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCustomFileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND order_item_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.LinkOrderItem(context.Background(), nil, "cf1", "item2")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestGetForUpdateUsesRowLock(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCustomFileRepository(db)

	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "file_id", "material", "quality", "notes", "status", "order_item_id", "created_at", "updated_at"}).
		AddRow("cf1", "u1", "f1", "PLA", "standard", nil, "pending", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM custom_order_files WHERE id = $1 FOR UPDATE")).
		WithArgs("cf1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	cf, err := repo.GetForUpdate(context.Background(), tx, "cf1")
	require.NoError(t, err)
	assert.Nil(t, cf.OrderItemID)
	assert.Equal(t, models.CustomFileStatusPending, cf.Status)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileIDsByUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCustomFileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_id FROM custom_order_files WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"file_id"}).AddRow("f1").AddRow("f2"))

	ids, err := repo.FileIDsByUser(context.Background(), nil, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
