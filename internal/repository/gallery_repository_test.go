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

func TestGalleryListByTagAttachesImages(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGalleryRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM gallery_items WHERE 1=1 AND $1 = ANY(tags) ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("cosplay").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "customer_name", "tags", "created_at", "updated_at"}).
			AddRow("g1", "Helmet", "Full size", "Sam", "{cosplay}", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE gi.gallery_item_id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "gallery_item_id", "file_id", "url", "sort_order"}).
			AddRow("gi1", "g1", "f1", "/gallery/1-a.webp", 0))

	items, err := repo.List(context.Background(), models.GalleryFilter{Tag: "cosplay"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/gallery/1-a.webp", items[0].Image)
	require.NotNil(t, items[0].CustomerName)
	assert.Equal(t, "Sam", *items[0].CustomerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGalleryLinkImageIgnoresDuplicates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGalleryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (gallery_item_id, file_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "g1", "f1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LinkImage(context.Background(), nil, "g1", "f1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
