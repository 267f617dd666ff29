package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/storage"
)

const (
	imageFileA = "3f1c2a9e-5b7d-4c8e-9a1b-2c3d4e5f6a7b"
	imageFileB = "8d2e4f6a-1b3c-4d5e-8f9a-0b1c2d3e4f5a"
)

type productRepoStub struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	images    map[string][]string
	listCalls int
	seq       int
}

func newProductRepoStub() *productRepoStub {
	return &productRepoStub{products: map[string]*models.Product{}, images: map[string][]string{}}
}

func (r *productRepoStub) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	out := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, *r.withImages(p))
	}
	return out, nil
}

func (r *productRepoStub) Count(ctx context.Context, filter models.ProductFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.products {
		if filter.Category == "" || p.Category == filter.Category {
			n++
		}
	}
	return n, nil
}

func (r *productRepoStub) GetByID(ctx context.Context, id string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r.withImages(p), nil
}

func (r *productRepoStub) withImages(p *models.Product) *models.Product {
	cp := *p
	cp.Images = make([]models.ProductImage, 0)
	for i, fid := range r.images[p.ID] {
		cp.Images = append(cp.Images, models.ProductImage{FileID: fid, URL: "/uploads/image/" + fid + ".png", IsPrimary: i == 0, SortOrder: i})
	}
	cp.Image = cp.PrimaryImageURL()
	return &cp
}

func (r *productRepoStub) Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.products[id]
	return ok, nil
}

func (r *productRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	product.ID = fmt.Sprintf("prod-%d", r.seq)
	cp := *product
	r.products[product.ID] = &cp
	return nil
}

func (r *productRepoStub) Update(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *product
	cp.Images = nil
	r.products[product.ID] = &cp
	return nil
}

func (r *productRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
	delete(r.images, id)
	return nil
}

func (r *productRepoStub) ImageFileIDs(ctx context.Context, exec sqlx.ExtContext, productID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.images[productID]...), nil
}

func (r *productRepoStub) SetPrimaryImage(ctx context.Context, exec sqlx.ExtContext, productID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []string{fileID}
	for _, id := range r.images[productID] {
		if id != fileID {
			ids = append(ids, id)
		}
	}
	r.images[productID] = ids
	return nil
}

type catalogFixture struct {
	files    *fileRepoStub
	store    *storage.LocalStorage
	fileSvc  *FileService
	tx       txProvider
	audit    *auditLoggerStub
	expectTx func(commit bool)
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	files := newFileRepoStub()
	for _, id := range []string{imageFileA, imageFileB} {
		files.files[id] = &models.File{ID: id, Path: "uploads/image/" + id + ".png", Kind: models.FileKindImage}
		_, err := store.Save(context.Background(), "uploads/image/"+id+".png", strings.NewReader("png"), "image/png")
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return &catalogFixture{
		files:   files,
		store:   store,
		fileSvc: NewFileService(files, store, tx, nil, nil, FileServiceConfig{}),
		tx:      tx,
		audit:   &auditLoggerStub{},
		expectTx: func(commit bool) {
			mock.ExpectBegin()
			if commit {
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}
		},
	}
}

func TestProductServiceCreateWithPrimaryImage(t *testing.T) {
	f := newCatalogFixture(t)
	repo := newProductRepoStub()
	svc := NewProductService(repo, f.files, f.fileSvc, nil, f.tx, f.audit, nil, nil)
	ctx := context.Background()

	req := models.CreateProductRequest{
		Name:        "  Articulated Dragon ",
		Description: "Print-in-place dragon",
		BasePrice:   12.346,
		Category:    "Figures",
		Tags:        []string{"dragon", " dragon", "", "flexi"},
		ImageFileID: strPtr(imageFileA),
	}

	_, err := svc.Create(ctx, req, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	f.expectTx(true)
	product, err := svc.Create(ctx, req, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "Articulated Dragon", product.Name)
	assert.Equal(t, 12.35, product.BasePrice)
	assert.Equal(t, []string{"dragon", "flexi"}, []string(product.Tags))
	assert.Equal(t, "/uploads/image/"+imageFileA+".png", product.Image)
	assert.Equal(t, []string{models.AuditActionProductWrite}, f.audit.actions())
}

func TestProductServiceCreateRejectsBadInput(t *testing.T) {
	f := newCatalogFixture(t)
	f.files.files[imageFileB].Kind = models.FileKindModel
	svc := NewProductService(newProductRepoStub(), f.files, f.fileSvc, nil, f.tx, f.audit, nil, nil)
	ctx := context.Background()

	cases := map[string]models.CreateProductRequest{
		"missing name":   {Description: "d", Category: "c"},
		"negative price": {Name: "n", Description: "d", Category: "c", BasePrice: -1},
		"unknown image":  {Name: "n", Description: "d", Category: "c", ImageFileID: strPtr("00000000-0000-4000-8000-000000000000")},
		"model as image": {Name: "n", Description: "d", Category: "c", ImageFileID: strPtr(imageFileB)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, req, adminClaims())
			assert.True(t, errors.Is(err, appErrors.ErrValidation), err)
		})
	}
}

func TestProductServiceListCachesUntilWrite(t *testing.T) {
	f := newCatalogFixture(t)
	cache, _ := newRedisCache(t)
	repo := newProductRepoStub()
	repo.products["prod-a"] = &models.Product{ID: "prod-a", Name: "Vase", Category: "Home"}
	svc := NewProductService(repo, f.files, f.fileSvc, cache, f.tx, f.audit, nil, nil)
	ctx := context.Background()

	items, page, err := svc.List(ctx, models.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.Pagination{Limit: models.MaxPageLimit, Total: 1}, *page)

	_, _, err = svc.List(ctx, models.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	f.expectTx(true)
	_, err = svc.Create(ctx, models.CreateProductRequest{Name: "Lamp", Description: "d", Category: "Home"}, adminClaims())
	require.NoError(t, err)

	items, page, err = svc.List(ctx, models.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, repo.listCalls)
}

func TestProductServiceGet(t *testing.T) {
	f := newCatalogFixture(t)
	repo := newProductRepoStub()
	repo.products["prod-a"] = &models.Product{ID: "prod-a", Name: "Vase"}
	svc := NewProductService(repo, f.files, f.fileSvc, nil, f.tx, f.audit, nil, nil)

	product, err := svc.Get(context.Background(), "prod-a")
	require.NoError(t, err)
	assert.Equal(t, "Vase", product.Name)
	assert.Empty(t, product.Images)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestProductServiceUpdateIsPartial(t *testing.T) {
	f := newCatalogFixture(t)
	repo := newProductRepoStub()
	repo.products["prod-a"] = &models.Product{ID: "prod-a", Name: "Vase", Description: "Spiral", BasePrice: 10, Category: "Home", PrintTime: strPtr("4h")}
	repo.images["prod-a"] = []string{imageFileA}
	svc := NewProductService(repo, f.files, f.fileSvc, nil, f.tx, f.audit, nil, nil)
	ctx := context.Background()

	f.expectTx(true)
	product, err := svc.Update(ctx, "prod-a", models.UpdateProductRequest{
		BasePrice:   floatPtr(15.5),
		PrintTime:   strPtr("  "),
		ImageFileID: strPtr(imageFileB),
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "Vase", product.Name)
	assert.Equal(t, "Spiral", product.Description)
	assert.Equal(t, 15.5, product.BasePrice)
	assert.Nil(t, product.PrintTime)
	require.Len(t, product.Images, 2)
	assert.Equal(t, imageFileB, product.Images[0].FileID)
	assert.True(t, product.Images[0].IsPrimary)

	_, err = svc.Update(ctx, "missing", models.UpdateProductRequest{Name: strPtr("x")}, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = svc.Update(ctx, "prod-a", models.UpdateProductRequest{Name: strPtr("   ")}, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestProductServiceDeleteReleasesUnsharedImages(t *testing.T) {
	f := newCatalogFixture(t)
	repo := newProductRepoStub()
	repo.products["prod-a"] = &models.Product{ID: "prod-a", Name: "Vase"}
	repo.images["prod-a"] = []string{imageFileA, imageFileB}
	f.files.refs[imageFileB] = models.FileReferences{GalleryImages: 1}
	svc := NewProductService(repo, f.files, f.fileSvc, nil, f.tx, f.audit, nil, nil)
	ctx := context.Background()

	assert.True(t, errors.Is(svc.Delete(ctx, "prod-a", userClaims("user-1")), appErrors.ErrForbidden))

	f.expectTx(true)
	require.NoError(t, svc.Delete(ctx, "prod-a", adminClaims()))
	assert.Empty(t, repo.products)
	assert.Equal(t, []string{imageFileA}, f.files.deleted)

	gone, err := f.store.Exists(ctx, "uploads/image/"+imageFileA+".png")
	require.NoError(t, err)
	assert.False(t, gone)
	kept, err := f.store.Exists(ctx, "uploads/image/"+imageFileB+".png")
	require.NoError(t, err)
	assert.True(t, kept)

	f.expectTx(false)
	assert.True(t, errors.Is(svc.Delete(ctx, "prod-a", adminClaims()), appErrors.ErrNotFound))
}
