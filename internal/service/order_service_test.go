package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/internal/repository"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/storage"
)

type orderRepoStub struct {
	orders    map[string]*models.Order
	createErr error
	exports   []models.OrderExportRow
	seq       int
}

func newOrderRepoStub() *orderRepoStub {
	return &orderRepoStub{orders: map[string]*models.Order{}}
}

func (r *orderRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, order *models.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	order.ID = fmt.Sprintf("order-%d", r.seq)
	for i := range order.Items {
		order.Items[i].ID = fmt.Sprintf("%s-item-%d", order.ID, i)
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *orderRepoStub) GetByID(ctx context.Context, id string) (*models.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func cloneOrder(o *models.Order) models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return cp
}

func (r *orderRepoStub) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	out := make([]models.Order, 0)
	for _, o := range r.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (r *orderRepoStub) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	list, err := r.List(ctx, filter)
	return len(list), err
}

func (r *orderRepoStub) ListForExport(ctx context.Context, filter models.OrderFilter) ([]models.OrderExportRow, error) {
	return r.exports, nil
}

func (r *orderRepoStub) Update(ctx context.Context, order *models.Order) error {
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *orderRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, ok := r.orders[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.orders, id)
	return nil
}

type productCheckerStub map[string]bool

func (p productCheckerStub) Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	return p[id], nil
}

func newOrderFixture(t *testing.T) (*OrderService, *orderRepoStub, *quoteRepoStub, *customFileRepoStub, *fileRepoStub, *storage.LocalStorage, *auditLoggerStub, func(commit bool)) {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	repo := newOrderRepoStub()
	quotes := newQuoteRepoStub()
	cfs := newCustomFileRepoStub()
	files := newFileRepoStub()
	audit := &auditLoggerStub{}
	fileSvc := NewFileService(files, store, tx, nil, nil, FileServiceConfig{})
	products := productCheckerStub{"prod-1": true}

	svc := NewOrderService(repo, products, cfs, quotes, files, fileSvc, tx, audit, nil, nil, nil, OrderServiceConfig{})
	expectTx := func(commit bool) {
		mock.ExpectBegin()
		if commit {
			mock.ExpectCommit()
		} else {
			mock.ExpectRollback()
		}
	}
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return svc, repo, quotes, cfs, files, store, audit, expectTx
}

func seedQuotedFile(quotes *quoteRepoStub, cfs *customFileRepoStub, files *fileRepoStub, owner string, price *float64, status models.QuoteStatus) {
	uploader := owner
	files.files["file-1"] = &models.File{ID: "file-1", OriginalName: "part.stl", Path: "uploads/model/part.stl", Kind: models.FileKindModel, Size: 2097152, UploadedBy: &uploader}
	cfs.files["cf-1"] = &models.CustomOrderFile{ID: "cf-1", UserID: owner, FileID: "file-1", Material: "PLA", Quality: "standard", Status: models.CustomFileStatusQuoted}
	quotes.details["q-1"] = &models.QuoteDetail{QuoteRequest: models.QuoteRequest{
		ID: "q-1", CustomFileID: "cf-1", UserID: owner, Status: status, RequestedPrice: price,
	}}
}

func TestOrderServiceCreateFromQuote(t *testing.T) {
	svc, repo, quotes, cfs, files, _, audit, expectTx := newOrderFixture(t)
	seedQuotedFile(quotes, cfs, files, "user-1", floatPtr(45), models.QuoteStatusQuoted)

	expectTx(true)
	order, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{Shipping: floatPtr(5), Tax: floatPtr(0)}, userClaims("user-1"))
	require.NoError(t, err)

	assert.Equal(t, 50.0, order.Total)
	assert.Equal(t, 45.0, order.Subtotal)
	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, "part.stl", item.ProductName)
	assert.Equal(t, "PLA", item.Material)
	assert.Equal(t, "custom", item.Size)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, 45.0, item.UnitPrice)
	assert.True(t, item.IsCustom)
	require.NotNil(t, item.CustomFileID)
	assert.Equal(t, "cf-1", *item.CustomFileID)

	assert.Equal(t, models.QuoteStatusAccepted, quotes.details["q-1"].Status)
	assert.Equal(t, item.ID, cfs.linked["cf-1"])
	assert.Len(t, repo.orders, 1)
	assert.Equal(t, []string{models.AuditActionOrderConvert}, audit.actions())

	expectTx(false)
	_, err = svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{Shipping: floatPtr(5)}, userClaims("user-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 400, appErr.Status)
	assert.Equal(t, "ORDER_EXISTS", appErr.Code)
	assert.Contains(t, appErr.Message, "already been created")
	assert.Len(t, repo.orders, 1)
}

func TestOrderServiceCreateFromQuotePreconditions(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		svc, _, _, _, _, _, _, expectTx := newOrderFixture(t)
		expectTx(false)
		_, err := svc.CreateFromQuote(context.Background(), "missing", models.CreateOrderFromQuoteRequest{}, userClaims("user-1"))
		assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	})

	t.Run("not owner beats invalid state", func(t *testing.T) {
		svc, _, quotes, cfs, files, _, _, expectTx := newOrderFixture(t)
		seedQuotedFile(quotes, cfs, files, "user-1", nil, models.QuoteStatusPending)
		expectTx(false)
		_, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{}, userClaims("user-2"))
		assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	})

	t.Run("admin is not the owner", func(t *testing.T) {
		svc, _, quotes, cfs, files, _, _, expectTx := newOrderFixture(t)
		seedQuotedFile(quotes, cfs, files, "user-1", floatPtr(45), models.QuoteStatusQuoted)
		expectTx(false)
		_, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{}, adminClaims())
		assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	})

	t.Run("pending quote", func(t *testing.T) {
		svc, _, quotes, cfs, files, _, _, expectTx := newOrderFixture(t)
		seedQuotedFile(quotes, cfs, files, "user-1", nil, models.QuoteStatusPending)
		expectTx(false)
		_, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{}, userClaims("user-1"))
		assert.True(t, errors.Is(err, appErrors.ErrInvalidState))
	})

	t.Run("already linked file", func(t *testing.T) {
		svc, repo, quotes, cfs, files, _, _, expectTx := newOrderFixture(t)
		seedQuotedFile(quotes, cfs, files, "user-1", floatPtr(45), models.QuoteStatusQuoted)
		cfs.files["cf-1"].OrderItemID = strPtr("item-x")
		expectTx(false)
		_, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{}, userClaims("user-1"))
		assert.True(t, errors.Is(err, appErrors.ErrOrderExists))
		assert.Empty(t, repo.orders)
	})

	t.Run("link lost the race", func(t *testing.T) {
		svc, _, quotes, cfs, files, _, _, expectTx := newOrderFixture(t)
		seedQuotedFile(quotes, cfs, files, "user-1", floatPtr(45), models.QuoteStatusQuoted)
		cfs.linkErr = repository.ErrAlreadyLinked
		expectTx(false)
		_, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{}, userClaims("user-1"))
		assert.True(t, errors.Is(err, appErrors.ErrOrderExists))
		assert.Equal(t, models.QuoteStatusQuoted, quotes.details["q-1"].Status)
	})

	t.Run("unique backstop", func(t *testing.T) {
		svc, _, quotes, cfs, files, _, _, expectTx := newOrderFixture(t)
		seedQuotedFile(quotes, cfs, files, "user-1", floatPtr(45), models.QuoteStatusQuoted)
		cfs.linkErr = fmt.Errorf("link: %w", &pq.Error{Code: "23505", Constraint: customOrderLinkKey})
		expectTx(false)
		_, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{}, userClaims("user-1"))
		assert.True(t, errors.Is(err, appErrors.ErrOrderExists))
	})

	t.Run("negative shipping", func(t *testing.T) {
		svc, _, _, _, _, _, _, _ := newOrderFixture(t)
		_, err := svc.CreateFromQuote(context.Background(), "q-1", models.CreateOrderFromQuoteRequest{Shipping: floatPtr(-5)}, userClaims("user-1"))
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	})
}

func TestOrderServiceCreateCatalogOrder(t *testing.T) {
	svc, repo, _, cfs, _, _, _, expectTx := newOrderFixture(t)
	cfID := "3f1c1a52-7d4e-4d9e-9a55-000000000001"
	productID := "3f1c1a52-7d4e-4d9e-9a55-0000000000aa"
	cfs.files[cfID] = &models.CustomOrderFile{ID: cfID, UserID: "user-1", FileID: "file-1"}
	svc.products = productCheckerStub{productID: true}

	expectTx(true)
	order, err := svc.Create(context.Background(), models.CreateOrderRequest{
		Items: []models.CreateOrderItemRequest{
			{ProductID: &productID, ProductName: " Dragon ", Material: "PLA", Size: "M", Quantity: 2, UnitPrice: 10, TotalPrice: 20},
			{ProductName: "My part", Material: "PETG", Size: "custom", Quantity: 1, UnitPrice: 30, TotalPrice: 30, CustomFileID: &cfID},
		},
		Subtotal: 50, Shipping: 5, Total: 55,
	}, userClaims("user-1"))
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Dragon", order.Items[0].ProductName)
	assert.False(t, order.Items[0].IsCustom)
	assert.True(t, order.Items[1].IsCustom)
	require.NotNil(t, order.Items[1].CustomFileID)
	assert.Equal(t, order.Items[1].ID, cfs.linked[cfID])
	assert.Equal(t, 55.0, order.Total)
	assert.Len(t, repo.orders, 1)
}

func TestOrderServiceCreateCatalogOrderRejects(t *testing.T) {
	cfID := "3f1c1a52-7d4e-4d9e-9a55-000000000001"
	missingProduct := "3f1c1a52-7d4e-4d9e-9a55-0000000000bb"
	valid := models.CreateOrderItemRequest{ProductName: "Dragon", Material: "PLA", Size: "M", Quantity: 1, UnitPrice: 10, TotalPrice: 10}

	svc, repo, _, cfs, _, _, _, _ := newOrderFixture(t)
	cfs.files[cfID] = &models.CustomOrderFile{ID: cfID, UserID: "user-2"}

	_, err := svc.Create(context.Background(), models.CreateOrderRequest{}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	bad := valid
	bad.Quantity = 0
	_, err = svc.Create(context.Background(), models.CreateOrderRequest{Items: []models.CreateOrderItemRequest{bad}}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), models.CreateOrderRequest{Items: []models.CreateOrderItemRequest{valid}, Total: -1}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	withProduct := valid
	withProduct.ProductID = &missingProduct
	_, err = svc.Create(context.Background(), models.CreateOrderRequest{Items: []models.CreateOrderItemRequest{withProduct}}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	withFile := valid
	withFile.CustomFileID = &cfID
	_, err = svc.Create(context.Background(), models.CreateOrderRequest{Items: []models.CreateOrderItemRequest{withFile}}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	assert.Empty(t, repo.orders)
}

func TestOrderServiceUpdateRules(t *testing.T) {
	svc, repo, _, _, _, _, audit, _ := newOrderFixture(t)
	repo.orders["o1"] = &models.Order{ID: "o1", UserID: "user-1", Status: models.OrderStatusPending}
	shipped := models.OrderStatusShipped
	cancelled := models.OrderStatusCancelled
	bogus := models.OrderStatus("lost")

	_, err := svc.Update(context.Background(), "o1", models.UpdateOrderRequest{Status: &shipped}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, 403, appErrors.FromError(err).Status)

	_, err = svc.Update(context.Background(), "o1", models.UpdateOrderRequest{Status: &cancelled}, userClaims("user-2"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Update(context.Background(), "o1", models.UpdateOrderRequest{Status: &cancelled, TrackingNumber: strPtr("TRK")}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Update(context.Background(), "missing", models.UpdateOrderRequest{Status: &cancelled}, userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Update(context.Background(), "o1", models.UpdateOrderRequest{Status: &bogus}, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Update(context.Background(), "o1", models.UpdateOrderRequest{TrackingNumber: strPtr(strings.Repeat("x", 101))}, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	order, err := svc.Update(context.Background(), "o1", models.UpdateOrderRequest{Status: &cancelled}, userClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)

	eta := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	order, err = svc.Update(context.Background(), "o1", models.UpdateOrderRequest{Status: &shipped, TrackingNumber: strPtr("  TRK-1 "), EstimatedDelivery: &eta}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	require.NotNil(t, order.TrackingNumber)
	assert.Equal(t, "TRK-1", *order.TrackingNumber)

	order, err = svc.Update(context.Background(), "o1", models.UpdateOrderRequest{TrackingNumber: strPtr("   ")}, adminClaims())
	require.NoError(t, err)
	assert.Nil(t, order.TrackingNumber)
	assert.Len(t, audit.actions(), 3)
}

func TestOrderServiceListScopesByRole(t *testing.T) {
	svc, repo, _, _, _, _, _, _ := newOrderFixture(t)
	repo.orders["o1"] = &models.Order{ID: "o1", UserID: "user-1", Status: models.OrderStatusPending}
	repo.orders["o2"] = &models.Order{ID: "o2", UserID: "user-2", Status: models.OrderStatusShipped}

	orders, page, err := svc.List(context.Background(), models.OrderFilter{}, userClaims("user-1"))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
	assert.Equal(t, 1, page.Total)

	orders, _, err = svc.List(context.Background(), models.OrderFilter{Status: models.OrderStatusShipped}, adminClaims())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o2", orders[0].ID)

	_, _, err = svc.List(context.Background(), models.OrderFilter{Status: "lost"}, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Get(context.Background(), "o2", userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestOrderServiceDeleteReleasesCustomFiles(t *testing.T) {
	svc, repo, _, cfs, files, store, audit, expectTx := newOrderFixture(t)
	ctx := context.Background()
	_, err := store.Save(ctx, "uploads/model/part.stl", strings.NewReader("solid part"), "")
	require.NoError(t, err)
	files.files["file-1"] = &models.File{ID: "file-1", Path: "uploads/model/part.stl", Kind: models.FileKindModel}
	cfs.files["cf-1"] = &models.CustomOrderFile{ID: "cf-1", UserID: "user-1", FileID: "file-1"}
	cfs.byOrder["o1"] = []models.CustomOrderFile{*cfs.files["cf-1"]}
	repo.orders["o1"] = &models.Order{ID: "o1", UserID: "user-1"}

	assert.True(t, errors.Is(svc.Delete(ctx, "o1", userClaims("user-1")), appErrors.ErrForbidden))

	expectTx(true)
	require.NoError(t, svc.Delete(ctx, "o1", adminClaims()))

	assert.Empty(t, repo.orders)
	assert.Equal(t, []string{"cf-1"}, cfs.deleted)
	assert.Equal(t, []string{"file-1"}, files.deleted)
	exists, err := store.Exists(ctx, "uploads/model/part.stl")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{models.AuditActionOrderDelete}, audit.actions())

	expectTx(false)
	assert.True(t, errors.Is(svc.Delete(ctx, "o1", adminClaims()), appErrors.ErrNotFound))
}

func TestOrderServiceDeletePurgesQuoteInvoice(t *testing.T) {
	svc, repo, quotes, cfs, files, store, audit, expectTx := newOrderFixture(t)
	ctx := context.Background()
	_, err := store.Save(ctx, "invoices/q1.pdf", strings.NewReader("%PDF-1.3"), "application/pdf")
	require.NoError(t, err)
	files.files["file-1"] = &models.File{ID: "file-1", Path: "uploads/model/part.stl", Kind: models.FileKindModel}
	cfs.files["cf-1"] = &models.CustomOrderFile{ID: "cf-1", UserID: "user-1", FileID: "file-1"}
	cfs.byOrder["o1"] = []models.CustomOrderFile{*cfs.files["cf-1"]}
	invoice := "invoices/q1.pdf"
	quotes.details["q1"] = &models.QuoteDetail{QuoteRequest: models.QuoteRequest{
		ID: "q1", CustomFileID: "cf-1", UserID: "user-1", Status: models.QuoteStatusAccepted, InvoicePath: &invoice,
	}}
	repo.orders["o1"] = &models.Order{ID: "o1", UserID: "user-1"}

	expectTx(true)
	require.NoError(t, svc.Delete(ctx, "o1", adminClaims()))
	exists, err := store.Exists(ctx, "invoices/q1.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{models.AuditActionOrderDelete}, audit.actions())
}

func TestOrderServiceAdminViewsCarryDownloadURL(t *testing.T) {
	svc, repo, _, _, _, _, _, _ := newOrderFixture(t)
	ctx := context.Background()
	cfID, fileID := "cf-1", "file-1"
	repo.orders["o1"] = &models.Order{ID: "o1", UserID: "user-1", Items: []models.OrderItem{
		{ID: "i1", ProductName: "part.stl", IsCustom: true, CustomFileID: &cfID, FileID: &fileID},
		{ID: "i2", ProductName: "Vase"},
	}}

	order, err := svc.Get(ctx, "o1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "/api/admin/files/file-1/download", order.Items[0].DownloadURL)
	assert.Empty(t, order.Items[1].DownloadURL)

	orders, _, err := svc.List(ctx, models.OrderFilter{}, adminClaims())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "/api/admin/files/file-1/download", orders[0].Items[0].DownloadURL)

	order, err = svc.Get(ctx, "o1", userClaims("user-1"))
	require.NoError(t, err)
	assert.Empty(t, order.Items[0].DownloadURL)

	orders, _, err = svc.List(ctx, models.OrderFilter{}, userClaims("user-1"))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].Items[0].DownloadURL)
}

func TestOrderServiceDeleteKeepsSharedFile(t *testing.T) {
	svc, repo, _, cfs, files, store, _, expectTx := newOrderFixture(t)
	ctx := context.Background()
	_, err := store.Save(ctx, "uploads/model/shared.stl", strings.NewReader("solid"), "")
	require.NoError(t, err)
	files.files["file-1"] = &models.File{ID: "file-1", Path: "uploads/model/shared.stl"}
	files.refs["file-1"] = models.FileReferences{CustomFiles: 1}
	cfs.byOrder["o1"] = []models.CustomOrderFile{{ID: "cf-1", FileID: "file-1"}}
	repo.orders["o1"] = &models.Order{ID: "o1", UserID: "user-1"}

	expectTx(true)
	require.NoError(t, svc.Delete(ctx, "o1", adminClaims()))
	assert.Empty(t, files.deleted)
	exists, err := store.Exists(ctx, "uploads/model/shared.stl")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOrderServiceExport(t *testing.T) {
	svc, repo, _, _, _, _, _, _ := newOrderFixture(t)
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	repo.exports = []models.OrderExportRow{{
		Order:     models.Order{ID: "o1", Status: models.OrderStatusShipped, Subtotal: 45, Shipping: 5, Total: 50, TrackingNumber: strPtr("TRK-1"), CreatedAt: created},
		UserEmail: "=cmd@evil.test",
		ItemCount: 1,
	}}

	var buf bytes.Buffer
	assert.True(t, errors.Is(svc.Export(context.Background(), models.OrderFilter{}, userClaims("user-1"), &buf), appErrors.ErrForbidden))

	require.NoError(t, svc.Export(context.Background(), models.OrderFilter{}, adminClaims(), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,created_at,customer_email,status,items,subtotal,shipping,tax,total,tracking_number", lines[0])
	assert.Equal(t, "o1,2026-02-03T04:05:06Z,'=cmd@evil.test,shipped,1,45.00,5.00,0.00,50.00,TRK-1", lines[1])
}
