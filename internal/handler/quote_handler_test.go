package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

type quoteServiceStub struct {
	lastFilter models.QuoteFilter
	lastUpdate models.UpdateQuoteRequest
	err        error
}

func (s *quoteServiceStub) Create(_ context.Context, req models.CreateQuoteRequest, actor *models.JWTClaims) (*models.QuoteRequest, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.QuoteRequest{ID: "quote-1", UserID: actor.UserID, CustomFileID: req.CustomFileID, Status: models.QuoteStatusPending}, nil
}

func (s *quoteServiceStub) List(_ context.Context, filter models.QuoteFilter, _ *models.JWTClaims) ([]models.QuoteDetail, *models.Pagination, error) {
	s.lastFilter = filter
	return nil, &models.Pagination{Limit: 50}, s.err
}

func (s *quoteServiceStub) Get(_ context.Context, id string, _ *models.JWTClaims) (*models.QuoteDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.QuoteDetail{QuoteRequest: models.QuoteRequest{ID: id}}, nil
}

func (s *quoteServiceStub) Update(_ context.Context, id string, req models.UpdateQuoteRequest, _ *models.JWTClaims) (*models.QuoteDetail, error) {
	s.lastUpdate = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.QuoteDetail{QuoteRequest: models.QuoteRequest{ID: id, Status: models.QuoteStatusQuoted}}, nil
}

func (s *quoteServiceStub) Delete(context.Context, string, *models.JWTClaims) error {
	return s.err
}

type quoteConverterStub struct {
	lastID  string
	lastReq models.CreateOrderFromQuoteRequest
	err     error
}

func (s *quoteConverterStub) CreateFromQuote(_ context.Context, quoteID string, req models.CreateOrderFromQuoteRequest, actor *models.JWTClaims) (*models.Order, error) {
	s.lastID = quoteID
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: "order-1", UserID: actor.UserID}, nil
}

func TestQuoteHandlerCreate(t *testing.T) {
	h := NewQuoteHandler(&quoteServiceStub{}, &quoteConverterStub{})
	body := map[string]string{"customFileId": "5f0c6d8e-3c51-4b7e-9f0e-0e3b8f6f2a11"}
	c, rec := newTestContext(http.MethodPost, "/quote-requests", body, customerClaims())
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"quoteRequest"`)
}

func TestQuoteHandlerCreateDuplicate(t *testing.T) {
	h := NewQuoteHandler(&quoteServiceStub{err: appErrors.ErrQuoteExists}, &quoteConverterStub{})
	body := map[string]string{"customFileId": "5f0c6d8e-3c51-4b7e-9f0e-0e3b8f6f2a11"}
	c, rec := newTestContext(http.MethodPost, "/quote-requests", body, customerClaims())
	h.Create(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "QUOTE_EXISTS", decodeEnvelope(t, rec).Error.Code)
}

func TestQuoteHandlerListFilter(t *testing.T) {
	svc := &quoteServiceStub{}
	h := NewQuoteHandler(svc, &quoteConverterStub{})
	c, rec := newTestContext(http.MethodGet, "/quote-requests?status=quoted&limit=5", nil, adminClaims())
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.QuoteStatusQuoted, svc.lastFilter.Status)
	assert.Equal(t, 5, svc.lastFilter.Limit)
}

func TestQuoteHandlerUpdate(t *testing.T) {
	svc := &quoteServiceStub{}
	h := NewQuoteHandler(svc, &quoteConverterStub{})
	c, rec := newTestContext(http.MethodPut, "/quote-requests/quote-1", map[string]interface{}{"requestedPrice": 42.5}, adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "quote-1"}}
	h.Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastUpdate.RequestedPrice)
	assert.InDelta(t, 42.5, *svc.lastUpdate.RequestedPrice, 0.001)
}

func TestQuoteHandlerCreateOrderWithoutBody(t *testing.T) {
	orders := &quoteConverterStub{}
	h := NewQuoteHandler(&quoteServiceStub{}, orders)
	c, rec := newTestContext(http.MethodPost, "/quote-requests/quote-1/create-order", nil, customerClaims())
	c.Params = gin.Params{{Key: "id", Value: "quote-1"}}
	h.CreateOrder(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "quote-1", orders.lastID)
	assert.Nil(t, orders.lastReq.Shipping)
	assert.Contains(t, rec.Body.String(), `"order"`)
}

func TestQuoteHandlerCreateOrderWithCharges(t *testing.T) {
	orders := &quoteConverterStub{}
	h := NewQuoteHandler(&quoteServiceStub{}, orders)
	c, rec := newTestContext(http.MethodPost, "/quote-requests/quote-1/create-order", map[string]float64{"shipping": 4, "tax": 1.5}, customerClaims())
	c.Params = gin.Params{{Key: "id", Value: "quote-1"}}
	h.CreateOrder(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, orders.lastReq.Shipping)
	assert.InDelta(t, 4.0, *orders.lastReq.Shipping, 0.001)
	require.NotNil(t, orders.lastReq.Tax)
}

func TestQuoteHandlerCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		claims *models.JWTClaims
		err    error
		status int
	}{
		{"anonymous", nil, nil, http.StatusUnauthorized},
		{"already ordered", customerClaims(), appErrors.ErrOrderExists, http.StatusBadRequest},
		{"not owner", adminClaims(), appErrors.ErrForbidden, http.StatusForbidden},
		{"missing", customerClaims(), appErrors.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewQuoteHandler(&quoteServiceStub{}, &quoteConverterStub{err: tc.err})
			c, rec := newTestContext(http.MethodPost, "/quote-requests/q/create-order", nil, tc.claims)
			c.Params = gin.Params{{Key: "id", Value: "q"}}
			h.CreateOrder(c)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
