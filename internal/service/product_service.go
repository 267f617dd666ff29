package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

type productRepository interface {
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	Count(ctx context.Context, filter models.ProductFilter) (int, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error
	Update(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ImageFileIDs(ctx context.Context, exec sqlx.ExtContext, productID string) ([]string, error)
	SetPrimaryImage(ctx context.Context, exec sqlx.ExtContext, productID, fileID string) error
}

type catalogPage[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// ProductService manages the public catalog.
type ProductService struct {
	repo     productRepository
	files    fileLookup
	releaser fileReleaser
	cache    *CacheService
	tx       txProvider
	audit    auditLogger
	validate *validator.Validate
	logger   *zap.Logger
}

// NewProductService constructs the service with defaults.
func NewProductService(repo productRepository, files fileLookup, releaser fileReleaser, cache *CacheService, tx txProvider, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *ProductService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		repo:     repo,
		files:    files,
		releaser: releaser,
		cache:    cache,
		tx:       tx,
		audit:    audit,
		validate: validate,
		logger:   logger,
	}
}

// List returns one page of products, newest first.
func (s *ProductService) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, *models.Pagination, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Page = filter.Page.Normalized(models.MaxPageLimit)

	key := catalogKey("products", "list", "category="+filter.Category, "q="+filter.Search, fmt.Sprintf("limit=%d", filter.Limit), fmt.Sprintf("offset=%d", filter.Offset))
	var page catalogPage[models.Product]
	err := s.cache.Remember(ctx, key, &page, func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			page.Items, err = s.repo.List(gctx, filter)
			return err
		})
		g.Go(func() error {
			var err error
			page.Total, err = s.repo.Count(gctx, filter)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list products")
	}
	return page.Items, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Total: page.Total}, nil
}

// Get returns one product with its images.
func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.cache.Remember(ctx, catalogKey("product", id), &product, func() error {
		found, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		product = *found
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Internal(err, "failed to load product")
	}
	return &product, nil
}

// Create adds a product, optionally with a primary image.
func (s *ProductService) Create(ctx context.Context, req models.CreateProductRequest, actor *models.JWTClaims) (*models.Product, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid product payload")
	}
	if req.ImageFileID != nil {
		if err := checkImageFile(ctx, s.files, *req.ImageFileID); err != nil {
			return nil, err
		}
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   roundMoney(req.BasePrice),
		Category:    req.Category,
		Tags:        normalizeTags(req.Tags),
		PrintTime:   trimmedOrNil(req.PrintTime),
	}
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, product); err != nil {
			return appErrors.Internal(err, "failed to create product")
		}
		if req.ImageFileID != nil {
			if err := s.repo.SetPrimaryImage(ctx, tx, product.ID, *req.ImageFileID); err != nil {
				return appErrors.Internal(err, "failed to link product image")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, actor, product.ID, "create")
	return s.reload(ctx, product.ID)
}

// Update changes only the fields present in req.
func (s *ProductService) Update(ctx context.Context, id string, req models.UpdateProductRequest, actor *models.JWTClaims) (*models.Product, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid product payload")
	}
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Internal(err, "failed to load product")
	}
	if req.ImageFileID != nil {
		if err := checkImageFile(ctx, s.files, *req.ImageFileID); err != nil {
			return nil, err
		}
	}

	if req.Name != nil {
		if product.Name = strings.TrimSpace(*req.Name); product.Name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
		}
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.BasePrice != nil {
		product.BasePrice = roundMoney(*req.BasePrice)
	}
	if req.Category != nil {
		if product.Category = strings.TrimSpace(*req.Category); product.Category == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "category must not be empty")
		}
	}
	if req.Tags != nil {
		product.Tags = normalizeTags(req.Tags)
	}
	if req.PrintTime != nil {
		product.PrintTime = trimmedOrNil(req.PrintTime)
	}

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Update(ctx, tx, product); err != nil {
			return appErrors.Internal(err, "failed to update product")
		}
		if req.ImageFileID != nil {
			if err := s.repo.SetPrimaryImage(ctx, tx, product.ID, *req.ImageFileID); err != nil {
				return appErrors.Internal(err, "failed to set primary image")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, actor, product.ID, "update")
	return s.reload(ctx, product.ID)
}

// Delete removes a product and every image file nothing else shows.
func (s *ProductService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	var released []models.File
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		exists, err := s.repo.Exists(ctx, tx, id)
		if err != nil {
			return appErrors.Internal(err, "failed to load product")
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		fileIDs, err := s.repo.ImageFileIDs(ctx, tx, id)
		if err != nil {
			return appErrors.Internal(err, "failed to load product images")
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return appErrors.Internal(err, "failed to delete product")
		}
		released, err = s.releaser.ReleaseWithin(ctx, tx, fileIDs)
		return err
	})
	if err != nil {
		return err
	}
	s.releaser.PurgeBytes(ctx, released)
	s.afterWrite(ctx, actor, id, "delete")
	return nil
}

func (s *ProductService) reload(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load product")
	}
	return product, nil
}

func (s *ProductService) afterWrite(ctx context.Context, actor *models.JWTClaims, id, op string) {
	s.cache.InvalidateCatalog(ctx)
	resourceID := id
	payload, _ := json.Marshal(map[string]string{"op": op})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionProductWrite,
		Resource:   "product",
		ResourceID: &resourceID,
		NewValues:  payload,
	})
}

// checkImageFile requires fileID to be an uploaded image.
func checkImageFile(ctx context.Context, files fileLookup, fileID string) error {
	file, err := files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "image file not found")
		}
		return appErrors.Internal(err, "failed to load image file")
	}
	if file.Kind != models.FileKindImage {
		return appErrors.Clone(appErrors.ErrValidation, "file is not an image")
	}
	return nil
}

func normalizeTags(tags []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
