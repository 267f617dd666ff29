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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

type galleryRepository interface {
	List(ctx context.Context, filter models.GalleryFilter) ([]models.GalleryItem, error)
	Count(ctx context.Context, filter models.GalleryFilter) (int, error)
	GetByID(ctx context.Context, id string) (*models.GalleryItem, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.GalleryItem) error
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.GalleryItem) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ImageFileIDs(ctx context.Context, exec sqlx.ExtContext, itemID string) ([]string, error)
	LinkImage(ctx context.Context, exec sqlx.ExtContext, itemID, fileID string) error
}

// GalleryService manages showcase entries.
type GalleryService struct {
	repo     galleryRepository
	files    fileLookup
	releaser fileReleaser
	cache    *CacheService
	tx       txProvider
	audit    auditLogger
	validate *validator.Validate
	logger   *zap.Logger
}

// NewGalleryService constructs the service with defaults.
func NewGalleryService(repo galleryRepository, files fileLookup, releaser fileReleaser, cache *CacheService, tx txProvider, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *GalleryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GalleryService{
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

func (s *GalleryService) List(ctx context.Context, filter models.GalleryFilter) ([]models.GalleryItem, *models.Pagination, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Tag = strings.TrimSpace(filter.Tag)
	filter.Page = filter.Page.Normalized(models.DefaultPageLimit)

	key := catalogKey("gallery", "list", "tag="+filter.Tag, "q="+filter.Search, fmt.Sprintf("limit=%d", filter.Limit), fmt.Sprintf("offset=%d", filter.Offset))
	var page catalogPage[models.GalleryItem]
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
		return nil, nil, appErrors.Internal(err, "failed to list gallery items")
	}
	return page.Items, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Total: page.Total}, nil
}

func (s *GalleryService) Get(ctx context.Context, id string) (*models.GalleryItem, error) {
	var item models.GalleryItem
	err := s.cache.Remember(ctx, catalogKey("gallery", id), &item, func() error {
		found, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		item = *found
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gallery item not found")
		}
		return nil, appErrors.Internal(err, "failed to load gallery item")
	}
	return &item, nil
}

func (s *GalleryService) Create(ctx context.Context, req models.CreateGalleryRequest, actor *models.JWTClaims) (*models.GalleryItem, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid gallery payload")
	}
	if req.ImageFileID != nil {
		if err := checkImageFile(ctx, s.files, *req.ImageFileID); err != nil {
			return nil, err
		}
	}

	item := &models.GalleryItem{
		Title:        req.Title,
		Description:  req.Description,
		CustomerName: trimmedOrNil(req.CustomerName),
		Tags:         normalizeTags(req.Tags),
	}
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, item); err != nil {
			return appErrors.Internal(err, "failed to create gallery item")
		}
		if req.ImageFileID != nil {
			if err := s.repo.LinkImage(ctx, tx, item.ID, *req.ImageFileID); err != nil {
				return appErrors.Internal(err, "failed to link gallery image")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, actor, item.ID, "create")
	return s.reload(ctx, item.ID)
}

// Update changes only the fields present in req. An empty customerName
// clears it and imageFileId links one more image.
func (s *GalleryService) Update(ctx context.Context, id string, req models.UpdateGalleryRequest, actor *models.JWTClaims) (*models.GalleryItem, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid gallery payload")
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gallery item not found")
		}
		return nil, appErrors.Internal(err, "failed to load gallery item")
	}
	if req.ImageFileID != nil {
		if err := checkImageFile(ctx, s.files, *req.ImageFileID); err != nil {
			return nil, err
		}
	}

	if req.Title != nil {
		if item.Title = strings.TrimSpace(*req.Title); item.Title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "title must not be empty")
		}
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.CustomerName != nil {
		item.CustomerName = trimmedOrNil(req.CustomerName)
	}
	if req.Tags != nil {
		item.Tags = normalizeTags(req.Tags)
	}

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Update(ctx, tx, item); err != nil {
			return appErrors.Internal(err, "failed to update gallery item")
		}
		if req.ImageFileID != nil {
			if err := s.repo.LinkImage(ctx, tx, item.ID, *req.ImageFileID); err != nil {
				return appErrors.Internal(err, "failed to link gallery image")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, actor, item.ID, "update")
	return s.reload(ctx, item.ID)
}

// Delete removes the entry and every image file nothing else shows.
func (s *GalleryService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "gallery item not found")
		}
		return appErrors.Internal(err, "failed to load gallery item")
	}

	var released []models.File
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		fileIDs, err := s.repo.ImageFileIDs(ctx, tx, id)
		if err != nil {
			return appErrors.Internal(err, "failed to load gallery images")
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return appErrors.Internal(err, "failed to delete gallery item")
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

func (s *GalleryService) reload(ctx context.Context, id string) (*models.GalleryItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load gallery item")
	}
	return item, nil
}

func (s *GalleryService) afterWrite(ctx context.Context, actor *models.JWTClaims, id, op string) {
	s.cache.InvalidateCatalog(ctx)
	resourceID := id
	payload, _ := json.Marshal(map[string]string{"op": op})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionGalleryWrite,
		Resource:   "gallery_item",
		ResourceID: &resourceID,
		NewValues:  payload,
	})
}
