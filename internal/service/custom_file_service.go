package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

type customFileRepository interface {
	Create(ctx context.Context, cf *models.CustomOrderFile) error
	GetByID(ctx context.Context, id string) (*models.CustomOrderFile, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CustomOrderFile, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.CustomFileStatus) error
	LinkOrderItem(ctx context.Context, exec sqlx.ExtContext, id, orderItemID string) error
	ListByOrder(ctx context.Context, exec sqlx.ExtContext, orderID string) ([]models.CustomOrderFile, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type fileLookup interface {
	GetByID(ctx context.Context, id string) (*models.File, error)
}

// CustomFileService registers uploaded models for custom printing.
type CustomFileService struct {
	repo     customFileRepository
	files    fileLookup
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCustomFileService constructs the service.
func NewCustomFileService(repo customFileRepository, files fileLookup, validate *validator.Validate, logger *zap.Logger) *CustomFileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomFileService{repo: repo, files: files, validate: validate, logger: logger}
}

// Create links an uploaded model file to the caller with print parameters.
func (s *CustomFileService) Create(ctx context.Context, req models.CreateCustomFileRequest, actor *models.JWTClaims) (*models.CustomOrderFile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	req.Material = strings.TrimSpace(req.Material)
	req.Quality = strings.TrimSpace(req.Quality)
	if req.Notes != nil {
		trimmed := strings.TrimSpace(*req.Notes)
		if trimmed == "" {
			req.Notes = nil
		} else {
			req.Notes = &trimmed
		}
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fileId, material and quality are required")
	}

	file, err := s.files.GetByID(ctx, req.FileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Internal(err, "failed to load file")
	}
	if file.Kind != models.FileKindModel {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file must be a 3D model")
	}
	if !actor.IsAdmin() && (file.UploadedBy == nil || *file.UploadedBy != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to use this file")
	}

	cf := &models.CustomOrderFile{
		UserID:   actor.UserID,
		FileID:   file.ID,
		Material: req.Material,
		Quality:  req.Quality,
		Notes:    req.Notes,
		Status:   models.CustomFileStatusPending,
	}
	if err := s.repo.Create(ctx, cf); err != nil {
		return nil, appErrors.Internal(err, "failed to save custom order file")
	}
	s.logger.Info("custom order file created", zap.String("custom_file_id", cf.ID), zap.String("file_id", file.ID), zap.String("user_id", actor.UserID))
	return cf, nil
}

// Get returns a custom file to its owner or an admin.
func (s *CustomFileService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.CustomOrderFile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	cf, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "custom order file not found")
		}
		return nil, appErrors.Internal(err, "failed to load custom order file")
	}
	if !actor.CanAccess(cf.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to access this file")
	}
	return cf, nil
}
