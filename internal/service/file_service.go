package service

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/jobs"
	"github.com/noah-isme/fabnest-api/pkg/storage"
)

// JobKindDeleteObject removes stored bytes whose metadata row is already gone.
const JobKindDeleteObject = "storage.delete"

const (
	DestinationProducts = "products"
	DestinationGallery  = "gallery"
)

var (
	imageMIMEs      = map[string]struct{}{"image/jpeg": {}, "image/jpg": {}, "image/png": {}, "image/webp": {}}
	imageExtensions = map[string]struct{}{"jpg": {}, "jpeg": {}, "png": {}, "webp": {}}
	modelExtensions = map[string]struct{}{"stl": {}, "obj": {}, "3mf": {}, "rar": {}, "zip": {}}
)

type fileRepository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.File, error)
	CountReferences(ctx context.Context, exec sqlx.ExtContext, id string) (models.FileReferences, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListUnreferenced(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error)
}

type cleanupScheduler interface {
	Enqueue(job jobs.Job) error
}

// FileUpload carries a multipart part and the caller's placement hints.
type FileUpload struct {
	Filename    string
	ContentType string
	Content     io.Reader
	Kind        models.FileKind
	Destination string
}

// FileDownload is an open stream for an admin download.
type FileDownload struct {
	File    *models.File
	Content io.ReadCloser
	Size    int64
}

// FileServiceConfig holds upload limits and URL shaping.
type FileServiceConfig struct {
	MaxUploadBytes  int64
	PublicURLPrefix string
}

// FileService owns uploaded bytes and their metadata rows.
type FileService struct {
	repo    fileRepository
	store   storage.Store
	tx      txProvider
	cleanup cleanupScheduler
	metrics *MetricsService
	logger  *zap.Logger
	cfg     FileServiceConfig
	now     func() time.Time
}

// NewFileService constructs the service with defaults.
func NewFileService(repo fileRepository, store storage.Store, tx txProvider, metrics *MetricsService, logger *zap.Logger, cfg FileServiceConfig) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 * 1024 * 1024
	}
	cfg.PublicURLPrefix = strings.TrimRight(cfg.PublicURLPrefix, "/")
	return &FileService{
		repo:    repo,
		store:   store,
		tx:      tx,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetCleanupQueue attaches the queue used to retry failed byte deletions.
func (s *FileService) SetCleanupQueue(queue cleanupScheduler) {
	s.cleanup = queue
}

// Upload validates and stores a single file, returning its metadata row.
func (s *FileService) Upload(ctx context.Context, upload FileUpload, actor *models.JWTClaims) (*models.File, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !upload.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fileType must be model or image")
	}
	if upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no file uploaded")
	}

	prefix, err := s.destination(upload, actor)
	if err != nil {
		return nil, err
	}

	ext := sanitizeExtension(upload.Filename)
	if ext == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file extension is required")
	}

	content := bufio.NewReader(upload.Content)
	mimeType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if mimeType == "" || mimeType == "application/octet-stream" {
		if head, _ := content.Peek(512); len(head) > 0 {
			mimeType = http.DetectContentType(head)
		}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := checkFileType(upload.Kind, mimeType, ext); err != nil {
		s.metrics.ObserveUpload(string(upload.Kind), false, 0)
		return nil, err
	}

	filename, err := generateFilename(s.now(), ext)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to generate filename")
	}
	key := path.Join(prefix, filename)

	limited := io.LimitReader(content, s.cfg.MaxUploadBytes+1)
	written, err := s.store.Save(ctx, key, limited, mimeType)
	if err != nil {
		s.discard(ctx, key)
		return nil, appErrors.Internal(err, "failed to store file")
	}
	if written == 0 || written > s.cfg.MaxUploadBytes {
		s.discard(ctx, key)
		s.metrics.ObserveUpload(string(upload.Kind), false, 0)
		if written == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxUploadBytes))
	}

	uploader := actor.UserID
	file := &models.File{
		OriginalName: truncateName(path.Base(strings.ReplaceAll(upload.Filename, "\\", "/")), 255),
		Path:         key,
		URL:          s.cfg.PublicURLPrefix + "/" + key,
		MimeType:     mimeType,
		Kind:         upload.Kind,
		Size:         written,
		UploadedBy:   &uploader,
	}
	if err := s.repo.Create(ctx, file); err != nil {
		s.discard(ctx, key)
		return nil, appErrors.Internal(err, "failed to save file metadata")
	}

	s.metrics.ObserveUpload(string(upload.Kind), true, written)
	s.logger.Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("path", key),
		zap.Int64("size", written),
		zap.String("user_id", actor.UserID),
	)
	return file, nil
}

// Get returns file metadata to its uploader or an admin.
func (s *FileService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.File, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	file, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Internal(err, "failed to load file")
	}
	if !actor.IsAdmin() && (file.UploadedBy == nil || *file.UploadedBy != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to access this file")
	}
	return file, nil
}

// Download opens stored bytes for an admin. Missing rows and missing bytes
// both surface as not found.
func (s *FileService) Download(ctx context.Context, id string, actor *models.JWTClaims) (*FileDownload, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	file, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Internal(err, "failed to load file")
	}
	reader, obj, err := s.store.Open(ctx, file.Path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("file bytes missing", zap.String("file_id", file.ID), zap.String("path", file.Path))
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found on server")
		}
		return nil, appErrors.Internal(err, "failed to open file")
	}
	size := file.Size
	if obj != nil && obj.Size > 0 {
		size = obj.Size
	}
	return &FileDownload{File: file, Content: reader, Size: size}, nil
}

// ReleaseWithin deletes the metadata rows of fileIDs that nothing references
// any more, using exec so the caller's transaction holds the row locks. The
// returned files still have bytes on disk; pass them to PurgeBytes after commit.
func (s *FileService) ReleaseWithin(ctx context.Context, exec sqlx.ExtContext, fileIDs []string) ([]models.File, error) {
	seen := make(map[string]struct{}, len(fileIDs))
	released := make([]models.File, 0, len(fileIDs))
	for _, id := range fileIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		file, err := s.repo.GetForUpdate(ctx, exec, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Internal(err, "failed to lock file")
		}
		refs, err := s.repo.CountReferences(ctx, exec, id)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to count file references")
		}
		if refs.Total() > 0 {
			continue
		}
		if err := s.repo.Delete(ctx, exec, id); err != nil {
			return nil, appErrors.Internal(err, "failed to delete file metadata")
		}
		released = append(released, *file)
	}
	return released, nil
}

// ReleaseIfUnreferenced runs ReleaseWithin for one file in its own
// transaction and purges the bytes when the row went away.
func (s *FileService) ReleaseIfUnreferenced(ctx context.Context, fileID string) (bool, error) {
	var released []models.File
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		released, err = s.ReleaseWithin(ctx, tx, []string{fileID})
		return err
	})
	if err != nil {
		return false, err
	}
	s.PurgeBytes(ctx, released)
	return len(released) > 0, nil
}

// PurgeBytes removes stored bytes for released files. Failures are handed to
// the cleanup queue and never fail the caller.
func (s *FileService) PurgeBytes(ctx context.Context, files []models.File) {
	for _, f := range files {
		s.discard(ctx, f.Path)
	}
}

// SweepOrphans releases files older than olderThan that nothing references.
func (s *FileService) SweepOrphans(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	candidates, err := s.repo.ListUnreferenced(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list unreferenced files")
	}
	removed := 0
	for _, f := range candidates {
		ok, err := s.ReleaseIfUnreferenced(ctx, f.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	s.logger.Info("orphan sweep finished", zap.Int("candidates", len(candidates)), zap.Int("removed", removed))
	return removed, nil
}

// HandleCleanupJob is the cleanup queue handler.
func (s *FileService) HandleCleanupJob(ctx context.Context, job jobs.Job) error {
	key, ok := job.Payload.(string)
	if !ok || key == "" {
		s.logger.Warn("dropping malformed cleanup job", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.metrics.RecordFileCleanup("retry")
		return err
	}
	s.metrics.RecordFileCleanup("deleted")
	return nil
}

func (s *FileService) discard(ctx context.Context, key string) {
	err := s.store.Delete(ctx, key)
	if err == nil {
		s.metrics.RecordFileCleanup("deleted")
		return
	}
	s.logger.Warn("failed to delete stored file", zap.String("path", key), zap.Error(err))
	if s.cleanup == nil {
		s.metrics.RecordFileCleanup("failed")
		return
	}
	job := jobs.Job{ID: key, Kind: JobKindDeleteObject, Payload: key}
	if qErr := s.cleanup.Enqueue(job); qErr != nil {
		s.metrics.RecordFileCleanup("failed")
		s.logger.Error("failed to schedule file cleanup", zap.String("path", key), zap.Error(qErr))
		return
	}
	s.metrics.RecordFileCleanup("retry")
}

func (s *FileService) destination(upload FileUpload, actor *models.JWTClaims) (string, error) {
	if upload.Kind == models.FileKindModel {
		return "uploads/model", nil
	}
	switch strings.ToLower(strings.TrimSpace(upload.Destination)) {
	case DestinationProducts:
		if !actor.IsAdmin() {
			return "", appErrors.Clone(appErrors.ErrForbidden, "only admins can upload catalog images")
		}
		return DestinationProducts, nil
	case DestinationGallery:
		if !actor.IsAdmin() {
			return "", appErrors.Clone(appErrors.ErrForbidden, "only admins can upload gallery images")
		}
		return DestinationGallery, nil
	default:
		return "uploads/image", nil
	}
}

func checkFileType(kind models.FileKind, mimeType, ext string) error {
	switch kind {
	case models.FileKindImage:
		if _, ok := imageMIMEs[mimeType]; ok {
			return nil
		}
		if _, ok := imageExtensions[ext]; ok {
			return nil
		}
		return appErrors.Clone(appErrors.ErrValidation, "only JPG, PNG and WEBP images are allowed")
	case models.FileKindModel:
		if _, ok := modelExtensions[ext]; ok {
			return nil
		}
		return appErrors.Clone(appErrors.ErrValidation, "only STL, OBJ, 3MF, RAR and ZIP files are allowed")
	}
	return appErrors.Clone(appErrors.ErrValidation, "fileType must be model or image")
}

func sanitizeExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	raw := strings.ToLower(filename[idx+1:])
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func generateFilename(now time.Time, ext string) (string, error) {
	suffix, err := randomSuffix(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s.%s", now.UnixMilli(), suffix, ext), nil
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	return name[:max]
}
