package handler

import (
	"context"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/internal/service"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/response"
)

type fileService interface {
	Upload(ctx context.Context, upload service.FileUpload, actor *models.JWTClaims) (*models.File, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.File, error)
	Download(ctx context.Context, id string, actor *models.JWTClaims) (*service.FileDownload, error)
}

type customFileService interface {
	Create(ctx context.Context, req models.CreateCustomFileRequest, actor *models.JWTClaims) (*models.CustomOrderFile, error)
}

// FileHandler serves uploads, custom order files and admin downloads.
type FileHandler struct {
	files  fileService
	custom customFileService
}

// NewFileHandler constructs the handler.
func NewFileHandler(files fileService, custom customFileService) *FileHandler {
	return &FileHandler{files: files, custom: custom}
}

type uploadedFile struct {
	ID       string          `json:"id"`
	URL      string          `json:"url"`
	Filename string          `json:"filename"`
	Size     int64           `json:"size"`
	FileType models.FileKind `json:"fileType"`
}

// Upload godoc
// @Summary Upload a model or image
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File"
// @Param fileType formData string true "model or image"
// @Param destination formData string false "products, gallery or empty"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /upload [post]
func (h *FileHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no file provided"))
		return
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}
	defer src.Close()

	file, err := h.files.Upload(c.Request.Context(), service.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     src,
		Kind:        models.FileKind(c.PostForm("fileType")),
		Destination: c.PostForm("destination"),
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"file": uploadedFile{
		ID:       file.ID,
		URL:      file.URL,
		Filename: path.Base(file.Path),
		Size:     file.Size,
		FileType: file.Kind,
	}}, nil)
}

// CreateCustomOrder godoc
// @Summary Register an uploaded model for a custom print
// @Tags Files
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateCustomFileRequest true "Custom order file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /upload/custom-order [post]
func (h *FileHandler) CreateCustomOrder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.CreateCustomFileRequest
	if !bindJSON(c, &req) {
		return
	}
	cf, err := h.custom.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"customFile": cf})
}

// Get godoc
// @Summary File metadata
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id} [get]
func (h *FileHandler) Get(c *gin.Context) {
	file, err := h.files.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Download godoc
// @Summary Download an uploaded file
// @Tags Admin
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "File ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /admin/files/{id}/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	dl, err := h.files.Download(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.Content.Close()
	response.Attachment(c, dl.File.OriginalName, dl.File.MimeType, dl.Size, dl.Content)
}
