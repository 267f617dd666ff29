package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

const modelFileID = "6a0b1c2d-3e4f-4a5b-9c6d-7e8f9a0b1c2d"

func newCustomFileFixture() (*CustomFileService, *customFileRepoStub, *fileRepoStub) {
	repo := newCustomFileRepoStub()
	files := newFileRepoStub()
	owner := "user-1"
	files.files[modelFileID] = &models.File{ID: modelFileID, Kind: models.FileKindModel, UploadedBy: &owner}
	files.files[imageFileA] = &models.File{ID: imageFileA, Kind: models.FileKindImage, UploadedBy: &owner}
	return NewCustomFileService(repo, files, nil, nil), repo, files
}

func TestCustomFileServiceCreate(t *testing.T) {
	svc, repo, _ := newCustomFileFixture()

	cf, err := svc.Create(context.Background(), models.CreateCustomFileRequest{
		FileID:   modelFileID,
		Material: " PETG ",
		Quality:  "fine",
		Notes:    strPtr("   "),
	}, userClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "PETG", cf.Material)
	assert.Nil(t, cf.Notes)
	assert.Equal(t, models.CustomFileStatusPending, cf.Status)
	assert.Equal(t, "user-1", cf.UserID)
	require.Len(t, repo.created, 1)

	// Admins may register any uploaded model.
	_, err = svc.Create(context.Background(), models.CreateCustomFileRequest{FileID: modelFileID, Material: "PLA", Quality: "draft"}, adminClaims())
	require.NoError(t, err)
}

func TestCustomFileServiceCreateRejections(t *testing.T) {
	svc, repo, _ := newCustomFileFixture()
	ctx := context.Background()

	cases := []struct {
		name  string
		req   models.CreateCustomFileRequest
		actor *models.JWTClaims
		want  *appErrors.Error
	}{
		{"anonymous", models.CreateCustomFileRequest{FileID: modelFileID, Material: "PLA", Quality: "fine"}, nil, appErrors.ErrUnauthorized},
		{"blank material", models.CreateCustomFileRequest{FileID: modelFileID, Material: "  ", Quality: "fine"}, userClaims("user-1"), appErrors.ErrValidation},
		{"missing file", models.CreateCustomFileRequest{FileID: "00000000-0000-4000-8000-000000000000", Material: "PLA", Quality: "fine"}, userClaims("user-1"), appErrors.ErrNotFound},
		{"image file", models.CreateCustomFileRequest{FileID: imageFileA, Material: "PLA", Quality: "fine"}, userClaims("user-1"), appErrors.ErrValidation},
		{"someone else's file", models.CreateCustomFileRequest{FileID: modelFileID, Material: "PLA", Quality: "fine"}, userClaims("user-2"), appErrors.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req, tc.actor)
			assert.True(t, errors.Is(err, tc.want), err)
		})
	}
	assert.Empty(t, repo.created)
}

func TestCustomFileServiceGet(t *testing.T) {
	svc, repo, _ := newCustomFileFixture()
	repo.files["cf-1"] = &models.CustomOrderFile{ID: "cf-1", UserID: "user-1", FileID: modelFileID}

	cf, err := svc.Get(context.Background(), "cf-1", userClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, modelFileID, cf.FileID)

	_, err = svc.Get(context.Background(), "cf-1", userClaims("user-2"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.Get(context.Background(), "cf-1", adminClaims())
	assert.NoError(t, err)
	_, err = svc.Get(context.Background(), "cf-9", adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
