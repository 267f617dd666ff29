package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/jobs"
	"github.com/noah-isme/fabnest-api/pkg/storage"
)

type fileRepoStub struct {
	files     map[string]*models.File
	refs      map[string]models.FileReferences
	createErr error
	deleted   []string
	stale     []models.File
}

func newFileRepoStub() *fileRepoStub {
	return &fileRepoStub{files: map[string]*models.File{}, refs: map[string]models.FileReferences{}}
}

func (r *fileRepoStub) Create(ctx context.Context, file *models.File) error {
	if r.createErr != nil {
		return r.createErr
	}
	file.ID = "file-" + filepath.Base(file.Path)
	file.CreatedAt = time.Now()
	r.files[file.ID] = file
	return nil
}

func (r *fileRepoStub) GetByID(ctx context.Context, id string) (*models.File, error) {
	if f, ok := r.files[id]; ok {
		return f, nil
	}
	return nil, sql.ErrNoRows
}

func (r *fileRepoStub) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.File, error) {
	return r.GetByID(ctx, id)
}

func (r *fileRepoStub) CountReferences(ctx context.Context, exec sqlx.ExtContext, id string) (models.FileReferences, error) {
	return r.refs[id], nil
}

func (r *fileRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(r.files, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fileRepoStub) ListUnreferenced(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	return r.stale, nil
}

type failingDeleteStore struct {
	storage.Store
}

func (failingDeleteStore) Delete(ctx context.Context, key string) error {
	return errors.New("disk busy")
}

func newFileServiceFixture(t *testing.T, maxBytes int64) (*FileService, *fileRepoStub, *storage.LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	repo := newFileRepoStub()
	svc := NewFileService(repo, store, nil, nil, nil, FileServiceConfig{MaxUploadBytes: maxBytes})
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, repo, store, dir
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			out = append(out, p)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestFileServiceUploadStoresWrittenSize(t *testing.T) {
	svc, repo, store, _ := newFileServiceFixture(t, 1024)

	file, err := svc.Upload(context.Background(), FileUpload{
		Filename: "Benchy.STL",
		Content:  strings.NewReader("solid benchy"),
		Kind:     models.FileKindModel,
	}, userClaims("user-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(len("solid benchy")), file.Size)
	assert.True(t, strings.HasPrefix(file.Path, "uploads/model/1700000000000-"))
	assert.True(t, strings.HasSuffix(file.Path, ".stl"))
	assert.Equal(t, "/"+file.Path, file.URL)
	assert.Equal(t, "Benchy.STL", file.OriginalName)
	require.NotNil(t, file.UploadedBy)
	assert.Equal(t, "user-1", *file.UploadedBy)
	assert.Contains(t, repo.files, file.ID)

	ok, err := store.Exists(context.Background(), file.Path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileServiceUploadImageDestinations(t *testing.T) {
	svc, _, _, _ := newFileServiceFixture(t, 1024)
	png := "\x89PNG\r\n\x1a\n0000"

	file, err := svc.Upload(context.Background(), FileUpload{
		Filename:    "cover.png",
		Content:     strings.NewReader(png),
		Kind:        models.FileKindImage,
		Destination: "products",
	}, adminClaims())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(file.Path, "products/"))
	assert.Equal(t, "image/png", file.MimeType)

	_, err = svc.Upload(context.Background(), FileUpload{
		Filename:    "cover.png",
		Content:     strings.NewReader(png),
		Kind:        models.FileKindImage,
		Destination: "gallery",
	}, userClaims("user-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	file, err = svc.Upload(context.Background(), FileUpload{
		Filename: "reference.webp",
		Content:  strings.NewReader("RIFF0000WEBP"),
		Kind:     models.FileKindImage,
	}, userClaims("user-1"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(file.Path, "uploads/image/"))
}

func TestFileServiceUploadRejectsInvalidInput(t *testing.T) {
	svc, repo, _, dir := newFileServiceFixture(t, 8)

	cases := []struct {
		name   string
		upload FileUpload
	}{
		{"unknown kind", FileUpload{Filename: "a.stl", Content: strings.NewReader("x"), Kind: "video"}},
		{"bad model extension", FileUpload{Filename: "payload.exe", Content: strings.NewReader("x"), Kind: models.FileKindModel}},
		{"bad image type", FileUpload{Filename: "doc.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF"), Kind: models.FileKindImage}},
		{"no extension", FileUpload{Filename: "model", Content: strings.NewReader("x"), Kind: models.FileKindModel}},
		{"symbols only extension", FileUpload{Filename: "model.$$", Content: strings.NewReader("x"), Kind: models.FileKindModel}},
		{"empty", FileUpload{Filename: "empty.stl", Content: strings.NewReader(""), Kind: models.FileKindModel}},
		{"too large", FileUpload{Filename: "big.stl", Content: strings.NewReader("123456789"), Kind: models.FileKindModel}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tc.upload, userClaims("user-1"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation), "got %v", err)
		})
	}
	assert.Empty(t, repo.files)
	assert.Empty(t, storedFiles(t, dir))
}

func TestFileServiceUploadRequiresActor(t *testing.T) {
	svc, _, _, _ := newFileServiceFixture(t, 8)
	_, err := svc.Upload(context.Background(), FileUpload{Filename: "a.stl", Content: strings.NewReader("x"), Kind: models.FileKindModel}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestFileServiceUploadRemovesBytesWhenInsertFails(t *testing.T) {
	svc, repo, _, dir := newFileServiceFixture(t, 1024)
	repo.createErr = errors.New("db down")

	_, err := svc.Upload(context.Background(), FileUpload{
		Filename: "part.obj",
		Content:  strings.NewReader("v 0 0 0"),
		Kind:     models.FileKindModel,
	}, userClaims("user-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, storedFiles(t, dir))
}

func TestFileServiceGetChecksOwnership(t *testing.T) {
	svc, repo, _, _ := newFileServiceFixture(t, 1024)
	owner := "user-1"
	repo.files["f1"] = &models.File{ID: "f1", Path: "uploads/model/a.stl", UploadedBy: &owner}

	_, err := svc.Get(context.Background(), "f1", userClaims("user-2"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	file, err := svc.Get(context.Background(), "f1", userClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "f1", file.ID)

	_, err = svc.Get(context.Background(), "f1", adminClaims())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "missing", adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestFileServiceDownload(t *testing.T) {
	svc, repo, store, _ := newFileServiceFixture(t, 1024)
	ctx := context.Background()
	_, err := store.Save(ctx, "uploads/model/a.stl", strings.NewReader("solid a"), "")
	require.NoError(t, err)
	repo.files["f1"] = &models.File{ID: "f1", Path: "uploads/model/a.stl", OriginalName: "a.stl", Size: 7}
	repo.files["f2"] = &models.File{ID: "f2", Path: "uploads/model/gone.stl", OriginalName: "gone.stl", Size: 3}

	_, err = svc.Download(ctx, "f1", userClaims("user-1"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	dl, err := svc.Download(ctx, "f1", adminClaims())
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	require.NoError(t, dl.Content.Close())
	assert.Equal(t, "solid a", string(body))
	assert.Equal(t, int64(7), dl.Size)

	_, err = svc.Download(ctx, "f2", adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Download(ctx, "f3", adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestFileServiceReleaseIfUnreferenced(t *testing.T) {
	svc, repo, store, _ := newFileServiceFixture(t, 1024)
	tx, mock := newTxProviderMock(t)
	svc.tx = tx
	ctx := context.Background()

	_, err := store.Save(ctx, "products/shared.png", strings.NewReader("png"), "")
	require.NoError(t, err)
	_, err = store.Save(ctx, "products/unique.png", strings.NewReader("png"), "")
	require.NoError(t, err)
	repo.files["shared"] = &models.File{ID: "shared", Path: "products/shared.png"}
	repo.files["unique"] = &models.File{ID: "unique", Path: "products/unique.png"}
	repo.refs["shared"] = models.FileReferences{GalleryImages: 1}

	mock.ExpectBegin()
	mock.ExpectCommit()
	released, err := svc.ReleaseIfUnreferenced(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, released)

	mock.ExpectBegin()
	mock.ExpectCommit()
	released, err = svc.ReleaseIfUnreferenced(ctx, "unique")
	require.NoError(t, err)
	assert.True(t, released)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"unique"}, repo.deleted)

	exists, err := store.Exists(ctx, "products/shared.png")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.Exists(ctx, "products/unique.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileServicePurgeFailureIsQueued(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	queue := &cleanupQueueStub{}
	svc := NewFileService(newFileRepoStub(), failingDeleteStore{Store: local}, nil, nil, nil, FileServiceConfig{})
	svc.SetCleanupQueue(queue)

	svc.PurgeBytes(context.Background(), []models.File{{ID: "f1", Path: "gallery/a.png"}})

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobKindDeleteObject, queue.jobs[0].Kind)
	assert.Equal(t, "gallery/a.png", queue.jobs[0].Payload)
}

func TestFileServiceHandleCleanupJob(t *testing.T) {
	svc, _, store, _ := newFileServiceFixture(t, 1024)
	ctx := context.Background()
	_, err := store.Save(ctx, "gallery/a.png", strings.NewReader("png"), "")
	require.NoError(t, err)

	require.NoError(t, svc.HandleCleanupJob(ctx, jobs.Job{ID: "j1", Payload: "gallery/a.png"}))
	exists, err := store.Exists(ctx, "gallery/a.png")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, svc.HandleCleanupJob(ctx, jobs.Job{ID: "j2", Payload: 42}))
}

func TestFileServiceSweepOrphans(t *testing.T) {
	svc, repo, _, _ := newFileServiceFixture(t, 1024)
	tx, mock := newTxProviderMock(t)
	svc.tx = tx

	repo.files["old"] = &models.File{ID: "old", Path: "uploads/model/old.stl"}
	repo.files["claimed"] = &models.File{ID: "claimed", Path: "uploads/model/claimed.stl"}
	repo.refs["claimed"] = models.FileReferences{CustomFiles: 1}
	repo.stale = []models.File{*repo.files["old"], *repo.files["claimed"]}

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	removed, err := svc.SweepOrphans(context.Background(), 24*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"old"}, repo.deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeExtension(t *testing.T) {
	assert.Equal(t, "stl", sanitizeExtension("a.STL"))
	assert.Equal(t, "3mf", sanitizeExtension("plate.3mf"))
	assert.Equal(t, "png", sanitizeExtension("x.p-n_g"))
	assert.Equal(t, "", sanitizeExtension("noext"))
	assert.Equal(t, "", sanitizeExtension("trailing."))
}
