package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/pkg/jobs"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type auditLoggerStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (a *auditLoggerStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

func (a *auditLoggerStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type cleanupQueueStub struct {
	jobs []jobs.Job
	err  error
}

func (c *cleanupQueueStub) Enqueue(job jobs.Job) error {
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, job)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Email: "admin@fabnest.test", Role: models.RoleAdmin}
}

func userClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Email: id + "@fabnest.test", Role: models.RoleUser}
}

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }
