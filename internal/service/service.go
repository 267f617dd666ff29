package service

import (
	"context"
	"database/sql"
	"math"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// withTx runs fn inside a transaction, committing only when fn succeeds.
func withTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit transaction")
	}
	return nil
}

func requireActor(actor *models.JWTClaims) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}

func requireAdmin(actor *models.JWTClaims) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return appErrors.ErrForbidden
	}
	return nil
}

// roundMoney rounds to cents.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, log *models.AuditLog) {
	if audit == nil || log == nil {
		return
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func adminDownloadURL(apiPrefix, fileID string) string {
	if fileID == "" {
		return ""
	}
	return apiPrefix + "/admin/files/" + fileID + "/download"
}

// invoiceFiles wraps stored invoice keys so they can go through PurgeBytes.
func invoiceFiles(paths []string) []models.File {
	files := make([]models.File, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			files = append(files, models.File{Path: p})
		}
	}
	return files
}
