package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

const usersEmailKey = "users_email_key"

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	Count(ctx context.Context, filter models.UserFilter) (int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CountAdminsForUpdate(ctx context.Context, exec sqlx.ExtContext) (int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type userFileLister interface {
	FileIDsByUser(ctx context.Context, exec sqlx.ExtContext, userID string) ([]string, error)
}

type userInvoiceLister interface {
	InvoicePathsByUser(ctx context.Context, exec sqlx.ExtContext, userID string) ([]string, error)
}

// UserService handles admin account management.
type UserService struct {
	repo      userRepository
	custom    userFileLister
	invoices  userInvoiceLister
	releaser  fileReleaser
	tx        txProvider
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, custom userFileLister, invoices userInvoiceLister, releaser fileReleaser, tx txProvider, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{
		repo:      repo,
		custom:    custom,
		invoices:  invoices,
		releaser:  releaser,
		tx:        tx,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter, actor *models.JWTClaims) ([]models.User, *models.Pagination, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, nil, err
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Page = filter.Page.Normalized(models.DefaultPageLimit)

	var (
		users []models.User
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.repo.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Total: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

// Update edits email, name, role or password. Demoting the caller or the
// last admin is refused.
func (s *UserService) Update(ctx context.Context, id string, req models.UpdateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.Email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &normalized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	demoting := req.Role != nil && *req.Role == models.RoleUser && user.Role == models.RoleAdmin
	if demoting && user.ID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot remove your own admin role")
	}

	if req.Email != nil && *req.Email != user.Email {
		existing, err := s.repo.FindByEmail(ctx, *req.Email)
		if err == nil && existing.ID != user.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to check email")
		}
		user.Email = *req.Email
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if demoting {
			admins, err := s.repo.CountAdminsForUpdate(ctx, tx)
			if err != nil {
				return appErrors.Internal(err, "failed to count admins")
			}
			if admins <= 1 {
				return appErrors.Clone(appErrors.ErrConflict, "cannot remove admin role from the last admin user")
			}
		}
		if err := s.repo.Update(ctx, tx, user); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			case appErrors.IsUniqueViolation(err, usersEmailKey):
				return appErrors.Clone(appErrors.ErrConflict, "email already registered")
			}
			return appErrors.Internal(err, "failed to update user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role, "passwordChanged": req.Password != nil})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  payload,
	})
	return user, nil
}

// Delete removes the account together with its quotes, orders and every
// uploaded model file nothing else references.
func (s *UserService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.ID == actor.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}

	var (
		released []models.File
		invoices []string
	)
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if user.Role == models.RoleAdmin {
			admins, err := s.repo.CountAdminsForUpdate(ctx, tx)
			if err != nil {
				return appErrors.Internal(err, "failed to count admins")
			}
			if admins <= 1 {
				return appErrors.Clone(appErrors.ErrConflict, "cannot delete the last admin user")
			}
		}
		fileIDs, err := s.custom.FileIDsByUser(ctx, tx, user.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to list user files")
		}
		invoices, err = s.invoices.InvoicePathsByUser(ctx, tx, user.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to list user invoices")
		}
		if err := s.repo.Delete(ctx, tx, user.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return appErrors.Internal(err, "failed to delete user")
		}
		released, err = s.releaser.ReleaseWithin(ctx, tx, fileIDs)
		return err
	})
	if err != nil {
		return err
	}
	s.releaser.PurgeBytes(ctx, append(released, invoiceFiles(invoices)...))

	payload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "filesRemoved": len(released), "invoicesRemoved": len(invoices)})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  payload,
	})
	return nil
}

// EnsureAdmin creates an admin account or promotes an existing one and
// resets its password. Used by the operator CLI.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, name string) (*models.User, error) {
	req := models.RegisterRequest{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
		Name:     strings.TrimSpace(name),
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin credentials")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		user.Role = models.RoleAdmin
		user.PasswordHash = string(hash)
		if req.Name != "" {
			user.Name = req.Name
		}
		if err := s.repo.Update(ctx, nil, user); err != nil {
			return nil, appErrors.Internal(err, "failed to promote user")
		}
		s.logger.Info("promoted existing user to admin", zap.String("user_id", user.ID))
	case errors.Is(err, sql.ErrNoRows):
		user = &models.User{Email: req.Email, PasswordHash: string(hash), Name: req.Name, Role: models.RoleAdmin}
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, appErrors.Internal(err, "failed to create admin")
		}
		s.logger.Info("created admin user", zap.String("user_id", user.ID))
	default:
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}
