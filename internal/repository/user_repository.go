package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/fabnest-api/internal/models"
)

const userColumns = `id, email, password_hash, name, role, created_at, updated_at`

// UserRepository provides database access for user management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

func buildUserFilter(filter models.UserFilter) (string, []interface{}) {
	where := ` FROM users WHERE 1=1`
	var args []interface{}
	if filter.Role != "" {
		args = append(args, filter.Role)
		where += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where += fmt.Sprintf(" AND (LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d)", len(args), len(args))
	}
	return where, args
}

// List returns one page of users, newest first.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	where, args := buildUserFilter(filter)
	page := filter.Page.Normalized(models.DefaultPageLimit)
	query := fmt.Sprintf("SELECT %s%s ORDER BY created_at DESC LIMIT %d OFFSET %d", userColumns, where, page.Limit, page.Offset)

	users := make([]models.User, 0)
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Count returns the number of users matching filter.
func (r *UserRepository) Count(ctx context.Context, filter models.UserFilter) (int, error) {
	where, args := buildUserFilter(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+where, args...); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

// CountAdminsForUpdate counts admins while locking their rows, so concurrent
// demotions serialise on the same set.
func (r *UserRepository) CountAdminsForUpdate(ctx context.Context, exec sqlx.ExtContext) (int, error) {
	var ids []string
	const query = `SELECT id FROM users WHERE role = 'admin' FOR UPDATE`
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query); err != nil {
		return 0, fmt.Errorf("lock admin users: %w", err)
	}
	return len(ids), nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = strings.ToLower(user.Email)

	const query = `INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at) VALUES (:id, :email, :password_hash, :name, :role, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update persists email, name, role and password hash.
func (r *UserRepository) Update(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	user.Email = strings.ToLower(user.Email)
	const query = `UPDATE users SET email = :email, name = :name, role = :role, password_hash = :password_hash, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, user)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the user. Orders and quotes cascade.
func (r *UserRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if len(log.NewValues) == 0 {
		log.NewValues = types.JSONText(`{}`)
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
