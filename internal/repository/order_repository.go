package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fabnest-api/internal/models"
)

const orderColumns = `o.id, o.user_id, o.status, o.subtotal, o.shipping, o.tax, o.total, o.tracking_number, o.estimated_delivery, o.created_at, o.updated_at`

const orderItemSelect = `SELECT oi.id, oi.order_id, oi.product_id, oi.product_name, oi.material, oi.size, oi.quantity,
	oi.unit_price, oi.total_price, oi.is_custom, oi.position, cf.id AS custom_file_id,
	cf.file_id, f.original_name AS file_name
FROM order_items oi
LEFT JOIN custom_order_files cf ON cf.order_item_id = oi.id
LEFT JOIN files f ON f.id = cf.file_id`

// OrderRepository persists orders and their items.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts the order and every item in order. Item IDs are assigned
// before insert so callers can link custom files to them.
func (r *OrderRepository) Create(ctx context.Context, exec sqlx.ExtContext, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	target := r.exec(exec)
	const orderQuery = `INSERT INTO orders (id, user_id, status, subtotal, shipping, tax, total, tracking_number, estimated_delivery, created_at, updated_at)
VALUES (:id, :user_id, :status, :subtotal, :shipping, :tax, :total, :tracking_number, :estimated_delivery, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, orderQuery, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	const itemQuery = `INSERT INTO order_items (id, order_id, product_id, product_name, material, size, quantity, unit_price, total_price, is_custom, position)
VALUES (:id, :order_id, :product_id, :product_name, :material, :size, :quantity, :unit_price, :total_price, :is_custom, :position)`
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.OrderID = order.ID
		item.Position = i
		if _, err := sqlx.NamedExecContext(ctx, target, itemQuery, item); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	orders := []models.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = make([]models.OrderItem, 0)
	}

	var items []models.OrderItem
	query := orderItemSelect + ` WHERE oi.order_id = ANY($1) ORDER BY oi.order_id, oi.position`
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	for _, item := range items {
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return nil
}

func buildOrderFilter(filter models.OrderFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND o.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND o.status = $%d", len(args))
	}
	return where, args
}

// List returns one page of orders with items, newest first.
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	where, args := buildOrderFilter(filter)
	page := filter.Page.Normalized(models.DefaultPageLimit)
	query := fmt.Sprintf("SELECT %s FROM orders o%s ORDER BY o.created_at DESC LIMIT %d OFFSET %d", orderColumns, where, page.Limit, page.Offset)
	orders := make([]models.Order, 0)
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Count returns the number of orders matching filter.
func (r *OrderRepository) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	where, args := buildOrderFilter(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders o`+where, args...); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}

// ListForExport returns every order matching filter with its customer email
// and item count. Paging is ignored.
func (r *OrderRepository) ListForExport(ctx context.Context, filter models.OrderFilter) ([]models.OrderExportRow, error) {
	where, args := buildOrderFilter(filter)
	query := `SELECT ` + orderColumns + `, u.email AS user_email,
	(SELECT COUNT(*) FROM order_items oi WHERE oi.order_id = o.id) AS item_count
FROM orders o
JOIN users u ON u.id = o.user_id` + where + ` ORDER BY o.created_at DESC`
	rows := make([]models.OrderExportRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list orders for export: %w", err)
	}
	return rows, nil
}

// Update persists status and fulfilment details.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = time.Now().UTC()
	const query = `UPDATE orders SET status = :status, tracking_number = :tracking_number, estimated_delivery = :estimated_delivery, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// Delete removes the order. Items cascade.
func (r *OrderRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
