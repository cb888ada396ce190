package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kwetu-store/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, status, payment_status, total_amount, paid_amount,
	street_address, apartment_suite, city, state, zip_code, delivery_notes, approved,
	payment_session_id, created_at, updated_at`

// FinalizeOrderParams carries what a verified payment session knows about the order.
type FinalizeOrderParams struct {
	UserID        string
	SessionID     string
	PaymentStatus string
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	Address       models.DeliveryAddress
}

// OversoldProduct records a stock decrement that had to be clamped at zero.
type OversoldProduct struct {
	ProductID string
	Requested int
	Available int
}

// FinalizedOrder is the outcome of FinalizeOrder.
type FinalizedOrder struct {
	Order    *models.Order
	Items    []models.OrderItem
	Lines    []models.CartLine
	Oversold []OversoldProduct
	// Created is false when the session had already been turned into an order.
	Created bool
}

// FinalizeOrder turns the user's current cart into an order in one transaction:
// order row, item snapshots, stock decrements and cart clear commit or roll back
// together. A session that already produced an order returns that order unchanged.
func (s *Store) FinalizeOrder(ctx context.Context, p FinalizeOrderParams) (*FinalizedOrder, error) {
	result := &FinalizedOrder{}

	err := s.WithTransaction(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(tx *sqlx.Tx) error {
		existing, err := orderBySession(ctx, tx, p.SessionID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil {
			result.Order = existing
			result.Items, err = orderItems(ctx, tx, existing.ID)
			return err
		}

		var lines []models.CartLine
		err = tx.SelectContext(ctx, &lines, cartLineSelect+`
			WHERE c.user_id = $1
			ORDER BY p.id
			FOR UPDATE OF c, p`, p.UserID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		order := &models.Order{
			ID:               uuid.New().String(),
			UserID:           p.UserID,
			Status:           models.OrderStatusPending,
			PaymentStatus:    p.PaymentStatus,
			TotalAmount:      p.TotalAmount,
			PaidAmount:       p.PaidAmount,
			StreetAddress:    p.Address.StreetAddress,
			ApartmentSuite:   nullable(p.Address.ApartmentSuite),
			City:             p.Address.City,
			State:            p.Address.State,
			ZipCode:          p.Address.ZipCode,
			DeliveryNotes:    nullable(p.Address.DeliveryNotes),
			PaymentSessionID: nullable(p.SessionID),
		}

		rows, err := sqlx.NamedQueryContext(ctx, tx, `
			INSERT INTO orders (id, user_id, status, payment_status, total_amount, paid_amount,
			                    street_address, apartment_suite, city, state, zip_code, delivery_notes,
			                    payment_session_id)
			VALUES (:id, :user_id, :status, :payment_status, :total_amount, :paid_amount,
			        :street_address, :apartment_suite, :city, :state, :zip_code, :delivery_notes,
			        :payment_session_id)
			RETURNING created_at, updated_at`, order)
		if err != nil {
			return fmt.Errorf("insert order: %w", classify(err))
		}
		if rows.Next() {
			err = rows.Scan(&order.CreatedAt, &order.UpdatedAt)
		}
		rows.Close()
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			item := models.OrderItem{
				ID:          uuid.New().String(),
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				ProductName: &line.Product.Name,
				Quantity:    line.Quantity,
				Price:       line.Product.Price,
				WeightKg:    line.Product.WeightKg,
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, quantity, price, weight_kg)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.WeightKg)
			if err != nil {
				return fmt.Errorf("insert order item: %w", classify(err))
			}
			items = append(items, item)
		}

		// Rows are locked, so the stock read with the cart is current.
		for _, line := range lines {
			if line.Product.StockQuantity < line.Quantity {
				result.Oversold = append(result.Oversold, OversoldProduct{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: line.Product.StockQuantity,
				})
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock_quantity = GREATEST(stock_quantity - $1, 0), updated_at = NOW()
				WHERE id = $2`,
				line.Quantity, line.ProductID)
			if err != nil {
				return fmt.Errorf("decrement stock for %s: %w", line.ProductID, classify(err))
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", p.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		result.Order = order
		result.Items = items
		result.Lines = lines
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetOrderBySessionID returns the order created from a payment session.
func (s *Store) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return orderBySession(ctx, s.db, sessionID)
}

func orderBySession(ctx context.Context, q sqlx.QueryerContext, sessionID string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order,
		"SELECT "+orderColumns+" FROM orders WHERE payment_session_id = $1", sessionID)
	if err != nil {
		return nil, classify(err)
	}
	return &order, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, classify(err))
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// ListOrders retrieves every order, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
	return orders, err
}

// CountOrders returns the number of orders ever placed.
func (s *Store) CountOrders(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders")
	return n, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return orderItems(ctx, s.db, orderID)
}

// GetOrderItemsByOrderIDs groups the items of several orders by order id.
func (s *Store) GetOrderItemsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	grouped := make(map[string][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return grouped, nil
	}

	query, args, err := sqlx.In(`
		SELECT i.id, i.order_id, i.product_id, p.name AS product_name, i.quantity, i.price, i.weight_kg
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id IN (?)`, orderIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	for _, item := range items {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}
	return grouped, nil
}

func orderItems(ctx context.Context, q sqlx.QueryerContext, orderID string) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT i.id, i.order_id, i.product_id, p.name AS product_name, i.quantity, i.price, i.weight_kg
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	return items, nil
}

// UpdateOrderStatus sets status (and approved, when non-nil) and returns the previous status.
// The row is locked so the caller's terminal-state check sees the value it replaces.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status string, approved *bool, allow func(current string) error) (*models.Order, string, error) {
	var (
		updated models.Order
		old     string
	)

	err := s.WithTransaction(ctx, nil, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &old, "SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID); err != nil {
			return classify(err)
		}
		if allow != nil {
			if err := allow(old); err != nil {
				return err
			}
		}
		return tx.GetContext(ctx, &updated, `
			UPDATE orders
			SET status = $1, approved = COALESCE($2, approved), updated_at = NOW()
			WHERE id = $3
			RETURNING `+orderColumns, status, approved, orderID)
	})
	if err != nil {
		return nil, "", fmt.Errorf("update order %s: %w", orderID, err)
	}
	return &updated, old, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
