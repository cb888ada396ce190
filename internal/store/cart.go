package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kwetu-store/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const cartLineSelect = `
	SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at,
	       p.id AS "product.id", p.name AS "product.name", p.description AS "product.description",
	       p.price AS "product.price", p.weight_kg AS "product.weight_kg",
	       p.stock_quantity AS "product.stock_quantity", p.category AS "product.category",
	       p.image_url AS "product.image_url", p.youtube_link AS "product.youtube_link",
	       p.created_at AS "product.created_at", p.updated_at AS "product.updated_at"
	FROM cart_items c
	JOIN products p ON p.id = c.product_id`

// GetCartLines returns the user's cart joined with live product rows.
func (s *Store) GetCartLines(ctx context.Context, userID string) ([]models.CartLine, error) {
	lines := []models.CartLine{}
	err := s.db.SelectContext(ctx, &lines, cartLineSelect+`
		WHERE c.user_id = $1
		ORDER BY c.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return lines, nil
}

// GetCartLine returns one of the user's cart lines.
func (s *Store) GetCartLine(ctx context.Context, userID, itemID string) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.GetContext(ctx, &line, cartLineSelect+`
		WHERE c.user_id = $1 AND c.id = $2`, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get cart item %s: %w", itemID, classify(err))
	}
	return &line, nil
}

// AddToCart inserts a (user, product) pair or increments an existing one. The
// resulting quantity is checked against stock while holding the product row, so
// concurrent first inserts of the same pair are serialized.
func (s *Store) AddToCart(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error) {
	var item models.CartItem

	err := s.WithTransaction(ctx, nil, func(tx *sqlx.Tx) error {
		var stock int
		err := tx.GetContext(ctx, &stock,
			"SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE", productID)
		if err != nil {
			return classify(err)
		}
		if stock == 0 {
			return ErrOutOfStock
		}

		var existing int
		err = tx.GetContext(ctx, &existing,
			"SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2 FOR UPDATE",
			userID, productID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if existing+quantity > stock {
			return ErrInsufficientStock
		}

		return tx.GetContext(ctx, &item, `
			INSERT INTO cart_items (id, user_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING id, user_id, product_id, quantity, created_at`,
			uuid.New().String(), userID, productID, quantity)
	})
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", classify(err))
	}
	return &item, nil
}

// UpdateCartQuantity sets an absolute quantity on one of the user's cart lines.
func (s *Store) UpdateCartQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2 AND user_id = $3",
		quantity, itemID, userID)
	if err != nil {
		return fmt.Errorf("update cart item %s: %w", itemID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update cart item %s: %w", itemID, ErrNotFound)
	}
	return nil
}

// RemoveCartItem deletes one of the user's cart lines.
func (s *Store) RemoveCartItem(ctx context.Context, userID, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
	if err != nil {
		return fmt.Errorf("remove cart item %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remove cart item %s: %w", itemID, ErrNotFound)
	}
	return nil
}
