package store

import (
	"context"
	"fmt"
	"strings"

	"kwetu-store/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, description, price, weight_kg, stock_quantity, category,
	image_url, youtube_link, created_at, updated_at`

// ProductFilter narrows a catalog listing. Empty fields match everything.
type ProductFilter struct {
	Category string
	Search   string
}

// ListProducts returns products matching the filter, newest first.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, classify(err))
	}
	return &product, nil
}

// InventoryByStock returns every product, lowest stock first.
func (s *Store) InventoryByStock(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products ORDER BY stock_quantity ASC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return products, nil
}

// CreateProduct inserts p, assigning its id and timestamps.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO products (id, name, description, price, weight_kg, stock_quantity, category, image_url, youtube_link)
		VALUES (:id, :name, :description, :price, :weight_kg, :stock_quantity, :category, :image_url, :youtube_link)
		RETURNING created_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, s.db, query, p)
	if err != nil {
		return fmt.Errorf("create product: %w", classify(err))
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
	}
	return rows.Err()
}

// UpdateProduct overwrites every editable column of p.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET name = :name, description = :description, price = :price, weight_kg = :weight_kg,
		    stock_quantity = :stock_quantity, category = :category, image_url = :image_url,
		    youtube_link = :youtube_link, updated_at = NOW()
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update product %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// DeleteProduct removes a product. Past order items keep their snapshot.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete product %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListComments returns a product's comments, newest first, with the author's name.
func (s *Store) ListComments(ctx context.Context, productID string) ([]models.ProductComment, error) {
	comments := []models.ProductComment{}
	err := s.db.SelectContext(ctx, &comments, `
		SELECT c.id, c.product_id, c.user_id, c.comment, p.full_name AS author, c.created_at
		FROM product_comments c
		LEFT JOIN profiles p ON p.id = c.user_id
		WHERE c.product_id = $1
		ORDER BY c.created_at DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// CreateComment appends a comment to a product.
func (s *Store) CreateComment(ctx context.Context, c *models.ProductComment) error {
	c.ID = uuid.New().String()
	err := s.db.GetContext(ctx, &c.CreatedAt, `
		INSERT INTO product_comments (id, product_id, user_id, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		c.ID, c.ProductID, c.UserID, c.Comment)
	if err != nil {
		return fmt.Errorf("create comment: %w", classify(err))
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
