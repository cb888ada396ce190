package service

import (
	"context"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService handles the signed-in customer's cart.
type CartService struct {
	carts  CartRepository
	roles  auth.AdminChecker
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartRepository, roles auth.AdminChecker) *CartService {
	return &CartService{carts: carts, roles: roles, logger: util.Component("cart")}
}

// CartView is a cart with derived totals.
type CartView struct {
	Items     []CartLineView  `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// CartLineView is one cart line with its live subtotal.
type CartLineView struct {
	models.CartLine
	Subtotal decimal.Decimal `json:"subtotal"`
}

// GetCart returns the user's cart.
func (s *CartService) GetCart(ctx context.Context, sess auth.Session) (*CartView, error) {
	lines, err := s.carts.GetCartLines(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err, "cart")
	}

	view := &CartView{Items: make([]CartLineView, 0, len(lines)), Total: decimal.Zero}
	for _, line := range lines {
		sub := line.Subtotal()
		view.Items = append(view.Items, CartLineView{CartLine: line, Subtotal: sub})
		view.Total = view.Total.Add(sub)
		view.ItemCount += line.Quantity
	}
	return view, nil
}

// AddItem adds quantity units of a product, incrementing an existing line.
func (s *CartService) AddItem(ctx context.Context, sess auth.Session, productID string, quantity int) (*models.CartItem, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, apperr.Validation("Quantity must be at least 1")
	}

	isAdmin, err := s.roles.IsAdmin(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err, "user")
	}
	if isAdmin {
		return nil, apperr.Rule(apperr.CodeAdminPurchase, "Admins cannot make purchases").WithRedirect("/admin/dashboard")
	}

	item, err := s.carts.AddToCart(ctx, sess.UserID, productID, quantity)
	if err != nil {
		return nil, storeError(err, "product")
	}

	s.logger.Debug("Cart updated",
		zap.String("user_id", sess.UserID),
		zap.String("product_id", productID),
		zap.Int("quantity", item.Quantity))
	return item, nil
}

// UpdateQuantity sets a line's quantity, bounded by current stock.
func (s *CartService) UpdateQuantity(ctx context.Context, sess auth.Session, itemID string, quantity int) error {
	if quantity < 1 {
		return apperr.Validation("Quantity must be at least 1")
	}

	line, err := s.carts.GetCartLine(ctx, sess.UserID, itemID)
	if err != nil {
		return storeError(err, "cart item")
	}
	if quantity > line.Product.StockQuantity {
		return apperr.Rule(apperr.CodeInsufficientStock, "Not enough stock available")
	}

	return storeError(s.carts.UpdateCartQuantity(ctx, sess.UserID, itemID, quantity), "cart item")
}

// RemoveItem deletes a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, sess auth.Session, itemID string) error {
	return storeError(s.carts.RemoveCartItem(ctx, sess.UserID, itemID), "cart item")
}
