package service

import (
	"context"
	"errors"
	"io"
	"time"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/store"
)

// CatalogRepository persists products and product comments.
type CatalogRepository interface {
	ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	InventoryByStock(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	ListComments(ctx context.Context, productID string) ([]models.ProductComment, error)
	CreateComment(ctx context.Context, c *models.ProductComment) error
}

// CartRepository persists cart lines.
type CartRepository interface {
	GetCartLines(ctx context.Context, userID string) ([]models.CartLine, error)
	GetCartLine(ctx context.Context, userID, itemID string) (*models.CartLine, error)
	AddToCart(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error)
	UpdateCartQuantity(ctx context.Context, userID, itemID string, quantity int) error
	RemoveCartItem(ctx context.Context, userID, itemID string) error
}

// OrderRepository persists orders and finalizes paid checkouts.
type OrderRepository interface {
	FinalizeOrder(ctx context.Context, p store.FinalizeOrderParams) (*store.FinalizedOrder, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	CountOrders(ctx context.Context) (int, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetOrderItemsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string, approved *bool, allow func(current string) error) (*models.Order, string, error)
}

// UserRepository persists accounts, profiles and roles.
type UserRepository interface {
	auth.AdminChecker
	CreateUser(ctx context.Context, email, passwordHash string, fullName *string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetProfilesByIDs(ctx context.Context, ids []string) (map[string]models.Profile, error)
	ListAdmins(ctx context.Context) ([]models.UserRole, error)
	GrantRole(ctx context.Context, userID, role string) (bool, error)
	RevokeRole(ctx context.Context, userID, role string) error
}

// ChatRepository persists support conversations and their messages.
type ChatRepository interface {
	CreateConversation(ctx context.Context, customerID, name, email string) (*models.ChatConversation, error)
	GetConversation(ctx context.Context, id string) (*models.ChatConversation, error)
	GetActiveConversation(ctx context.Context, customerID string) (*models.ChatConversation, error)
	ListConversations(ctx context.Context) ([]models.ChatConversation, error)
	ListConversationsByCustomer(ctx context.Context, customerID string) ([]models.ChatConversation, error)
	SetConversationStatus(ctx context.Context, id, status string) (*models.ChatConversation, error)
	InsertMessage(ctx context.Context, conversationID, senderID, senderType, text string) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	DeleteAllChats(ctx context.Context) (int64, error)
}

// EventPublisher emits domain events. Publishing is best effort for callers.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event *models.PasswordResetRequestedEvent) error
	PublishAdminRoleGranted(ctx context.Context, event *models.AdminRoleGrantedEvent) error
}

// SessionClaimer serializes concurrent verifications of one payment session.
type SessionClaimer interface {
	ClaimSession(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error)
	ReleaseSession(ctx context.Context, sessionID, owner string) error
}

// ResetTokenStore keeps single-use password reset tokens.
type ResetTokenStore interface {
	StoreResetToken(ctx context.Context, token, userID string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

// IdempotencyStore remembers responses to client-keyed requests.
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
}

// ImageStorage stores product images.
type ImageStorage interface {
	Upload(r io.Reader, filename string) (string, error)
	PublicURL(key string) string
	KeyFromURL(url string) (string, bool)
	Delete(key string) error
}

// storeError translates store sentinels into API errors. what names the missing entity.
func storeError(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.From(err); ok {
		return err
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(what)
	case errors.Is(err, store.ErrEmptyCart):
		return apperr.Rule(apperr.CodeEmptyCart, "Cart is empty")
	case errors.Is(err, store.ErrOutOfStock):
		return apperr.Rule(apperr.CodeOutOfStock, "Product is out of stock")
	case errors.Is(err, store.ErrInsufficientStock):
		return apperr.Rule(apperr.CodeInsufficientStock, "Not enough stock available")
	case errors.Is(err, store.ErrConversationClosed):
		return apperr.Rule(apperr.CodeConversationClosed, "This conversation has been closed")
	case errors.Is(err, store.ErrConstraint):
		return apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidInput, "Value out of range", err)
	}
	return apperr.External("database request failed", err)
}

// requireAdmin rejects calls without a capability issued by the admin guard.
func requireAdmin(capability auth.AdminCapability) error {
	if !capability.Valid() {
		return apperr.New(apperr.KindForbidden, apperr.CodeNotAdmin, "Admin access required").WithRedirect("/")
	}
	return nil
}
