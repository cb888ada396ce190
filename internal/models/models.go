package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   *string         `db:"description" json:"description"`
	Price         decimal.Decimal `db:"price" json:"price"`
	WeightKg      decimal.Decimal `db:"weight_kg" json:"weight_kg"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	Category      *string         `db:"category" json:"category"`
	ImageURL      *string         `db:"image_url" json:"image_url"`
	YoutubeLink   *string         `db:"youtube_link" json:"youtube_link"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// InStock reports whether at least qty units are available.
func (p *Product) InStock(qty int) bool {
	return qty > 0 && p.StockQuantity >= qty
}

// Categories in display order.
var Categories = []string{
	"beverages",
	"fruits_vegetables",
	"snacks",
	"dry_canned",
	"bakery",
	"dairy",
	"seafoods",
	"meats_poultry",
	"groceries_staples",
}

// ValidCategory reports whether c is a known product category.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ProductComment is a customer comment on a product page.
type ProductComment struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Comment   string    `db:"comment" json:"comment"`
	Author    *string   `db:"author" json:"author,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartItem is one (user, product) line of a cart.
type CartItem struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartLine is a cart item joined with its live product row.
type CartLine struct {
	CartItem
	Product Product `db:"product" json:"product"`
}

// Subtotal is the live price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order represents a customer order
type Order struct {
	ID               string          `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"user_id"`
	Status           string          `db:"status" json:"status"`
	PaymentStatus    string          `db:"payment_status" json:"payment_status"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaidAmount       decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	StreetAddress    string          `db:"street_address" json:"street_address"`
	ApartmentSuite   *string         `db:"apartment_suite" json:"apartment_suite"`
	City             string          `db:"city" json:"city"`
	State            string          `db:"state" json:"state"`
	ZipCode          string          `db:"zip_code" json:"zip_code"`
	DeliveryNotes    *string         `db:"delivery_notes" json:"delivery_notes"`
	Approved         bool            `db:"approved" json:"approved"`
	PaymentSessionID *string         `db:"payment_session_id" json:"-"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderNumber is the short reference shown to customers.
func (o *Order) OrderNumber() string {
	return OrderNumber(o.ID)
}

// OrderNumber returns the first 8 characters of an order id, upper-cased.
func OrderNumber(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// OrderItem snapshots price and weight at purchase time.
type OrderItem struct {
	ID          string          `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	ProductName *string         `db:"product_name" json:"product_name,omitempty"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	WeightKg    decimal.Decimal `db:"weight_kg" json:"weight_kg"`
}

// DeliveryAddress is the shipping destination captured at checkout.
type DeliveryAddress struct {
	StreetAddress  string `json:"street_address" binding:"required"`
	ApartmentSuite string `json:"apartment_suite"`
	City           string `json:"city" binding:"required"`
	State          string `json:"state" binding:"required"`
	ZipCode        string `json:"zip_code" binding:"required"`
	DeliveryNotes  string `json:"delivery_notes"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPartial = "partial"
	PaymentStatusFull    = "full"
)

// Payment options chosen at checkout
const (
	PaymentOptionHalf = "half"
	PaymentOptionFull = "full"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// FinalOrderStatus reports whether no further status changes are allowed.
func FinalOrderStatus(s string) bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Profile is the public part of a user account.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  *string   `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is an account with credentials.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserRole grants a role to a user. role=admin is the only authorization signal.
type UserRole struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	Email     *string   `db:"email" json:"email,omitempty"`
	FullName  *string   `db:"full_name" json:"full_name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Roles
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// ChatConversation is a support thread between one customer and the admins.
type ChatConversation struct {
	ID            string    `db:"id" json:"id"`
	CustomerID    string    `db:"customer_id" json:"customer_id"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	CustomerEmail string    `db:"customer_email" json:"customer_email"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ChatMessage is append-only. Seq is the server-assigned insertion order.
type ChatMessage struct {
	ID             string    `db:"id" json:"id"`
	Seq            int64     `db:"seq" json:"seq"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	SenderType     string    `db:"sender_type" json:"sender_type"`
	Message        string    `db:"message" json:"message"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Conversation statuses
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Sender types
const (
	SenderCustomer = "customer"
	SenderAdmin    = "admin"
)
