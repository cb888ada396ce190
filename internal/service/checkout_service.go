package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/payment"
	"kwetu-store/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// checkoutReplayTTL bounds how long a repeated Idempotency-Key returns the same session.
const checkoutReplayTTL = time.Hour

// CheckoutService turns a cart into a hosted payment session. It never writes
// locally; orders are created only by PaymentVerifier.
type CheckoutService struct {
	carts       CartRepository
	roles       auth.AdminChecker
	gateway     payment.Gateway
	idempotency IdempotencyStore
	frontendURL string
	logger      *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(carts CartRepository, roles auth.AdminChecker, gateway payment.Gateway, idempotency IdempotencyStore, frontendURL string) *CheckoutService {
	return &CheckoutService{
		carts:       carts,
		roles:       roles,
		gateway:     gateway,
		idempotency: idempotency,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      util.Component("checkout"),
	}
}

// CheckoutRequest is the body of a checkout initiation.
type CheckoutRequest struct {
	PaymentOption   string                 `json:"paymentOption" binding:"required"`
	DeliveryAddress models.DeliveryAddress `json:"deliveryAddress" binding:"required"`
	IdempotencyKey  string                 `json:"idempotency_key,omitempty"`
}

// CheckoutResponse carries the hosted payment page URL.
type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// CreateCheckout validates the caller's cart and opens a payment session for it.
// origin is the client origin used for return URLs; empty falls back to the configured frontend.
func (s *CheckoutService) CreateCheckout(ctx context.Context, sess auth.Session, origin string, req CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout",
		attribute.String("user_id", sess.UserID),
		attribute.String("payment_option", req.PaymentOption))
	defer span.End()

	if req.PaymentOption != models.PaymentOptionHalf && req.PaymentOption != models.PaymentOptionFull {
		return nil, apperr.Validation("paymentOption must be 'half' or 'full'")
	}
	if err := validateAddress(req.DeliveryAddress); err != nil {
		return nil, err
	}

	isAdmin, err := s.roles.IsAdmin(ctx, sess.UserID)
	if err != nil {
		return nil, util.RecordError(span, storeError(err, "user"))
	}
	if isAdmin {
		util.CheckoutFailedTotal.WithLabelValues("admin").Inc()
		return nil, apperr.Rule(apperr.CodeAdminPurchase, "Admins cannot make purchases").WithRedirect("/admin/dashboard")
	}

	lines, err := s.carts.GetCartLines(ctx, sess.UserID)
	if err != nil {
		return nil, util.RecordError(span, storeError(err, "cart"))
	}
	if len(lines) == 0 {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.Rule(apperr.CodeEmptyCart, "Cart is empty")
	}
	for _, line := range lines {
		if !line.Product.InStock(line.Quantity) {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, apperr.Rule(apperr.CodeInsufficientStock,
				fmt.Sprintf("Only %d of %s left in stock", line.Product.StockQuantity, line.Product.Name))
		}
	}

	if replay := s.replay(ctx, sess.UserID, req.IdempotencyKey); replay != nil {
		return replay, nil
	}

	total, paid := CalculateTotals(lines, req.PaymentOption)

	if origin == "" {
		origin = s.frontendURL
	}
	origin = strings.TrimRight(origin, "/")

	metadata := payment.CheckoutMetadata{
		UserID:        sess.UserID,
		PaymentOption: req.PaymentOption,
		TotalAmount:   total,
		PaidAmount:    paid,
		Address:       req.DeliveryAddress,
	}

	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		CustomerEmail: sess.Email,
		LineItems:     BuildLineItems(lines, req.PaymentOption),
		SuccessURL:    origin + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     origin + "/checkout",
		Metadata:      metadata.ToMap(),
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("gateway").Inc()
		s.logger.Error("Failed to create checkout session", zap.String("user_id", sess.UserID), zap.Error(err))
		return nil, util.RecordError(span, apperr.Wrap(apperr.KindExternalService, apperr.CodeCheckoutFailed, "Could not start checkout", err))
	}

	util.CheckoutSessionsCreated.WithLabelValues(req.PaymentOption).Inc()
	s.logger.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", sess.UserID),
		zap.String("total", total.StringFixed(2)),
		zap.String("paid", paid.StringFixed(2)))

	resp := &CheckoutResponse{URL: session.URL, SessionID: session.ID}
	s.remember(ctx, sess.UserID, req.IdempotencyKey, resp)
	return resp, nil
}

func checkoutReplayKey(userID, key string) string {
	return "checkout:" + userID + ":" + key
}

// replay returns the response already produced for this key, if any. Lookup
// failures are logged and treated as a miss.
func (s *CheckoutService) replay(ctx context.Context, userID, key string) *CheckoutResponse {
	if key == "" || s.idempotency == nil {
		return nil
	}
	raw, err := s.idempotency.GetIdempotencyKey(ctx, checkoutReplayKey(userID, key))
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if raw == "" {
		return nil
	}
	var resp CheckoutResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		s.logger.Warn("Discarding unreadable idempotency record", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.String("session_id", resp.SessionID))
	return &resp
}

func (s *CheckoutService) remember(ctx context.Context, userID, key string, resp *CheckoutResponse) {
	if key == "" || s.idempotency == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.idempotency.SetIdempotencyKey(ctx, checkoutReplayKey(userID, key), string(data), checkoutReplayTTL); err != nil {
		s.logger.Warn("Failed to record idempotency key", zap.String("user_id", userID), zap.Error(err))
	}
}

// CalculateTotals returns the cart total and the amount charged now.
// A half payment is the total halved and rounded to the cent.
func CalculateTotals(lines []models.CartLine, option string) (total, paid decimal.Decimal) {
	total = decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	if option == models.PaymentOptionHalf {
		return total, total.Div(decimal.NewFromInt(2)).Round(2)
	}
	return total, total
}

// BuildLineItems produces one gateway line per cart row. Unit amounts are in
// cents and halved per unit for a half payment.
func BuildLineItems(lines []models.CartLine, option string) []payment.LineItem {
	items := make([]payment.LineItem, 0, len(lines))
	for _, line := range lines {
		unit := line.Product.Price
		if option == models.PaymentOptionHalf {
			unit = unit.Div(decimal.NewFromInt(2))
		}
		items = append(items, payment.LineItem{
			Name:        line.Product.Name,
			Description: line.Product.WeightKg.String() + " kg",
			UnitAmount:  unit.Mul(hundred).Round(0).IntPart(),
			Quantity:    int64(line.Quantity),
		})
	}
	return items
}

func validateAddress(a models.DeliveryAddress) error {
	missing := []string{}
	if strings.TrimSpace(a.StreetAddress) == "" {
		missing = append(missing, "street_address")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(a.ZipCode) == "" {
		missing = append(missing, "zip_code")
	}
	if len(missing) > 0 {
		return apperr.Validation("Missing delivery address fields: " + strings.Join(missing, ", "))
	}
	return nil
}
