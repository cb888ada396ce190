package service

import (
	"context"
	"errors"
	"time"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/payment"
	"kwetu-store/internal/store"
	"kwetu-store/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentVerifier turns a paid checkout session into exactly one order.
type PaymentVerifier struct {
	gateway  payment.Gateway
	orders   OrderRepository
	users    UserRepository
	claims   SessionClaimer
	events   EventPublisher
	claimTTL time.Duration
	logger   *zap.Logger
}

// NewPaymentVerifier creates a new payment verifier
func NewPaymentVerifier(
	gateway payment.Gateway,
	orders OrderRepository,
	users UserRepository,
	claims SessionClaimer,
	events EventPublisher,
	claimTTL time.Duration,
) *PaymentVerifier {
	return &PaymentVerifier{
		gateway:  gateway,
		orders:   orders,
		users:    users,
		claims:   claims,
		events:   events,
		claimTTL: claimTTL,
		logger:   util.Component("payment-verifier"),
	}
}

// VerifyResult identifies the order a session produced.
type VerifyResult struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// Verify checks that the session is paid and finalizes its order. Verifying the
// same session again returns the order created the first time. caller is nil for
// service-credential calls; otherwise it must own the session.
func (v *PaymentVerifier) Verify(ctx context.Context, sessionID string, caller *auth.Session) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentVerifier.Verify", attribute.String("session_id", sessionID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentVerifyLatency.Observe(time.Since(start).Seconds())
	}()

	if sessionID == "" {
		return nil, apperr.Validation("session_id is required")
	}

	session, err := v.gateway.GetSession(ctx, sessionID)
	if err != nil {
		util.PaymentsVerifiedTotal.WithLabelValues("gateway_error").Inc()
		return nil, util.RecordError(span, apperr.External("Could not retrieve payment session", err))
	}
	if !session.Paid() {
		util.PaymentsVerifiedTotal.WithLabelValues("incomplete").Inc()
		return nil, apperr.Rule(apperr.CodePaymentIncomplete, "Payment not completed")
	}

	md, err := payment.ParseCheckoutMetadata(session.Metadata)
	if err != nil {
		util.PaymentsVerifiedTotal.WithLabelValues("bad_metadata").Inc()
		return nil, util.RecordError(span, apperr.External("Payment session is missing checkout details", err))
	}
	if caller != nil && caller.UserID != md.UserID {
		return nil, apperr.New(apperr.KindForbidden, apperr.CodeSessionMismatch, "Payment session belongs to another user")
	}

	if existing, err := v.orders.GetOrderBySessionID(ctx, sessionID); err == nil {
		util.PaymentsVerifiedTotal.WithLabelValues("existing").Inc()
		return resultFor(existing.ID), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, util.RecordError(span, apperr.External("Could not look up order", err))
	}

	owner := uuid.New().String()
	claimed, err := v.claims.ClaimSession(ctx, sessionID, owner, v.claimTTL)
	switch {
	case err != nil:
		// The unique payment_session_id still prevents a second order.
		v.logger.Warn("Verification claim unavailable, relying on database uniqueness",
			zap.String("session_id", sessionID), zap.Error(err))
	case !claimed:
		util.PaymentsVerifiedTotal.WithLabelValues("in_progress").Inc()
		return nil, apperr.Rule(apperr.CodeVerificationInProgress, "Payment verification already in progress")
	default:
		defer func() {
			if err := v.claims.ReleaseSession(context.Background(), sessionID, owner); err != nil {
				v.logger.Warn("Failed to release verification claim", zap.String("session_id", sessionID), zap.Error(err))
			}
		}()
	}

	result, err := v.orders.FinalizeOrder(ctx, store.FinalizeOrderParams{
		UserID:        md.UserID,
		SessionID:     sessionID,
		PaymentStatus: md.PaymentStatus(),
		TotalAmount:   md.TotalAmount,
		PaidAmount:    md.PaidAmount,
		Address:       md.Address,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmptyCart) || errors.Is(err, store.ErrDuplicate) {
			// A concurrent verifier may have committed this session's order and
			// cleared the cart while we waited on its locks.
			if existing, lookupErr := v.orders.GetOrderBySessionID(ctx, sessionID); lookupErr == nil {
				util.PaymentsVerifiedTotal.WithLabelValues("existing").Inc()
				return resultFor(existing.ID), nil
			}
		}
		switch {
		case errors.Is(err, store.ErrEmptyCart):
			util.PaymentsVerifiedTotal.WithLabelValues("empty_cart").Inc()
			return nil, apperr.Rule(apperr.CodeEmptyCart, "Cart is empty")
		case store.IsRetryable(err):
			util.PaymentsVerifiedTotal.WithLabelValues("conflict").Inc()
			v.logger.Warn("Order finalization conflicted, client may retry",
				zap.String("session_id", sessionID), zap.Error(err))
			return nil, apperr.Wrap(apperr.KindBusinessRule, apperr.CodeVerificationInProgress,
				"Payment verification already in progress", err)
		}
		util.PaymentsVerifiedTotal.WithLabelValues("failed").Inc()
		v.logger.Error("Order finalization failed",
			zap.String("session_id", sessionID),
			zap.String("user_id", md.UserID),
			zap.Error(err))
		return nil, util.RecordError(span, apperr.External("Could not record order, please retry", err))
	}

	if !result.Created {
		util.PaymentsVerifiedTotal.WithLabelValues("existing").Inc()
		return resultFor(result.Order.ID), nil
	}

	util.PaymentsVerifiedTotal.WithLabelValues("created").Inc()
	util.OrdersCreatedTotal.WithLabelValues(result.Order.PaymentStatus).Inc()
	v.logger.Info("Order created",
		zap.String("order_id", result.Order.ID),
		zap.String("session_id", sessionID),
		zap.String("payment_status", result.Order.PaymentStatus))

	v.checkChargedTotal(result, md, session.AmountTotal)
	for _, o := range result.Oversold {
		util.InventoryOversoldTotal.Inc()
		v.logger.Warn("Stock oversold, clamped at zero",
			zap.String("order_id", result.Order.ID),
			zap.String("product_id", o.ProductID),
			zap.Int("requested", o.Requested),
			zap.Int("available", o.Available))
	}

	v.publishOrderPlaced(ctx, result)

	return resultFor(result.Order.ID), nil
}

// checkChargedTotal warns when the cart changed between checkout and verification.
// The order keeps the amounts that were charged.
func (v *PaymentVerifier) checkChargedTotal(result *store.FinalizedOrder, md *payment.CheckoutMetadata, chargedMinor int64) {
	cartTotal, _ := CalculateTotals(result.Lines, md.PaymentOption)
	cartMinor := chargeMinorUnits(result.Lines, md.PaymentOption)
	if cartMinor == chargedMinor && cartTotal.Equal(md.TotalAmount) {
		return
	}
	v.logger.Warn("Cart changed after checkout",
		zap.String("order_id", result.Order.ID),
		zap.Int64("charged_minor", chargedMinor),
		zap.Int64("cart_minor", cartMinor),
		zap.String("checkout_total", md.TotalAmount.StringFixed(2)),
		zap.String("cart_total", cartTotal.StringFixed(2)))
}

// chargeMinorUnits is what the gateway charges for lines, in cents.
func chargeMinorUnits(lines []models.CartLine, option string) int64 {
	var sum int64
	for _, item := range BuildLineItems(lines, option) {
		sum += item.UnitAmount * item.Quantity
	}
	return sum
}

func (v *PaymentVerifier) publishOrderPlaced(ctx context.Context, result *store.FinalizedOrder) {
	order := result.Order

	var email string
	if profile, err := v.users.GetProfile(ctx, order.UserID); err == nil {
		email = profile.Email
	}

	items := make([]models.OrderItemData, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber(),
		UserID:        order.UserID,
		CustomerEmail: email,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		PaidAmount:    order.PaidAmount,
		Items:         items,
	}
	if err := v.events.PublishOrderPlaced(ctx, event); err != nil {
		v.logger.Error("Failed to publish OrderPlaced event", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func resultFor(orderID string) *VerifyResult {
	return &VerifyResult{
		Success:     true,
		OrderID:     orderID,
		OrderNumber: models.OrderNumber(orderID),
	}
}
