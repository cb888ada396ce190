package worker

import (
	"context"
	"fmt"
	"strings"

	"kwetu-store/internal/broker"
	"kwetu-store/internal/models"
	"kwetu-store/internal/util"

	"go.uber.org/zap"
)

// Email kinds
const (
	KindPasswordReset      = "password_reset"
	KindOrderConfirmation  = "order_confirmation"
	KindOrderStatusChanged = "order_status"
)

// MessageSource feeds the worker. *broker.Consumer satisfies it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// ProfileLookup resolves a user's contact address.
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// NotificationWorker turns store events into customer emails
type NotificationWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	mailer       Mailer
	profiles     ProfileLookup
	frontendURL  string
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(source MessageSource, mailer Mailer, profiles ProfileLookup, frontendURL string) *NotificationWorker {
	w := &NotificationWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		mailer:       mailer,
		profiles:     profiles,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		logger:       util.Component("notification-worker"),
	}

	w.eventHandler.OnPasswordResetRequested(w.handlePasswordReset)
	w.eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	w.eventHandler.OnAdminRoleGranted(w.handleAdminRoleGranted)
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.source.Close()
}

func (w *NotificationWorker) handlePasswordReset(ctx context.Context, event *models.PasswordResetRequestedEvent) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", w.frontendURL, event.Token)
	return w.send(ctx, Email{
		To:      event.Email,
		Kind:    KindPasswordReset,
		Subject: "Reset your African Kwetu Store password",
		Body:    "Use this link to choose a new password: " + link,
	})
}

func (w *NotificationWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	if event.CustomerEmail == "" {
		w.logger.Warn("Order placed without customer email", zap.String("order_id", event.OrderID))
		return nil
	}

	body := fmt.Sprintf("Thank you for your order #%s. Total: $%s, paid now: $%s.",
		event.OrderNumber, event.TotalAmount.StringFixed(2), event.PaidAmount.StringFixed(2))
	if event.PaymentStatus == models.PaymentStatusPartial {
		body += " The remaining balance is due on delivery."
	}
	return w.send(ctx, Email{
		To:      event.CustomerEmail,
		Kind:    KindOrderConfirmation,
		Subject: "Order #" + event.OrderNumber + " confirmed",
		Body:    body,
	})
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if event.OldStatus == event.NewStatus {
		return nil
	}

	profile, err := w.profiles.GetProfile(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("lookup profile %s: %w", event.UserID, err)
	}

	number := models.OrderNumber(event.OrderID)
	return w.send(ctx, Email{
		To:      profile.Email,
		Kind:    KindOrderStatusChanged,
		Subject: "Order #" + number + " is " + event.NewStatus,
		Body:    fmt.Sprintf("Your order #%s moved from %s to %s.", number, event.OldStatus, event.NewStatus),
	})
}

func (w *NotificationWorker) handleAdminRoleGranted(_ context.Context, event *models.AdminRoleGrantedEvent) error {
	w.logger.Info("Admin role granted",
		zap.String("user_id", event.UserID),
		zap.String("email", event.Email),
		zap.String("granted_by", event.GrantedBy))
	return nil
}

func (w *NotificationWorker) send(ctx context.Context, email Email) error {
	if err := w.mailer.Send(ctx, email); err != nil {
		util.NotificationsSentTotal.WithLabelValues(email.Kind + "_failed").Inc()
		return fmt.Errorf("send %s email: %w", email.Kind, err)
	}
	util.NotificationsSentTotal.WithLabelValues(email.Kind).Inc()
	return nil
}
