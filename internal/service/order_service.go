package service

import (
	"context"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles order history and admin order management
type OrderService struct {
	orders OrderRepository
	users  UserRepository
	events EventPublisher
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderRepository, users UserRepository, events EventPublisher) *OrderService {
	return &OrderService{
		orders: orders,
		users:  users,
		events: events,
		logger: util.Component("orders"),
	}
}

// OrderWithItems is an order and its line items.
type OrderWithItems struct {
	models.Order
	OrderNumber string             `json:"order_number"`
	Items       []models.OrderItem `json:"items"`
}

// AdminOrderView adds the customer's profile for the back-office list.
type AdminOrderView struct {
	OrderWithItems
	Customer *models.Profile `json:"customer,omitempty"`
}

// ListMyOrders returns the user's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, sess auth.Session) ([]OrderWithItems, error) {
	orders, err := s.orders.GetOrdersByUserID(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err, "orders")
	}
	return s.withItems(ctx, orders)
}

// GetOrder returns one of the user's own orders. Other users' orders are reported as missing.
func (s *OrderService) GetOrder(ctx context.Context, sess auth.Session, orderID string) (*OrderWithItems, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "order")
	}
	if order.UserID != sess.UserID {
		return nil, apperr.NotFound("order")
	}

	items, err := s.orders.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, storeError(err, "order")
	}
	return &OrderWithItems{Order: *order, OrderNumber: order.OrderNumber(), Items: items}, nil
}

// ListAllOrders returns every order with items and customer profile.
func (s *OrderService) ListAllOrders(ctx context.Context, capability auth.AdminCapability) ([]AdminOrderView, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, storeError(err, "orders")
	}
	withItems, err := s.withItems(ctx, orders)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(orders))
	seen := make(map[string]bool)
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			userIDs = append(userIDs, o.UserID)
		}
	}
	profiles, err := s.users.GetProfilesByIDs(ctx, userIDs)
	if err != nil {
		return nil, storeError(err, "profiles")
	}

	views := make([]AdminOrderView, 0, len(withItems))
	for _, o := range withItems {
		view := AdminOrderView{OrderWithItems: o}
		if p, ok := profiles[o.UserID]; ok {
			view.Customer = &p
		}
		views = append(views, view)
	}
	return views, nil
}

// UpdateStatus moves an order to status. Delivered and cancelled orders are final.
func (s *OrderService) UpdateStatus(ctx context.Context, capability auth.AdminCapability, orderID, status string) (*models.Order, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	if !models.ValidOrderStatus(status) {
		return nil, apperr.Validation("Unknown order status: " + status)
	}
	return s.changeStatus(ctx, capability, orderID, status, nil)
}

// ApproveOrder marks an order approved and starts processing it.
func (s *OrderService) ApproveOrder(ctx context.Context, capability auth.AdminCapability, orderID string) (*models.Order, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	approved := true
	return s.changeStatus(ctx, capability, orderID, models.OrderStatusProcessing, &approved)
}

func (s *OrderService) changeStatus(ctx context.Context, capability auth.AdminCapability, orderID, status string, approved *bool) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.changeStatus",
		attribute.String("order_id", orderID),
		attribute.String("status", status))
	defer span.End()

	order, old, err := s.orders.UpdateOrderStatus(ctx, orderID, status, approved, func(current string) error {
		if models.FinalOrderStatus(current) {
			return apperr.Rule(apperr.CodeOrderFinal, "Order is already "+current)
		}
		return nil
	})
	if err != nil {
		return nil, util.RecordError(span, storeError(err, "order"))
	}

	util.OrderStatusChangesTotal.WithLabelValues(status).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("from", old),
		zap.String("to", status),
		zap.String("admin_id", capability.UserID()))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		UserID:    order.UserID,
		OldStatus: old,
		NewStatus: order.Status,
		Approved:  order.Approved,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.String("order_id", orderID), zap.Error(err))
	}

	return order, nil
}

func (s *OrderService) withItems(ctx context.Context, orders []models.Order) ([]OrderWithItems, error) {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.orders.GetOrderItemsByOrderIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, "orders")
	}

	out := make([]OrderWithItems, 0, len(orders))
	for _, o := range orders {
		lines := items[o.ID]
		if lines == nil {
			lines = []models.OrderItem{}
		}
		out = append(out, OrderWithItems{Order: o, OrderNumber: o.OrderNumber(), Items: lines})
	}
	return out, nil
}
