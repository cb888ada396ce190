package service

import (
	"context"
	"fmt"
	"time"

	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/realtime"
	"kwetu-store/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DashboardService computes back-office inventory stats and live notices.
type DashboardService struct {
	catalog           CatalogRepository
	orders            OrderRepository
	hub               *realtime.Hub
	lowStockThreshold int
	logger            *zap.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(catalog CatalogRepository, orders OrderRepository, hub *realtime.Hub, lowStockThreshold int) *DashboardService {
	return &DashboardService{
		catalog:           catalog,
		orders:            orders,
		hub:               hub,
		lowStockThreshold: lowStockThreshold,
		logger:            util.Component("dashboard"),
	}
}

// DashboardStats summarizes inventory and orders.
type DashboardStats struct {
	TotalProducts int             `json:"totalProducts"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	TotalWeight   decimal.Decimal `json:"totalWeight"`
	TotalStock    int             `json:"totalStock"`
	LowStockItems int             `json:"lowStockItems"`
	TotalOrders   int             `json:"totalOrders"`
	Inventory     []InventoryRow  `json:"inventory"`
}

// InventoryRow is one product in the stock table.
type InventoryRow struct {
	models.Product
	LowStock bool `json:"low_stock"`
}

// Stats computes the dashboard. The inventory is sorted by stock, lowest first.
func (s *DashboardService) Stats(ctx context.Context, capability auth.AdminCapability) (*DashboardStats, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}

	products, err := s.catalog.InventoryByStock(ctx)
	if err != nil {
		return nil, storeError(err, "products")
	}
	stats := SummarizeInventory(products, s.lowStockThreshold)

	stats.TotalOrders, err = s.orders.CountOrders(ctx)
	if err != nil {
		return nil, storeError(err, "orders")
	}
	return stats, nil
}

// SummarizeInventory derives totals from products already ordered by stock.
func SummarizeInventory(products []models.Product, lowStockThreshold int) *DashboardStats {
	stats := &DashboardStats{
		TotalProducts: len(products),
		TotalValue:    decimal.Zero,
		TotalWeight:   decimal.Zero,
		Inventory:     make([]InventoryRow, 0, len(products)),
	}
	for _, p := range products {
		stock := decimal.NewFromInt(int64(p.StockQuantity))
		stats.TotalValue = stats.TotalValue.Add(p.Price.Mul(stock))
		stats.TotalWeight = stats.TotalWeight.Add(p.WeightKg.Mul(stock))
		stats.TotalStock += p.StockQuantity

		low := p.StockQuantity < lowStockThreshold
		if low {
			stats.LowStockItems++
		}
		stats.Inventory = append(stats.Inventory, InventoryRow{Product: p, LowStock: low})
	}
	return stats
}

// Notice kinds
const (
	NoticeNewOrder   = "new_order"
	NoticeStockAlert = "stock_alert"
)

// AdminNotice is a live back-office notification.
type AdminNotice struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StreamNotices emits notices for new orders and stock changes until ctx is done.
func (s *DashboardService) StreamNotices(ctx context.Context, capability auth.AdminCapability, emit func(AdminNotice) error) error {
	if err := requireAdmin(capability); err != nil {
		return err
	}

	orders := s.hub.Subscribe(realtime.Filter{Table: "orders"})
	defer orders.Close()
	products := s.hub.Subscribe(realtime.Filter{Table: "products"})
	defer products.Close()

	for {
		var (
			change realtime.Change
			ok     bool
		)
		select {
		case <-ctx.Done():
			return nil
		case change, ok = <-orders.C:
		case change, ok = <-products.C:
		}
		if !ok {
			return nil
		}

		notice, found := NoticeFromChange(&change)
		if !found {
			continue
		}
		if err := emit(notice); err != nil {
			return err
		}
	}
}

type orderRow struct {
	ID          string          `json:"id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type productRow struct {
	Name          string `json:"name"`
	StockQuantity int    `json:"stock_quantity"`
}

// NoticeFromChange renders the notice for a change, if it warrants one.
func NoticeFromChange(change *realtime.Change) (AdminNotice, bool) {
	now := time.Now().UTC()

	switch {
	case change.Table == "orders" && change.Type == realtime.ChangeInsert:
		var o orderRow
		if err := change.Decode(&o); err != nil {
			return AdminNotice{}, false
		}
		short := o.ID
		if len(short) > 8 {
			short = short[:8]
		}
		return AdminNotice{
			Kind:    NoticeNewOrder,
			Message: fmt.Sprintf("New Order Received! Order #%s - Total: $%s", short, o.TotalAmount.StringFixed(2)),
			At:      now,
		}, true

	case change.Table == "products" && change.Type == realtime.ChangeUpdate:
		var before, after productRow
		if change.Decode(&after) != nil || change.DecodeOld(&before) != nil {
			return AdminNotice{}, false
		}
		delta := after.StockQuantity - before.StockQuantity
		if delta == 0 {
			return AdminNotice{}, false
		}
		direction := "increased"
		if delta < 0 {
			direction = "decreased"
			delta = -delta
		}
		return AdminNotice{
			Kind: NoticeStockAlert,
			Message: fmt.Sprintf("Stock Alert: %s stock %s by %d. Remaining: %d units",
				after.Name, direction, delta, after.StockQuantity),
			At: now,
		}, true
	}
	return AdminNotice{}, false
}
