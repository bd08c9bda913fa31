package gateway

import (
	"context"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// StoreOrderGateway is the OrderGateway backed by the service's own database.
type StoreOrderGateway struct {
	store  *store.Store
	logger *zap.Logger
}

// NewStoreOrderGateway creates a store-backed order gateway
func NewStoreOrderGateway(store *store.Store) *StoreOrderGateway {
	return &StoreOrderGateway{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Create persists the order and its items in a single transaction. The total
// is recomputed from the items so the stored order always satisfies
// total = sum(unit_price * quantity).
func (g *StoreOrderGateway) Create(ctx context.Context, userID, addressID int64, items []models.OrderItemData) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StoreOrderGateway.Create")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("order", "create").Observe(time.Since(start).Seconds())
	}()

	var total int64
	for _, item := range items {
		total += item.UnitPrice * int64(item.Quantity)
	}

	order := &models.Order{
		UserID:        userID,
		AddressID:     addressID,
		TotalAmount:   total,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
	}

	if err := g.store.CreateOrderWithItems(ctx, order, items); err != nil {
		return nil, &OrderCreationError{Err: err}
	}

	util.OrdersCreatedTotal.Inc()
	g.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total", total))

	return order, nil
}
