package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/polling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderGateway struct {
	mu      sync.Mutex
	calls   int
	failErr error
}

func (g *fakeOrderGateway) Create(ctx context.Context, userID, addressID int64, items []models.OrderItemData) (*models.Order, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.failErr != nil {
		return nil, &gateway.OrderCreationError{Err: g.failErr}
	}

	var total int64
	for _, item := range items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return &models.Order{
		ID:            100,
		UserID:        userID,
		AddressID:     addressID,
		TotalAmount:   total,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
	}, nil
}

func (g *fakeOrderGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakePaymentGateway struct {
	mu          sync.Mutex
	initiateErr error
	statusCalls int
	statusFn    func(call int) (*models.Payment, error)
}

func (g *fakePaymentGateway) Initiate(ctx context.Context, orderID int64, method string, amount int64) (*models.Payment, error) {
	if g.initiateErr != nil {
		return nil, &gateway.PaymentInitiationError{OrderID: orderID, Err: g.initiateErr}
	}
	return &models.Payment{
		ID:        200,
		OrderID:   orderID,
		Method:    method,
		Status:    models.PaymentStatusUnpaid,
		Amount:    amount,
		Reference: "TRX-TEST",
		QRPayload: "qr-data",
	}, nil
}

func (g *fakePaymentGateway) GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	g.mu.Lock()
	g.statusCalls++
	call := g.statusCalls
	g.mu.Unlock()
	return g.statusFn(call)
}

func (g *fakePaymentGateway) statusCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

type fakePublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *fakePublisher) record(eventType string) {
	p.mu.Lock()
	p.types = append(p.types, eventType)
	p.mu.Unlock()
}

func (p *fakePublisher) has(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *fakePublisher) PublishCheckoutCompleted(ctx context.Context, e *models.CheckoutCompletedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *fakePublisher) PublishPaymentConfirmed(ctx context.Context, e *models.PaymentConfirmedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *fakePublisher) PublishPaymentTimedOut(ctx context.Context, e *models.PaymentTimedOutEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	p.record(e.EventType)
	return nil
}

type fakeCartStore struct {
	cleared chan int64
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{cleared: make(chan int64, 4)}
}

func (s *fakeCartStore) ClearCart(ctx context.Context, userID int64) error {
	s.cleared <- userID
	return nil
}

func testCart() *models.Cart {
	return &models.Cart{
		UserID: 7,
		Items: []models.CartItem{
			{ProductID: 1, Quantity: 2, UnitPrice: 1000},
			{ProductID: 2, Quantity: 1, UnitPrice: 500},
		},
		Total: 2500,
	}
}

type orchestratorFixture struct {
	orders    *fakeOrderGateway
	payments  *fakePaymentGateway
	publisher *fakePublisher
	carts     *fakeCartStore
	orch      *Orchestrator
}

// newFixture builds an orchestrator over fakes. The polling engine runs on
// the system clock with a very short interval so async paths settle quickly.
func newFixture(statusFn func(call int) (*models.Payment, error)) *orchestratorFixture {
	orders := &fakeOrderGateway{}
	payments := &fakePaymentGateway{statusFn: statusFn}
	publisher := &fakePublisher{}
	carts := newFakeCartStore()

	pollCfg := polling.Config{
		TickInterval:  5 * time.Millisecond,
		AttemptBudget: 180,
		RetryBudget:   3,
	}
	engine := polling.NewEngine(payments, pollCfg, polling.SystemClock())

	orch := NewOrchestrator(orders, payments, engine, pollCfg, publisher, carts, nil, nil)
	return &orchestratorFixture{
		orders:    orders,
		payments:  payments,
		publisher: publisher,
		carts:     carts,
		orch:      orch,
	}
}

func TestSubmitCODCompletesWithoutPolling(t *testing.T) {
	f := newFixture(func(call int) (*models.Payment, error) {
		t.Error("status lookup issued for a COD checkout")
		return nil, nil
	})

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodCOD)

	result, err := f.orch.Submit(context.Background(), 7, testCart())
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.OrderID)
	assert.Equal(t, SubmitStatusCompleted, result.Status)
	assert.True(t, result.Completed)

	_, ok := f.orch.PollingStatus(100)
	assert.False(t, ok, "COD checkout must not open a polling session")
	assert.Equal(t, 0, f.payments.statusCallCount())

	assert.Equal(t, int64(7), <-f.carts.cleared)
	assert.False(t, f.orch.State(7).IsSubmitting)
	assert.True(t, f.publisher.has(models.EventTypeOrderCreated))
	assert.True(t, f.publisher.has(models.EventTypeCheckoutCompleted))
}

func TestSubmitValidationFailureAbortsBeforeOrderCreation(t *testing.T) {
	f := newFixture(nil)

	f.orch.SelectAddress(7, 0)
	f.orch.SelectMethod(7, models.PaymentMethodCOD)

	_, err := f.orch.Submit(context.Background(), 7, &models.Cart{UserID: 7})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, validationErr.Messages, "shipping address is required")
	assert.Contains(t, validationErr.Messages, "cart is empty")

	assert.Equal(t, 0, f.orders.callCount())
	assert.False(t, f.orch.State(7).IsSubmitting)
}

func TestSubmitRejectsTotalMismatch(t *testing.T) {
	f := newFixture(nil)

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodCOD)

	cart := testCart()
	cart.Total = 9999

	_, err := f.orch.Submit(context.Background(), 7, cart)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, validationErr.Messages, "cart total does not match item sum")
	assert.Equal(t, 0, f.orders.callCount())
}

func TestSubmitOrderCreationFailureResetsSubmitting(t *testing.T) {
	f := newFixture(nil)
	f.orders.failErr = errors.New("db down")

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodCOD)

	_, err := f.orch.Submit(context.Background(), 7, testCart())
	require.Error(t, err)

	var creationErr *gateway.OrderCreationError
	assert.True(t, errors.As(err, &creationErr))
	assert.False(t, f.orch.State(7).IsSubmitting)
	assert.Empty(t, f.carts.cleared, "cart must not be cleared on failure")
}

func TestSubmitPaymentInitiationFailureResetsSubmitting(t *testing.T) {
	f := newFixture(nil)
	f.payments.initiateErr = errors.New("provider down")

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodBankTransfer)

	_, err := f.orch.Submit(context.Background(), 7, testCart())
	require.Error(t, err)

	var initErr *gateway.PaymentInitiationError
	assert.True(t, errors.As(err, &initErr))
	assert.False(t, f.orch.State(7).IsSubmitting)
	assert.Equal(t, 1, f.orders.callCount(), "order creation is not rolled back")

	_, ok := f.orch.PollingStatus(100)
	assert.False(t, ok)
}

func TestSubmitBankTransferCompletesOnConfirmation(t *testing.T) {
	f := newFixture(func(call int) (*models.Payment, error) {
		if call < 3 {
			return &models.Payment{ID: 200, OrderID: 100, Status: models.PaymentStatusUnpaid}, nil
		}
		return &models.Payment{ID: 200, OrderID: 100, Status: models.PaymentStatusPaid, Amount: 2500, Reference: "TRX-TEST"}, nil
	})

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodBankTransfer)

	result, err := f.orch.Submit(context.Background(), 7, testCart())
	require.NoError(t, err)

	assert.Equal(t, SubmitStatusAwaitingPayment, result.Status)
	require.NotNil(t, result.Payment)
	assert.Equal(t, "TRX-TEST", result.Payment.Reference)
	assert.Equal(t, "qr-data", result.Payment.QRPayload)

	select {
	case userID := <-f.carts.cleared:
		assert.Equal(t, int64(7), userID)
	case <-time.After(2 * time.Second):
		t.Fatal("cart never cleared after payment confirmation")
	}

	require.Eventually(t, func() bool {
		return !f.orch.State(7).IsSubmitting
	}, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := f.orch.PollingStatus(100)
		return !ok
	}, 2*time.Second, time.Millisecond, "session must be released once polling finishes")
	assert.True(t, f.publisher.has(models.EventTypePaymentConfirmed))
	assert.True(t, f.publisher.has(models.EventTypeCheckoutCompleted))
}

func TestTerminalSessionIsReleased(t *testing.T) {
	f := newFixture(func(call int) (*models.Payment, error) {
		return &models.Payment{ID: 200, OrderID: 100, Status: models.PaymentStatusPaid, Amount: 2500, Reference: "TRX-TEST"}, nil
	})

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodBankTransfer)

	// The first lookup runs on start, so the session can finish before
	// Submit even returns; either way no entry may outlive the outcome.
	_, err := f.orch.Submit(context.Background(), 7, testCart())
	require.NoError(t, err)

	assert.Equal(t, int64(7), <-f.carts.cleared)

	require.Eventually(t, func() bool {
		f.orch.mu.Lock()
		defer f.orch.mu.Unlock()
		return len(f.orch.sessions) == 0
	}, 2*time.Second, time.Millisecond, "completed checkout left a session registered")

	_, ok := f.orch.PollingStatus(100)
	assert.False(t, ok)
	assert.False(t, f.orch.CancelPolling(100))
}

func TestCancelPollingStopsSessionSilently(t *testing.T) {
	f := newFixture(func(call int) (*models.Payment, error) {
		return &models.Payment{ID: 200, OrderID: 100, Status: models.PaymentStatusUnpaid}, nil
	})

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodBankTransfer)

	result, err := f.orch.Submit(context.Background(), 7, testCart())
	require.NoError(t, err)

	state, ok := f.orch.PollingStatus(result.OrderID)
	require.True(t, ok)
	assert.True(t, state.IsWaiting)

	require.True(t, f.orch.CancelPolling(result.OrderID))
	assert.False(t, f.orch.State(7).IsSubmitting)

	_, ok = f.orch.PollingStatus(result.OrderID)
	assert.False(t, ok)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, f.publisher.has(models.EventTypePaymentConfirmed))
	assert.False(t, f.publisher.has(models.EventTypePaymentTimedOut))
	assert.False(t, f.publisher.has(models.EventTypePaymentFailed))
	assert.Empty(t, f.carts.cleared)
}

func TestCancelPollingUnknownOrder(t *testing.T) {
	f := newFixture(nil)
	assert.False(t, f.orch.CancelPolling(999))
}

func TestSubmitWhileSubmitInFlight(t *testing.T) {
	f := newFixture(func(call int) (*models.Payment, error) {
		return &models.Payment{ID: 200, OrderID: 100, Status: models.PaymentStatusUnpaid}, nil
	})

	f.orch.SelectAddress(7, 11)
	f.orch.SelectMethod(7, models.PaymentMethodBankTransfer)

	result, err := f.orch.Submit(context.Background(), 7, testCart())
	require.NoError(t, err)

	_, err = f.orch.Submit(context.Background(), 7, testCart())
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	f.orch.CancelPolling(result.OrderID)
}
