package checkout

import (
	"context"
	"sync"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/polling"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes checkout lifecycle events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishCheckoutCompleted(ctx context.Context, event *models.CheckoutCompletedEvent) error
	PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error
	PublishPaymentTimedOut(ctx context.Context, event *models.PaymentTimedOutEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// CartStore clears a user's cart once checkout completes.
type CartStore interface {
	ClearCart(ctx context.Context, userID int64) error
}

// PollingLocker claims the poller role for an order so that a single replica
// polls it. Optional; a nil locker means this instance always polls.
type PollingLocker interface {
	AcquirePollingLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error)
	ReleasePollingLock(ctx context.Context, orderID int64) error
}

// PaymentRecorder persists the provider's payment record locally so the
// notification worker can resolve transfer references. Optional.
type PaymentRecorder interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
}

// CheckoutState is the per-user checkout selection. Owned exclusively by the
// orchestrator; nothing else mutates these fields.
type CheckoutState struct {
	SelectedAddressID int64
	SelectedMethod    string
	IsSubmitting      bool
}

// SubmitResult is the synchronous outcome of a submit call.
type SubmitResult struct {
	OrderID   int64           `json:"order_id"`
	Status    string          `json:"status"`
	Completed bool            `json:"completed"`
	Payment   *models.Payment `json:"payment,omitempty"`
}

// Submit statuses
const (
	SubmitStatusCompleted       = "COMPLETED"
	SubmitStatusAwaitingPayment = "AWAITING_PAYMENT"
)

// Orchestrator composes the validator, the gateways and the polling engine
// into the two settlement flows.
type Orchestrator struct {
	orders    gateway.OrderGateway
	payments  gateway.PaymentGateway
	engine    *polling.Engine
	pollCfg   polling.Config
	publisher EventPublisher
	carts     CartStore
	locks     PollingLocker
	recorder  PaymentRecorder
	logger    *zap.Logger

	mu       sync.Mutex
	states   map[int64]*CheckoutState
	sessions map[int64]*orderSession
}

type orderSession struct {
	userID  int64
	session *polling.Session
	dialog  *polling.DialogStateSync
}

// NewOrchestrator creates a checkout orchestrator
func NewOrchestrator(
	orders gateway.OrderGateway,
	payments gateway.PaymentGateway,
	engine *polling.Engine,
	pollCfg polling.Config,
	publisher EventPublisher,
	carts CartStore,
	locks PollingLocker,
	recorder PaymentRecorder,
) *Orchestrator {
	return &Orchestrator{
		orders:    orders,
		payments:  payments,
		engine:    engine,
		pollCfg:   pollCfg,
		publisher: publisher,
		carts:     carts,
		locks:     locks,
		recorder:  recorder,
		logger:    util.GetLogger(),
		states:    make(map[int64]*CheckoutState),
		sessions:  make(map[int64]*orderSession),
	}
}

// SelectAddress records the user's shipping address choice.
func (o *Orchestrator) SelectAddress(userID, addressID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stateLocked(userID).SelectedAddressID = addressID
}

// SelectMethod records the user's payment method choice.
func (o *Orchestrator) SelectMethod(userID int64, method string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stateLocked(userID).SelectedMethod = method
}

// State returns a copy of the user's checkout state.
func (o *Orchestrator) State(userID int64) CheckoutState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return *o.stateLocked(userID)
}

func (o *Orchestrator) stateLocked(userID int64) *CheckoutState {
	st, ok := o.states[userID]
	if !ok {
		st = &CheckoutState{SelectedMethod: models.PaymentMethodCOD}
		o.states[userID] = st
	}
	return st
}

// Submit runs the checkout flow against the given cart snapshot. COD
// completes synchronously; bank transfer returns AWAITING_PAYMENT and hands
// confirmation to the polling engine. A failed submission is never retried
// here; the caller must submit again explicitly.
func (o *Orchestrator) Submit(ctx context.Context, userID int64, cart *models.Cart) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.Submit")
	defer span.End()

	o.mu.Lock()
	st := o.stateLocked(userID)
	if st.IsSubmitting {
		o.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	addressID := st.SelectedAddressID
	method := st.SelectedMethod
	o.mu.Unlock()

	// Validation failures leave isSubmitting untouched.
	if result := Validate(cart, addressID); !result.OK {
		util.CheckoutValidationFailuresTotal.Inc()
		return nil, &ValidationError{Messages: result.Errors}
	}
	if cart.Total != cart.ItemSum() {
		util.CheckoutValidationFailuresTotal.Inc()
		return nil, &ValidationError{Messages: []string{"cart total does not match item sum"}}
	}

	util.CheckoutSubmitsTotal.WithLabelValues(method).Inc()
	o.setSubmitting(userID, true)

	items := make([]models.OrderItemData, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order, err := o.orders.Create(ctx, userID, addressID, items)
	if err != nil {
		util.CheckoutAbortedTotal.WithLabelValues("order_create").Inc()
		o.setSubmitting(userID, false)
		return nil, err
	}

	o.publishOrderCreated(ctx, order, method, items)

	if method == models.PaymentMethodCOD {
		o.clearCart(ctx, userID)
		o.publishCheckoutCompleted(ctx, order.ID, userID, method)
		o.setSubmitting(userID, false)
		util.CheckoutCompletedTotal.WithLabelValues(method).Inc()
		o.logger.Info("Checkout completed",
			zap.Int64("order_id", order.ID),
			zap.String("method", method))
		return &SubmitResult{OrderID: order.ID, Status: SubmitStatusCompleted, Completed: true}, nil
	}

	payment, err := o.payments.Initiate(ctx, order.ID, method, order.TotalAmount)
	if err != nil {
		// The order stays as created; reconciliation is not this flow's job.
		util.CheckoutAbortedTotal.WithLabelValues("payment_initiate").Inc()
		o.setSubmitting(userID, false)
		return nil, err
	}

	if o.recorder != nil {
		record := *payment
		if err := o.recorder.CreatePayment(ctx, &record); err != nil {
			o.logger.Error("Failed to record payment locally",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}

	o.acquirePollingLock(ctx, order.ID)

	session := o.engine.Start(context.Background(), order.ID, polling.Callbacks{
		OnSucceeded: func(p *models.Payment) { o.onPollingSucceeded(userID, order.ID, p) },
		OnTimedOut:  func() { o.onPollingTimedOut(userID, order.ID) },
		OnFailed:    func(err error) { o.onPollingFailed(userID, order.ID, err) },
	})

	o.mu.Lock()
	o.sessions[order.ID] = &orderSession{
		userID:  userID,
		session: session,
		dialog:  polling.NewDialogStateSync(session, o.pollCfg),
	}
	// A fast session can reach a terminal phase before the entry exists, in
	// which case the callback's eviction ran against an empty map. Re-check
	// under the same lock so a terminal session is never left registered.
	if session.Snapshot().Phase.IsTerminal() {
		delete(o.sessions, order.ID)
	}
	o.mu.Unlock()

	return &SubmitResult{
		OrderID: order.ID,
		Status:  SubmitStatusAwaitingPayment,
		Payment: payment,
	}, nil
}

// PollingStatus returns the waiting-dialog projection for an order, or false
// when no session exists for it.
func (o *Orchestrator) PollingStatus(orderID int64) (polling.DialogState, bool) {
	o.mu.Lock()
	entry, ok := o.sessions[orderID]
	o.mu.Unlock()
	if !ok {
		return polling.DialogState{}, false
	}
	return entry.dialog.State(), true
}

// CancelPolling stops the session for an order without a terminal callback.
// Called when the buyer closes the waiting dialog or navigates away.
func (o *Orchestrator) CancelPolling(orderID int64) bool {
	o.mu.Lock()
	entry, ok := o.sessions[orderID]
	if ok {
		delete(o.sessions, orderID)
	}
	o.mu.Unlock()
	if !ok {
		return false
	}

	entry.session.Stop()
	o.setSubmitting(entry.userID, false)
	o.releasePollingLock(orderID)
	o.logger.Info("Polling cancelled", zap.Int64("order_id", orderID))
	return true
}

// releaseSession drops the registry entry so the orchestrator holds no state
// for an order once its polling run is over.
func (o *Orchestrator) releaseSession(orderID int64) {
	o.mu.Lock()
	delete(o.sessions, orderID)
	o.mu.Unlock()
}

func (o *Orchestrator) acquirePollingLock(ctx context.Context, orderID int64) {
	if o.locks == nil {
		return
	}
	ttl := time.Duration(o.pollCfg.AttemptBudget+2) * o.pollCfg.TickInterval
	acquired, err := o.locks.AcquirePollingLock(ctx, orderID, ttl)
	if err != nil {
		o.logger.Warn("Failed to acquire polling lock, polling anyway",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return
	}
	if !acquired {
		o.logger.Warn("Polling lock already held for order",
			zap.Int64("order_id", orderID))
	}
}

func (o *Orchestrator) releasePollingLock(orderID int64) {
	if o.locks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.locks.ReleasePollingLock(ctx, orderID); err != nil {
		o.logger.Error("Failed to release polling lock",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}

// Shutdown stops every live session.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	entries := make([]*orderSession, 0, len(o.sessions))
	for _, entry := range o.sessions {
		entries = append(entries, entry)
	}
	o.sessions = make(map[int64]*orderSession)
	o.mu.Unlock()

	for _, entry := range entries {
		entry.session.Stop()
	}
}

func (o *Orchestrator) onPollingSucceeded(userID, orderID int64, payment *models.Payment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.releaseSession(orderID)
	o.clearCart(ctx, userID)
	o.setSubmitting(userID, false)
	o.releasePollingLock(orderID)

	if err := o.publisher.PublishPaymentConfirmed(ctx, &models.PaymentConfirmedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentConfirmed),
		OrderID:   orderID,
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		Reference: payment.Reference,
	}); err != nil {
		o.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
	}

	o.publishCheckoutCompleted(ctx, orderID, userID, models.PaymentMethodBankTransfer)
	util.CheckoutCompletedTotal.WithLabelValues(models.PaymentMethodBankTransfer).Inc()

	o.logger.Info("Checkout completed",
		zap.Int64("order_id", orderID),
		zap.String("method", models.PaymentMethodBankTransfer))
}

func (o *Orchestrator) onPollingTimedOut(userID, orderID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.releaseSession(orderID)
	o.setSubmitting(userID, false)
	o.releasePollingLock(orderID)

	if err := o.publisher.PublishPaymentTimedOut(ctx, &models.PaymentTimedOutEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentTimedOut),
		OrderID:   orderID,
		Attempts:  o.pollCfg.AttemptBudget,
	}); err != nil {
		o.logger.Error("Failed to publish PaymentTimedOut event", zap.Error(err))
	}

	// The order is left as the backend reports it; no auto-cancel.
	o.logger.Warn("Payment confirmation timed out", zap.Int64("order_id", orderID))
}

func (o *Orchestrator) onPollingFailed(userID, orderID int64, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.releaseSession(orderID)
	o.setSubmitting(userID, false)
	o.releasePollingLock(orderID)

	if pubErr := o.publisher.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentFailed),
		OrderID:   orderID,
		Reason:    err.Error(),
	}); pubErr != nil {
		o.logger.Error("Failed to publish PaymentFailed event", zap.Error(pubErr))
	}

	o.logger.Error("Payment confirmation failed",
		zap.Int64("order_id", orderID),
		zap.Error(err))
}

func (o *Orchestrator) setSubmitting(userID int64, submitting bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stateLocked(userID).IsSubmitting = submitting
}

func (o *Orchestrator) clearCart(ctx context.Context, userID int64) {
	if err := o.carts.ClearCart(ctx, userID); err != nil {
		o.logger.Error("Failed to clear cart",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}

func (o *Orchestrator) publishOrderCreated(ctx context.Context, order *models.Order, method string, items []models.OrderItemData) {
	if err := o.publisher.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		UserID:      order.UserID,
		AddressID:   order.AddressID,
		Method:      method,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}); err != nil {
		o.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (o *Orchestrator) publishCheckoutCompleted(ctx context.Context, orderID, userID int64, method string) {
	if err := o.publisher.PublishCheckoutCompleted(ctx, &models.CheckoutCompletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeCheckoutCompleted),
		OrderID:   orderID,
		UserID:    userID,
		Method:    method,
	}); err != nil {
		o.logger.Error("Failed to publish CheckoutCompleted event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
