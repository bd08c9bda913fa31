package polling

import (
	"context"
	"errors"
	"sync"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Phase is the state of a polling session.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhasePolling   Phase = "POLLING"
	PhaseSucceeded Phase = "SUCCEEDED"
	PhaseTimedOut  Phase = "TIMED_OUT"
	PhaseFailed    Phase = "FAILED"
)

// IsTerminal reports whether no further transition can occur.
func (p Phase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseTimedOut || p == PhaseFailed
}

// Config is the polling policy: how often to look, how many ticks before
// giving up, and how many consecutive transport errors to tolerate.
type Config struct {
	TickInterval  time.Duration
	AttemptBudget int
	RetryBudget   int
}

// Callbacks receive the terminal outcome of a session. At most one of them
// fires, exactly once, and never after Stop.
type Callbacks struct {
	OnSucceeded func(payment *models.Payment)
	OnTimedOut  func()
	OnFailed    func(err error)
}

// Engine drives payment-confirmation polling sessions.
type Engine struct {
	gateway gateway.PaymentGateway
	cfg     Config
	clock   Clock
	logger  *zap.Logger
}

// NewEngine creates a polling engine
func NewEngine(gw gateway.PaymentGateway, cfg Config, clock Clock) *Engine {
	return &Engine{
		gateway: gw,
		cfg:     cfg,
		clock:   clock,
		logger:  util.GetLogger(),
	}
}

// Session is one polling run for one order. All ticks execute on a single
// goroutine, so status lookups never overlap.
type Session struct {
	orderID int64
	cancel  context.CancelFunc
	done    chan struct{}

	mu                  sync.Mutex
	phase               Phase
	attemptCount        int
	consecutiveFailures int
	lastError           string
	alive               bool
}

// Snapshot is a point-in-time copy of the session counters.
type Snapshot struct {
	OrderID             int64
	Phase               Phase
	AttemptCount        int
	ConsecutiveFailures int
	LastError           string
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		OrderID:             s.orderID,
		Phase:               s.phase,
		AttemptCount:        s.attemptCount,
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
	}
}

// Done is closed when the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop cancels the session. Safe to call at any point, including mid-lookup;
// a result arriving after Stop is discarded and no callback fires.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	terminal := s.phase.IsTerminal()
	s.alive = false
	s.mu.Unlock()

	s.cancel()
	if !terminal {
		util.PollingSessionsCancelledTotal.Inc()
	}
}

// Start opens a session for the order and begins polling. The first status
// check runs immediately; subsequent ticks follow the configured interval.
func (e *Engine) Start(ctx context.Context, orderID int64, cb Callbacks) *Session {
	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		orderID: orderID,
		cancel:  cancel,
		done:    make(chan struct{}),
		phase:   PhasePolling,
		alive:   true,
	}

	util.PollingSessionsStartedTotal.Inc()
	e.logger.Info("Polling session started",
		zap.Int64("order_id", orderID),
		zap.Duration("interval", e.cfg.TickInterval),
		zap.Int("attempt_budget", e.cfg.AttemptBudget))

	go e.run(runCtx, s, cb)
	return s
}

func (e *Engine) run(ctx context.Context, s *Session, cb Callbacks) {
	defer close(s.done)

	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	if e.tick(ctx, s, cb) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if e.tick(ctx, s, cb) {
				return
			}
		}
	}
}

// tick performs one attempt and reports whether the session is finished.
func (e *Engine) tick(ctx context.Context, s *Session, cb Callbacks) bool {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return true
	}
	s.attemptCount++
	attempt := s.attemptCount
	s.mu.Unlock()

	// Budget check precedes the lookup: the final tick declares timeout
	// without issuing another request.
	if attempt >= e.cfg.AttemptBudget {
		if e.finish(s, PhaseTimedOut, "") {
			e.logger.Warn("Polling timed out",
				zap.Int64("order_id", s.orderID),
				zap.Int("attempts", attempt))
			if cb.OnTimedOut != nil {
				cb.OnTimedOut()
			}
		}
		return true
	}

	util.PollingAttemptsTotal.Inc()
	payment, err := e.gateway.GetByOrder(ctx, s.orderID)
	if err != nil {
		return e.handleLookupError(s, cb, attempt, err)
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return true
	}
	s.consecutiveFailures = 0
	s.mu.Unlock()

	if payment.Status == models.PaymentStatusPaid {
		if e.finish(s, PhaseSucceeded, "") {
			e.logger.Info("Payment confirmed",
				zap.Int64("order_id", s.orderID),
				zap.Int64("payment_id", payment.ID),
				zap.Int("attempts", attempt))
			if cb.OnSucceeded != nil {
				cb.OnSucceeded(payment)
			}
		}
		return true
	}

	return false
}

func (e *Engine) handleLookupError(s *Session, cb Callbacks, attempt int, err error) bool {
	var transient *gateway.TransportError
	if errors.As(err, &transient) {
		util.PollingTransportErrorsTotal.Inc()

		s.mu.Lock()
		if !s.alive {
			s.mu.Unlock()
			return true
		}
		s.consecutiveFailures++
		s.lastError = err.Error()
		failures := s.consecutiveFailures
		s.mu.Unlock()

		if failures <= e.cfg.RetryBudget {
			e.logger.Warn("Payment status lookup failed, retrying next tick",
				zap.Int64("order_id", s.orderID),
				zap.Int("attempt", attempt),
				zap.Int("consecutive_failures", failures),
				zap.Error(err))
			return false
		}
	}

	// Retry budget exhausted, or a hard error such as payment-not-found.
	if e.finish(s, PhaseFailed, err.Error()) {
		e.logger.Error("Polling failed",
			zap.Int64("order_id", s.orderID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if cb.OnFailed != nil {
			cb.OnFailed(err)
		}
	}
	return true
}

// finish attempts the transition into a terminal phase. It returns false if
// the session was stopped or already terminal, in which case the caller must
// not fire a callback.
func (e *Engine) finish(s *Session, phase Phase, lastError string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive || s.phase.IsTerminal() {
		return false
	}
	s.phase = phase
	if lastError != "" {
		s.lastError = lastError
	}
	util.PollingOutcomesTotal.WithLabelValues(string(phase)).Inc()
	return true
}
