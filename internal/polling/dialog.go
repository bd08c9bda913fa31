package polling

import (
	"fmt"
	"time"
)

// DialogState is what the waiting dialog renders.
type DialogState struct {
	IsWaiting        bool   `json:"is_waiting"`
	Phase            string `json:"phase"`
	RemainingSeconds int    `json:"remaining_seconds"`
	AttemptsLabel    string `json:"attempts_label"`
	LastError        string `json:"last_error,omitempty"`
}

// DialogStateSync projects a session onto DialogState. The countdown derives
// from the attempt counter and the tick interval, never from its own timer,
// so it cannot drift from the polling budget.
type DialogStateSync struct {
	session *Session
	cfg     Config
}

// NewDialogStateSync creates a projection for a session
func NewDialogStateSync(session *Session, cfg Config) *DialogStateSync {
	return &DialogStateSync{session: session, cfg: cfg}
}

// State returns the current dialog state.
func (d *DialogStateSync) State() DialogState {
	snap := d.session.Snapshot()

	remaining := (d.cfg.AttemptBudget - snap.AttemptCount) * int(d.cfg.TickInterval/time.Second)
	if remaining < 0 {
		remaining = 0
	}

	return DialogState{
		IsWaiting:        snap.Phase == PhasePolling,
		Phase:            string(snap.Phase),
		RemainingSeconds: remaining,
		AttemptsLabel:    fmt.Sprintf("%d/%d", snap.AttemptCount, d.cfg.AttemptBudget),
		LastError:        snap.LastError,
	}
}
