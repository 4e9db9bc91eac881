package upi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrAlreadyActive = errors.New("another payment flow is already active")
	ErrBadArgs       = errors.New("upi id and a positive amount are required")
	ErrNoUPIApp      = errors.New("no upi app found to handle payment")
	ErrIntentError   = errors.New("failed to dispatch payment intent")

	// ErrNoHandler is what a Dispatcher returns when no installed app
	// can take the intent. The bridge maps it to ErrNoUPIApp.
	ErrNoHandler = errors.New("no handler for intent")
)

// Dispatcher hands a payment URI to the platform.
type Dispatcher interface {
	Dispatch(uri string) error
}

// Result is the bridge's answer once the handler app comes back.
// Status is one of success, submitted, failure, cancelled, unknown.
type Result struct {
	Status string `json:"status"`
	Raw    string `json:"raw"`
}

type bridgeState int

const (
	stateIdle bridgeState = iota
	stateAwaitingResult
)

// Bridge owns the single in-flight payment slot on the mobile side.
// Start occupies the slot, every completion path frees it; a second
// Start while a flow is pending is rejected rather than queued.
type Bridge struct {
	mu         sync.Mutex
	state      bridgeState
	dispatcher Dispatcher
}

func NewBridge(d Dispatcher) *Bridge {
	return &Bridge{dispatcher: d}
}

func (b *Bridge) Start(req IntentRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateAwaitingResult {
		return ErrAlreadyActive
	}
	if strings.TrimSpace(req.UPIID) == "" || req.Amount <= 0 {
		return ErrBadArgs
	}

	b.state = stateAwaitingResult
	if err := b.dispatcher.Dispatch(req.URI()); err != nil {
		b.state = stateIdle
		if errors.Is(err, ErrNoHandler) {
			return ErrNoUPIApp
		}
		return fmt.Errorf("%w: %v", ErrIntentError, err)
	}
	return nil
}

// Complete parses the handler app's free-text response and frees the
// slot unconditionally.
func (b *Bridge) Complete(raw string) Result {
	b.mu.Lock()
	b.state = stateIdle
	b.mu.Unlock()

	return Result{Status: ParseStatus(raw), Raw: strings.TrimSpace(raw)}
}

// Cancel frees the slot when the platform reports the user backed out
// before the handler app produced a response.
func (b *Bridge) Cancel() Result {
	b.mu.Lock()
	b.state = stateIdle
	b.mu.Unlock()

	return Result{Status: "cancelled", Raw: ""}
}

// ParseStatus classifies a handler app's free-text response by
// case-insensitive substring match.
func ParseStatus(resp string) string {
	lower := strings.ToLower(resp)
	switch {
	case strings.Contains(lower, "success"):
		return "success"
	case strings.Contains(lower, "submitted"), strings.Contains(lower, "pending"):
		return "submitted"
	case strings.Contains(lower, "failure"), strings.Contains(lower, "failed"), strings.Contains(lower, "cancel"):
		return "failure"
	default:
		return "unknown"
	}
}
