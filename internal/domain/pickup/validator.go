package pickup

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/baminaj/storefront/internal/domain/order"
)

// State is the scan terminal's position in its validation flow.
type State string

const (
	StateIdle      State = "idle"
	StateLookingUp State = "looking_up"
	StateFound     State = "found"
	StateNotFound  State = "not_found"
)

// ScanResult is what the terminal shows staff after a scan.
type ScanResult struct {
	State State
	// Order is set when State == StateFound, regardless of whether the order
	// is still pending or already completed; staff see the full contents
	// either way.
	Order *order.Order
}

// Validator is the per-terminal scan session state machine. A camera feed
// re-delivers the same code many times per second while a receipt is held
// steady, so scans are de-duplicated against the immediately-previous value
// until the operator explicitly resets for the next customer.
//
// Validator is not safe for concurrent use; each terminal session owns one.
// Cross-terminal mutual exclusion comes from the repository's conditional
// write, not from this type.
type Validator struct {
	orders    order.Repository
	prefilter *Prefilter

	state    State
	lastScan string
	current  *order.Order
}

// NewValidator creates an idle terminal session. prefilter may be nil.
func NewValidator(orders order.Repository, prefilter *Prefilter) *Validator {
	return &Validator{
		orders:    orders,
		prefilter: prefilter,
		state:     StateIdle,
	}
}

// State returns the session's current state.
func (v *Validator) State() State { return v.state }

// Scan handles a decoded code from the scanner feed. A repeat of the
// immediately-previous code does not re-trigger a lookup; the current result
// is returned unchanged.
func (v *Validator) Scan(ctx context.Context, code string) (*ScanResult, error) {
	if code == v.lastScan && v.state != StateIdle {
		return &ScanResult{State: v.state, Order: v.current}, nil
	}
	v.lastScan = code
	v.state = StateLookingUp
	v.current = nil

	// The prefilter only ever short-circuits codes that are definitely not
	// committed order ids; anything it lets through still gets the
	// authoritative read below.
	if v.prefilter != nil && !v.prefilter.MightContain(code) {
		v.state = StateNotFound
		return &ScanResult{State: v.state}, nil
	}

	o, err := v.orders.GetByID(ctx, code)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			v.state = StateNotFound
			return &ScanResult{State: v.state}, nil
		}
		v.state = StateIdle
		return nil, errors.Wrap(err, "look up scanned order")
	}

	v.state = StateFound
	v.current = o
	return &ScanResult{State: v.state, Order: o}, nil
}

// Dispense confirms the hand-off for the currently displayed order. It is
// only legal in StateFound; the underlying transition re-reads and uses the
// repository's conditional write, so a stale display can never cause a
// second dispense.
func (v *Validator) Dispense(ctx context.Context, staffID string) (*order.Order, error) {
	if v.state != StateFound || v.current == nil {
		return nil, errors.New("no order on display")
	}

	o, err := Dispense(ctx, v.orders, v.current.ID, staffID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	v.current = o
	return o, nil
}

// Reset discards the current order and the de-duplication marker, returning
// the terminal to idle for the next customer.
func (v *Validator) Reset() {
	v.state = StateIdle
	v.lastScan = ""
	v.current = nil
}
