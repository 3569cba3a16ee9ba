package core

import (
	"fmt"
	"sync"
	"time"
)

// RequestState is the lifecycle stage of one tracked request.
type RequestState string

const (
	StateReceived  RequestState = "received"
	StateVerifying RequestState = "verifying"
	StateExecuting RequestState = "executing"
	StateSettling  RequestState = "settling"
	StateCompleted RequestState = "completed"
	StateFailed    RequestState = "failed"
	StateCancelled RequestState = "cancelled"
)

// terminal reports whether no further state transitions are expected.
func (s RequestState) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// PaymentView is the read-only payment summary a request carries once the
// gate has verified an envelope.
type PaymentView struct {
	Rail         string
	RequiredUSD  float64
	AmountAtomic string
	Currency     string
	PaymentID    string
}

// Request is the lifecycle record for one tools/call. The cancel signal is
// a one-shot channel so handlers can select on it while the manager keeps
// flipping idempotent.
type Request struct {
	ID            string
	Method        string
	Tool          string
	ProgressToken interface{}

	mu         sync.Mutex
	state      RequestState
	cancelled  bool
	cancelCh   chan struct{}
	payment    *PaymentView
	startedAt  time.Time
	finishedAt time.Time
}

func newRequest(id, method string) *Request {
	return &Request{
		ID:        id,
		Method:    method,
		state:     StateReceived,
		cancelCh:  make(chan struct{}),
		startedAt: time.Now(),
	}
}

// State returns the current lifecycle stage.
func (r *Request) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState moves the request to a new stage. Terminal stages stick.
func (r *Request) SetState(s RequestState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.terminal() {
		return
	}
	r.state = s
	if s.terminal() {
		r.finishedAt = time.Now()
	}
}

// Cancel flips the one-shot cancel signal. Safe to call repeatedly.
func (r *Request) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return
	}
	r.cancelled = true
	close(r.cancelCh)
}

// Cancelled reports whether the cancel signal was flipped.
func (r *Request) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// CancelChan returns the channel closed when the request is cancelled.
func (r *Request) CancelChan() <-chan struct{} {
	return r.cancelCh
}

// SetPayment attaches the verified payment summary.
func (r *Request) SetPayment(p *PaymentView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payment = p
}

// Payment returns the verified payment summary, or nil for free calls.
func (r *Request) Payment() *PaymentView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payment
}

// Elapsed returns the wall time from registration to completion, or to now
// while the request is still live.
func (r *Request) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finishedAt.IsZero() {
		return r.finishedAt.Sub(r.startedAt)
	}
	return time.Since(r.startedAt)
}

// DefaultRetention keeps completed requests visible long enough to absorb
// late cancellation notifications before eviction.
const DefaultRetention = 5 * time.Second

// RequestManager tracks in-flight requests by id and owns their cancel
// signals. Completed entries linger for the retention window and are swept
// opportunistically on the next mutation.
type RequestManager struct {
	mu        sync.Mutex
	requests  map[string]*Request
	expiry    map[string]time.Time
	retention time.Duration
}

// NewRequestManager creates a manager with the given retention window for
// completed requests. Zero or negative retention uses DefaultRetention.
func NewRequestManager(retention time.Duration) *RequestManager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RequestManager{
		requests:  make(map[string]*Request),
		expiry:    make(map[string]time.Time),
		retention: retention,
	}
}

// Register creates a fresh request record for id. A live duplicate id is a
// client error and is rejected.
func (m *RequestManager) Register(id, method string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()

	if existing, ok := m.requests[id]; ok {
		if _, done := m.expiry[id]; !done {
			return nil, fmt.Errorf("request id %q is already in flight (state %s)", id, existing.State())
		}
		// Completed entry inside its retention window: the id is being
		// reused by the client, replace it.
		delete(m.requests, id)
		delete(m.expiry, id)
	}

	req := newRequest(id, method)
	m.requests[id] = req
	return req, nil
}

// MarkCancelled flips the cancel signal for id. Unknown ids are silently
// ignored per MCP convention; completed ids inside the retention window are
// absorbed the same way.
func (m *RequestManager) MarkCancelled(id string) {
	m.mu.Lock()
	req, ok := m.requests[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	req.Cancel()
}

// Complete transitions the request to a terminal state and schedules its
// eviction after the retention window.
func (m *RequestManager) Complete(id string, state RequestState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return
	}
	req.SetState(state)
	m.expiry[id] = time.Now().Add(m.retention)
	m.sweepLocked()
}

// Get returns the tracked request for id.
func (m *RequestManager) Get(id string) (*Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	return req, ok
}

// Len counts tracked requests, including retained completed ones.
func (m *RequestManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *RequestManager) sweepLocked() {
	now := time.Now()
	for id, deadline := range m.expiry {
		if now.After(deadline) {
			delete(m.requests, id)
			delete(m.expiry, id)
		}
	}
}
