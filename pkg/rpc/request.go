package rpc

import (
	"sync"
	"time"

	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/objectid"
)

// Priority is the client-side send-queue priority of a Request, per
// spec.md §3.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// State is a Request's lifecycle state, per spec.md §4.4.2.
type State int

const (
	Pending State = iota
	Serialized
	InFlight
	Done
	Cancelled
	TimedOut
)

// Wire field numbers for the request unit. AuthHeader/MethodAuth/Payload
// are assigned lower numbers than the header fields so that
// (*dataunit.Unit).Marshal's fixed ascending-field-number order
// naturally produces the wire layout auth ‖ methodAuth ‖ payload ‖
// header that DESIGN.md's Open Question decision fixes -- no manual
// buffer concatenation is needed, the codec's own determinism supplies it.
const (
	fieldAuthHeader  uint32 = 1
	fieldMethodAuth  uint32 = 2
	fieldPayload     uint32 = 3
	fieldRequestID   uint32 = 10
	fieldService     uint32 = 11
	fieldMethod      uint32 = 12
	fieldTopic       uint32 = 13
	fieldTenancy     uint32 = 14
	fieldPriority    uint32 = 15
)

// Response is what a Request completes with.
type Response struct {
	Payload []byte
	Err     error
}

// Request is a client-side outbound call: priority, timeout, method/
// service identifiers, tenancy/topic, session binding, message body,
// and a state flag, per spec.md §3.
type Request struct {
	ID       objectid.ObjectID
	Service  string
	Method   string
	Topic    string
	Tenancy  string
	Priority Priority
	Timeout  time.Duration

	AuthHeader []byte
	MethodAuth []byte
	Payload    []byte

	mu    sync.Mutex
	state State
	done  chan *Response
}

// NewRequest builds a Pending request with a fresh request id.
func NewRequest(service, method, topic, tenancy string, priority Priority, timeout time.Duration, payload []byte) *Request {
	return &Request{
		ID:       objectid.New(),
		Service:  service,
		Method:   method,
		Topic:    topic,
		Tenancy:  tenancy,
		Priority: priority,
		Timeout:  timeout,
		Payload:  payload,
		state:    Pending,
		done:     make(chan *Response, 1),
	}
}

// State returns the request's current state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// buffers returns the scattered segments in the exact order the spec's
// wire format requires: auth ‖ methodAuth ‖ payload ‖ header. It exists
// to document that order explicitly even though Marshal derives it from
// field-number ordering.
func (r *Request) buffers() [][]byte {
	return [][]byte{r.AuthHeader, r.MethodAuth, r.Payload, r.headerUnit().Marshal()}
}

func (r *Request) headerUnit() *dataunit.Unit {
	h := dataunit.New("request_header")
	h.SetBytes(fieldRequestID, r.ID.Bytes())
	h.SetString(fieldService, r.Service)
	h.SetString(fieldMethod, r.Method)
	h.SetString(fieldTopic, r.Topic)
	h.SetString(fieldTenancy, r.Tenancy)
	h.SetUint(fieldPriority, uint64(r.Priority))
	return h
}

// Marshal builds the full request_unit wire Unit in one pass, whose
// Marshal() byte order matches buffers()'s documented concatenation
// because of the field-number assignment above.
func (r *Request) Marshal() *dataunit.Unit {
	u := r.headerUnit()
	u.Name = "request_unit"
	if r.AuthHeader != nil {
		u.SetBytes(fieldAuthHeader, r.AuthHeader)
	}
	if r.MethodAuth != nil {
		u.SetBytes(fieldMethodAuth, r.MethodAuth)
	}
	if r.Payload != nil {
		u.SetBytes(fieldPayload, r.Payload)
	}
	return u
}

// DecodeRequest parses a request_unit frame body back into a Request.
func DecodeRequest(data []byte) (*Request, error) {
	u, err := dataunit.Unmarshal("request_unit", data)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "decode request frame", err)
	}
	r := &Request{state: Pending, done: make(chan *Response, 1)}
	if f, ok := u.Get(fieldRequestID); ok {
		if id, err := objectid.FromBytes(f.Bytes); err == nil {
			r.ID = id
		}
	}
	if f, ok := u.Get(fieldService); ok {
		r.Service = f.String
	}
	if f, ok := u.Get(fieldMethod); ok {
		r.Method = f.String
	}
	if f, ok := u.Get(fieldTopic); ok {
		r.Topic = f.String
	}
	if f, ok := u.Get(fieldTenancy); ok {
		r.Tenancy = f.String
	}
	if f, ok := u.Get(fieldPriority); ok {
		r.Priority = Priority(f.Uint)
	}
	if f, ok := u.Get(fieldAuthHeader); ok {
		r.AuthHeader = f.Bytes
	}
	if f, ok := u.Get(fieldMethodAuth); ok {
		r.MethodAuth = f.Bytes
	}
	if f, ok := u.Get(fieldPayload); ok {
		r.Payload = f.Bytes
	}
	return r, nil
}

// markSerialized/markInFlight advance the state machine; called by the
// client send loop.
func (r *Request) markSerialized() bool { return r.transition(Pending, Serialized) }
func (r *Request) markInFlight() bool   { return r.transition(Serialized, InFlight) }

func (r *Request) transition(from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	r.state = to
	return true
}

// complete delivers resp to the waiting caller and marks the request Done.
func (r *Request) complete(resp *Response) {
	r.mu.Lock()
	if r.state == Cancelled || r.state == Done || r.state == TimedOut {
		r.mu.Unlock()
		return
	}
	r.state = Done
	r.mu.Unlock()
	r.done <- resp
}

// Cancel cancels the request. Per the Open Question resolved in
// DESIGN.md: a request not yet handed to the sender (still Pending)
// cancels successfully and is never transmitted; a request already
// InFlight is marked Cancelled but its response (if any arrives) is
// discarded by the caller.
func (r *Request) Cancel() error {
	r.mu.Lock()
	if r.state == Done || r.state == Cancelled || r.state == TimedOut {
		r.mu.Unlock()
		return herr.New(herr.InvalidInput, "request already finished")
	}
	r.state = Cancelled
	r.mu.Unlock()
	select {
	case r.done <- &Response{Err: herr.New(herr.Cancelled, "request cancelled")}:
	default:
	}
	return nil
}

// Wait blocks until the request completes, times out, or is cancelled.
func (r *Request) Wait() (*Response, error) {
	var timer <-chan time.Time
	if r.Timeout > 0 {
		t := time.NewTimer(r.Timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case resp := <-r.done:
		return resp, resp.Err
	case <-timer:
		r.mu.Lock()
		if r.state != Done && r.state != Cancelled {
			r.state = TimedOut
		}
		r.mu.Unlock()
		return nil, herr.New(herr.Timeout, "request timed out")
	}
}
