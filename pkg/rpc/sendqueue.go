package rpc

import (
	"sync"

	"github.com/evgeniums/hatn-sub006/pkg/metrics"
	"github.com/evgeniums/hatn-sub006/pkg/queue"
)

// SendQueue orders outbound Requests by Priority before handing them to
// a single Client connection, one pkg/queue.Mutex lane per priority
// level, drained high-to-low -- the same per-lane queue.Mutex this
// module already uses elsewhere, just instantiated three times instead
// of once.
type SendQueue struct {
	client *Client
	lanes  [3]*queue.Mutex[*Request]

	mu      sync.Mutex
	wake    chan struct{}
	stopped bool
}

// NewSendQueue creates a SendQueue that drains into client.
func NewSendQueue(client *Client) *SendQueue {
	sq := &SendQueue{
		client: client,
		wake:   make(chan struct{}, 1),
	}
	for i := range sq.lanes {
		sq.lanes[i] = queue.NewMutex[*Request](true)
	}
	return sq
}

// Enqueue adds req to its priority's lane. Cancelled requests are
// dropped without being sent.
func (sq *SendQueue) Enqueue(req *Request) {
	sq.lanes[req.Priority].Push(req)
	select {
	case sq.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue on the calling goroutine until Stop is called,
// always preferring the highest non-empty priority lane.
func (sq *SendQueue) Run() {
	for {
		req, ok := sq.popHighestPriority()
		if !ok {
			sq.mu.Lock()
			stopped := sq.stopped
			sq.mu.Unlock()
			if stopped {
				return
			}
			<-sq.wake
			continue
		}
		if req.State() == Cancelled {
			continue
		}
		metrics.QueueDepth.WithLabelValues("rpc_send").Set(float64(sq.depth()))
		resp, err := sq.client.Call(req)
		req.complete(&Response{Payload: resp, Err: err})
	}
}

// Stop signals Run to exit once its lanes drain.
func (sq *SendQueue) Stop() {
	sq.mu.Lock()
	sq.stopped = true
	sq.mu.Unlock()
	select {
	case sq.wake <- struct{}{}:
	default:
	}
}

func (sq *SendQueue) popHighestPriority() (*Request, bool) {
	for p := High; p >= Low; p-- {
		if v, ok := sq.lanes[p].PopItem(); ok {
			return v, true
		}
	}
	return nil, false
}

func (sq *SendQueue) depth() int {
	n := 0
	for _, l := range sq.lanes {
		n += l.Size()
	}
	return n
}
