package rpc

import (
	"strings"
	"time"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/log"
	"github.com/evgeniums/hatn-sub006/pkg/metrics"
)

// Handler processes one decoded Request and returns the response
// payload to send back, or an error.
type Handler func(req *Request) ([]byte, error)

// methodKey is service/method, matching the "/service/Method" shape
// cuemby-warren's gRPC full-method strings use, generalized to hatn's
// own (service, method) pair instead of a protobuf FullMethod string.
type methodKey struct {
	service string
	method  string
}

// Dispatcher routes decoded Requests to registered Handlers by
// (service, method), classifying each registration as read-only or
// read-write the way cuemby-warren/pkg/api/interceptor.go's
// isReadOnlyMethod classifies gRPC methods by name prefix.
type Dispatcher struct {
	handlers map[methodKey]registeredHandler
}

type registeredHandler struct {
	fn       Handler
	readOnly bool
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[methodKey]registeredHandler)}
}

// Register adds a handler for service/method.
func (d *Dispatcher) Register(service, method string, fn Handler) {
	d.handlers[methodKey{service, method}] = registeredHandler{fn: fn, readOnly: isReadOnlyMethod(method)}
}

// Dispatch looks up and invokes the handler for req, recording
// RPCRequestsTotal/RPCRequestDurationSeconds per spec.md §8's
// observability requirements.
func (d *Dispatcher) Dispatch(req *Request) ([]byte, error) {
	start := time.Now()
	h, ok := d.handlers[methodKey{req.Service, req.Method}]
	if !ok {
		metrics.RPCRequestsTotal.WithLabelValues(req.Service, req.Method, "not_found").Inc()
		return nil, herr.New(herr.InvalidInput, "unknown service/method: "+req.Service+"/"+req.Method)
	}
	resp, err := h.fn(req)
	metrics.RPCRequestDurationSeconds.WithLabelValues(req.Service, req.Method).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		log.Errorf("rpc dispatch "+req.Service+"/"+req.Method, err)
	}
	metrics.RPCRequestsTotal.WithLabelValues(req.Service, req.Method, status).Inc()
	return resp, err
}

// isReadOnlyMethod classifies a method name by its verb prefix, the
// way interceptor.go's isReadOnlyMethod does for gRPC FullMethod
// strings.
func isReadOnlyMethod(method string) bool {
	readOnlyPrefixes := []string{"List", "Get", "Find", "Count", "Describe", "Show", "Watch"}
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}
