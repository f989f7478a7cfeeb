package bridge

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/log"
	"github.com/evgeniums/hatn-sub006/pkg/taskctx"
	"github.com/evgeniums/hatn-sub006/pkg/thread"
)

// Handler is an in-process (service, method) implementation. It
// receives the task context the bridge built for this call (carrying
// the resolved env and a logger, per spec.md §4.5) and the decoded
// request message, and returns a response message to be marshaled back
// to JSON.
type Handler func(ctx *taskctx.Context, request any) (response any, err error)

// Builder decodes a JSON payload into the typed message the matching
// Handler expects, per the bridge's "message-type names → JSON→unit
// builders" registry.
type Builder func(data []byte) (any, error)

type serviceMethod struct {
	service string
	method  string
}

// Bridge is the synchronous exec(service, method, request, callback)
// facade of spec.md §4.5.
type Bridge struct {
	mu       sync.RWMutex
	handlers map[serviceMethod]Handler
	builders map[string]Builder
	envs     *EnvRegistry
}

// New creates a Bridge resolving envs against envs.
func New(envs *EnvRegistry) *Bridge {
	return &Bridge{
		handlers: make(map[serviceMethod]Handler),
		builders: make(map[string]Builder),
		envs:     envs,
	}
}

// RegisterHandler adds a handler for (service, method).
func (b *Bridge) RegisterHandler(service, method string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[serviceMethod{service, method}] = h
}

// RegisterBuilder adds a JSON→message builder for messageType.
func (b *Bridge) RegisterBuilder(messageType string, builder Builder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builders[messageType] = builder
}

// Exec resolves service/method and messageType, decodes requestJSON,
// invokes the handler under a task-context guard carrying the resolved
// env and a logger, and returns the handler's response marshaled to
// JSON. Callback-style async dispatch is represented here by Exec's
// ordinary return, matching the underlying handler which in this
// Go port is itself synchronous; the "looks synchronous" framing of
// spec.md §4.5 survives because callers never see the thread hand-off
// that pkg/thread performs underneath pkg/rpc's dispatcher.
func (b *Bridge) Exec(service, method, messageType, envName string, requestJSON []byte) ([]byte, error) {
	b.mu.RLock()
	h, hasHandler := b.handlers[serviceMethod{service, method}]
	builder, hasBuilder := b.builders[messageType]
	b.mu.RUnlock()

	if !hasHandler {
		return nil, UnknownBridgeService(service + "/" + method)
	}
	if !hasBuilder {
		return nil, UnknownBridgeMessage(messageType)
	}

	request, err := builder(requestJSON)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "decode bridge request", err)
	}

	env := b.envs.Resolve(envName)
	ctx := b.buildContext(env)

	owner := taskctx.Binder(thread.Current())
	if owner == nil || reflect.ValueOf(owner).IsNil() {
		owner = newAdHocBinder()
	}

	var response any
	var handlerErr error
	taskctx.Guard(owner, ctx, func() {
		response, handlerErr = h(ctx, request)
	})
	if handlerErr != nil {
		log.Errorf("bridge exec "+service+"/"+method, handlerErr)
		return nil, handlerErr
	}

	out, err := json.Marshal(response)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "encode bridge response", err)
	}
	return out, nil
}

// EnvSubContext is the sub-context type handlers fetch via
// taskctx.Get[*EnvSubContext] to reach the resolved env.
type EnvSubContext struct {
	Env *Env
}

// buildContext binds the resolved env as an *EnvSubContext and a logger,
// tagged component=bridge, as a *zerolog.Logger.
func (b *Bridge) buildContext(env *Env) *taskctx.Context {
	ctx := taskctx.New()
	taskctx.Put(ctx, &EnvSubContext{Env: env})
	logger := log.WithComponent("bridge")
	taskctx.Put(ctx, &logger)
	return ctx
}

// adHocBinder satisfies taskctx.Binder for an Exec call that did not
// originate from a pkg/thread.Thread event loop -- e.g. a bridge call
// made directly from a CLI command. It has no identity beyond the
// lifetime of one Exec call.
type adHocBinder struct {
	mu    sync.Mutex
	slots map[reflect.Type]any
}

func newAdHocBinder() *adHocBinder {
	return &adHocBinder{slots: make(map[reflect.Type]any)}
}

func (a *adHocBinder) BindSlot(t reflect.Type, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[t] = value
}

func (a *adHocBinder) UnbindSlot(t reflect.Type) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.slots, t)
}
