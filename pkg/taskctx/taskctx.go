// Package taskctx implements hatn's per-operation task context: a
// heterogeneous bag of typed sub-contexts, identified by pointer
// identity, shared by every handler participating in one top-level
// async operation and bound to the owning thread's slot for the
// duration of each handler invocation (spec.md §4.1).
//
// Grounded on original_source/common/include/hatn/common/taskcontext.h.
// The C++ version relies on process-wide thread-local storage keyed by
// sub-context type; Go has no portable per-OS-thread storage, so this
// package keys the "thread-local slot" off the *owning* pkg/thread.Thread
// instead, since every Thread in this design is bound to exactly one
// goroutine for its lifetime (see pkg/thread) -- the same single-owner
// invariant the C++ thread-local slot assumes.
package taskctx

import "reflect"

// Binder is the minimal surface taskctx needs from a thread: a place to
// store "what sub-context types are currently bound". pkg/thread.Thread
// implements this. The methods are exported because Go's interface
// satisfaction rules require cross-package implementers to match
// exported method names -- an unexported method is implicitly qualified
// by its declaring package and could never be implemented from outside it.
type Binder interface {
	BindSlot(t reflect.Type, value any)
	UnbindSlot(t reflect.Type)
}

// Context is a type-indexed bag of sub-contexts. Identity is pointer
// identity: two *Context values are the same operation's context iff
// they are the same pointer.
type Context struct {
	values map[reflect.Type]any
	owner  Binder
}

// New creates an empty Context.
func New() *Context {
	return &Context{values: make(map[reflect.Type]any)}
}

// Put installs a sub-context into the bag, keyed by its dynamic type.
func Put[T any](c *Context, value T) {
	c.values[reflect.TypeOf(value)] = value
}

// Get performs an O(1) lookup of a sub-context by type. The second
// return value is false if no sub-context of type T was installed.
func Get[T any](c *Context) (T, bool) {
	var zero T
	v, ok := c.values[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// MustGet is Get but panics if the sub-context is absent, for call sites
// that treat the sub-context as a mandatory part of the operation
// (e.g. the env or logger sub-context inside an RPC handler).
func MustGet[T any](c *Context) T {
	v, ok := Get[T](c)
	if !ok {
		var zero T
		panic("taskctx: missing required sub-context of type " + reflect.TypeOf(zero).String())
	}
	return v
}

// BeforeThreadProcessing binds every sub-context type this Context
// carries into owner's thread-local-style slots, making them reachable
// via the owner (for a pkg/thread.Thread, its LocalValue method) for the
// duration of the handler invocation. It must
// be paired with AfterThreadProcessing, normally via a Guard.
func (c *Context) BeforeThreadProcessing(owner Binder) {
	c.owner = owner
	for t, v := range c.values {
		owner.BindSlot(t, v)
	}
}

// AfterThreadProcessing clears every slot this Context touched.
func (c *Context) AfterThreadProcessing() {
	if c.owner == nil {
		return
	}
	for t := range c.values {
		c.owner.UnbindSlot(t)
	}
	c.owner = nil
}

// Guard binds a Context around the execution of fn, guaranteeing the
// thread-local slots are cleared even if fn panics -- the Go equivalent
// of the before/after pair spec.md §4.1 requires every handler
// invocation to be wrapped by.
func Guard(owner Binder, c *Context, fn func()) {
	c.BeforeThreadProcessing(owner)
	defer c.AfterThreadProcessing()
	fn()
}
