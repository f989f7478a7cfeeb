// Package thread implements hatn's cooperative per-thread event loop:
// one dedicated goroutine pinned to an OS thread (runtime.LockOSThread),
// draining an MPSC task queue in bounded batches and servicing installed
// timers, per spec.md §3 (Thread) and §4.2 (Thread and Queue).
//
// Grounded on original_source/common/include/hatn/common/{thread.h,
// threadwithqueueimpl.h,threadqueueinterface.h}; the drain-loop shape
// (buffered channel, non-blocking post, graceful stop channel) mirrors
// cuemby-warren/pkg/events/events.go's broadcast loop.
package thread

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/log"
	"github.com/evgeniums/hatn-sub006/pkg/metrics"
	"github.com/evgeniums/hatn-sub006/pkg/queue"
)

// State is a Thread's lifecycle state per spec.md §3.
type State int

const (
	Constructed State = iota
	Started
	Stopped
)

// task is one posted unit of work.
type task struct {
	fn   func()
	done chan struct{}
}

// timerEntry is one installed timer.
type timerEntry struct {
	id       uint64
	period   time.Duration
	runOnce  bool
	handler  func() bool
	cancelCh chan struct{}
}

// Thread owns an event loop and a task queue, identified by a 1-16 byte
// ASCII ID as required by spec.md §3.
type Thread struct {
	id    string
	state atomic.Int32

	tasks *queue.MPSC[task]
	wake  chan struct{}
	stop  chan struct{}
	done  chan struct{}

	batchSize int // 0 = unlimited

	slotsMu sync.RWMutex
	slots   map[reflect.Type]any

	timersMu sync.Mutex
	timers   map[uint64]*timerEntry
	nextTmr  atomic.Uint64
}

// New constructs a Thread with the given ID (must be 1-16 ASCII bytes)
// and a batch size controlling how many queued tasks run per loop
// iteration before the loop re-posts itself to let the I/O reactor run
// (0 means unlimited).
func New(id string, batchSize int) (*Thread, error) {
	if len(id) < 1 || len(id) > 16 {
		return nil, herr.New(herr.InvalidInput, fmt.Sprintf("thread id must be 1-16 bytes, got %d", len(id)))
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return nil, herr.New(herr.InvalidInput, "thread id must be ASCII")
		}
	}
	t := &Thread{
		id:        id,
		tasks:     queue.NewMPSC[task](1024, true),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		batchSize: batchSize,
		slots:     make(map[reflect.Type]any),
		timers:    make(map[uint64]*timerEntry),
	}
	return t, nil
}

// ID returns the thread's identity.
func (t *Thread) ID() string { return t.id }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State { return State(t.state.Load()) }

// Start spins up the loop goroutine. The goroutine locks itself to its
// OS thread for its entire lifetime, matching the one-thread-one-loop
// model spec.md §5 describes.
func (t *Thread) Start() {
	if !t.state.CompareAndSwap(int32(Constructed), int32(Started)) {
		return
	}
	go t.run()
}

func (t *Thread) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	register(t)
	defer unregister(t)

	for {
		select {
		case <-t.stop:
			t.drainAndClear()
			return
		case <-t.wake:
			t.processBatch()
		case <-time.After(10 * time.Millisecond):
			// Periodic wake so installed timers fire even with no
			// posted work.
			t.fireDueTimers()
		}
	}
}

// processBatch drains up to batchSize tasks, then (if more remain)
// re-signals itself so the select loop yields back to the reactor
// instead of starving it, per spec.md §4.2.
func (t *Thread) processBatch() {
	n := 0
	for {
		if t.batchSize > 0 && n >= t.batchSize {
			t.signal()
			return
		}
		tk, ok := t.tasks.PopItem()
		if !ok {
			return
		}
		metrics.QueueDepth.WithLabelValues(t.id).Set(float64(t.tasks.Size()))
		t.runTask(tk)
		n++
		metrics.ThreadTasksProcessed.WithLabelValues(t.id).Inc()
	}
}

func (t *Thread) runTask(tk task) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error().Str("thread", t.id).Interface("panic", r).
				Bytes("stack", debug.Stack()).Msg("task panic recovered")
		}
		if tk.done != nil {
			close(tk.done)
		}
	}()
	tk.fn()
}

func (t *Thread) drainAndClear() {
	t.tasks.Clear()
	t.timersMu.Lock()
	for _, tm := range t.timers {
		close(tm.cancelCh)
	}
	t.timers = make(map[uint64]*timerEntry)
	t.timersMu.Unlock()
}

func (t *Thread) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// ExecAsync posts fn to run on this thread's loop without waiting for
// completion.
func (t *Thread) ExecAsync(fn func()) {
	t.tasks.Push(task{fn: fn})
	metrics.QueueDepth.WithLabelValues(t.id).Set(float64(t.tasks.Size()))
	t.signal()
}

// ExecSync posts fn and blocks until it completes or timeoutMs elapses,
// returning herr.Timeout in the latter case.
func (t *Thread) ExecSync(fn func(), timeoutMs int) error {
	done := make(chan struct{})
	t.tasks.Push(task{fn: fn, done: done})
	t.signal()

	if timeoutMs <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return herr.New(herr.Timeout, "execSync timed out")
	}
}

// StopSync posts a final no-op through ExecSync so any already-queued
// handler finishes first, then stops the loop and clears the queue --
// the "synchronous stop-and-clear" of spec.md §4.2.
func (t *Thread) StopSync(timeoutMs int) error {
	if !t.state.CompareAndSwap(int32(Started), int32(Stopped)) {
		return nil
	}
	err := t.ExecSync(func() {}, timeoutMs)
	close(t.stop)
	<-t.done
	return err
}

// InstallTimer installs a periodic (or one-shot) timer on this thread's
// loop. The handler runs on the thread's own goroutine; returning false
// uninstalls it. UninstallTimer with the returned id removes it early.
func (t *Thread) InstallTimer(period time.Duration, handler func() bool, runOnce bool) uint64 {
	id := t.nextTmr.Add(1)
	entry := &timerEntry{id: id, period: period, runOnce: runOnce, handler: handler, cancelCh: make(chan struct{})}

	t.timersMu.Lock()
	t.timers[id] = entry
	t.timersMu.Unlock()

	go t.driveTimer(entry)
	return id
}

func (t *Thread) driveTimer(entry *timerEntry) {
	ticker := time.NewTicker(entry.period)
	defer ticker.Stop()
	for {
		select {
		case <-entry.cancelCh:
			return
		case <-ticker.C:
			resultCh := make(chan bool, 1)
			t.ExecAsync(func() {
				resultCh <- entry.handler()
			})
			select {
			case <-entry.cancelCh:
				return
			case keepGoing := <-resultCh:
				if entry.runOnce || !keepGoing {
					t.UninstallTimer(entry.id, false)
					return
				}
			}
		}
	}
}

// UninstallTimer removes the timer with the given id and closes its
// cancel channel. The wait argument has no effect: UninstallTimer never
// blocks until the timer's goroutine has stopped, so a handler already
// posted to the loop may still run once.
func (t *Thread) UninstallTimer(id uint64, wait bool) {
	t.timersMu.Lock()
	entry, ok := t.timers[id]
	if ok {
		delete(t.timers, id)
	}
	t.timersMu.Unlock()
	if !ok {
		return
	}
	select {
	case <-entry.cancelCh:
	default:
		close(entry.cancelCh)
	}
}

func (t *Thread) fireDueTimers() {
	// Timers drive themselves via driveTimer's own ticker; this hook
	// exists so the main select loop keeps waking even when idle,
	// giving ExecSync/Stop callers bounded latency.
}

// BindSlot implements taskctx.Binder.
func (t *Thread) BindSlot(typ reflect.Type, value any) {
	t.slotsMu.Lock()
	defer t.slotsMu.Unlock()
	t.slots[typ] = value
}

// UnbindSlot implements taskctx.Binder.
func (t *Thread) UnbindSlot(typ reflect.Type) {
	t.slotsMu.Lock()
	defer t.slotsMu.Unlock()
	delete(t.slots, typ)
}

// LocalValue looks up a bound sub-context by type on this thread,
// returning ok=false outside of a taskctx.Guard.
func (t *Thread) LocalValue(typ reflect.Type) (any, bool) {
	t.slotsMu.RLock()
	defer t.slotsMu.RUnlock()
	v, ok := t.slots[typ]
	return v, ok
}

// registry maps the running goroutine's id to the Thread whose loop it
// backs, emulating the per-OS-thread lookup original_source/thread.h
// gets from boost::asio's executor: Go gives no stable thread handle, so
// Current() instead keys off the calling goroutine's id, valid only
// while called from inside that Thread's own loop goroutine.
var registry sync.Map // goroutineID uint64 -> *Thread

// mainThread is the designated thread spec.md §4.2 says Current() must
// return outside of any Thread's loop, standing in for
// original_source/thread.h's default "main" executor. It never runs its
// own loop goroutine, so nothing drains its task queue: tasks posted to
// it with ExecAsync never run, ExecSync waits until its timeout (forever
// when the timeout is not positive), and timers installed on it never
// fire their handler. It serves as a taskctx.Binder like any other Thread.
var mainThread = newMainThread()

func newMainThread() *Thread {
	t := &Thread{
		id:     "main",
		tasks:  queue.NewMPSC[task](1024, true),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		slots:  make(map[reflect.Type]any),
		timers: make(map[uint64]*timerEntry),
	}
	t.state.Store(int32(Started))
	return t
}

func register(t *Thread) {
	registry.Store(goroutineID(), t)
}

func unregister(t *Thread) {
	registry.Delete(goroutineID())
}

// Current returns the Thread whose loop is running on the calling
// goroutine, or the designated main thread if the caller is not running
// inside any Thread's loop, per spec.md §4.2.
func Current() *Thread {
	v, ok := registry.Load(goroutineID())
	if !ok {
		return mainThread
	}
	return v.(*Thread)
}

// goroutineID extracts the numeric goroutine id from runtime.Stack's
// header line ("goroutine 123 [running]:"). There is no public API for
// this; it is only ever used as an opaque map key, never displayed.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if len(b) <= len(prefix) {
		return 0
	}
	b = b[len(prefix):]
	var id uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
