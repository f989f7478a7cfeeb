package thread_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/evgeniums/hatn-sub006/pkg/thread"
	"github.com/stretchr/testify/require"
)

func TestExecAsyncRunsOnLoop(t *testing.T) {
	th, err := thread.New("t1", 0)
	require.NoError(t, err)
	th.Start()
	defer th.StopSync(1000)

	var ran int32
	done := make(chan struct{})
	th.ExecAsync(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestExecSyncWaitsForCompletion(t *testing.T) {
	th, err := thread.New("t2", 0)
	require.NoError(t, err)
	th.Start()
	defer th.StopSync(1000)

	var ran bool
	err = th.ExecSync(func() { ran = true }, 1000)
	require.NoError(t, err)
	require.True(t, ran)
}

func TestExecSyncTimesOut(t *testing.T) {
	th, err := thread.New("t3", 0)
	require.NoError(t, err)
	th.Start()
	defer th.StopSync(1000)

	err = th.ExecSync(func() { time.Sleep(200 * time.Millisecond) }, 10)
	require.Error(t, err)
}

func TestNewRejectsBadID(t *testing.T) {
	_, err := thread.New("", 0)
	require.Error(t, err)

	_, err = thread.New("this-id-is-way-too-long-for-a-thread", 0)
	require.Error(t, err)
}

func TestBatchBoundDrainsInSteps(t *testing.T) {
	th, err := thread.New("t4", 2)
	require.NoError(t, err)
	th.Start()
	defer th.StopSync(1000)

	const n = 10
	var count int32
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		idx := i
		th.ExecAsync(func() {
			if atomic.AddInt32(&count, 1) == n {
				close(done)
			}
			_ = idx
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("only processed %d of %d tasks", atomic.LoadInt32(&count), n)
	}
}

func TestInstallTimerFiresPeriodically(t *testing.T) {
	th, err := thread.New("t5", 0)
	require.NoError(t, err)
	th.Start()
	defer th.StopSync(1000)

	var fires int32
	done := make(chan struct{})
	id := th.InstallTimer(10*time.Millisecond, func() bool {
		if atomic.AddInt32(&fires, 1) >= 3 {
			close(done)
			return false
		}
		return true
	}, false)
	defer th.UninstallTimer(id, false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer fired %d times, wanted at least 3", atomic.LoadInt32(&fires))
	}
}

func TestCurrentReturnsOwningThread(t *testing.T) {
	th, err := thread.New("t6", 0)
	require.NoError(t, err)
	th.Start()
	defer th.StopSync(1000)

	found := make(chan *thread.Thread, 1)
	th.ExecSync(func() {
		found <- thread.Current()
	}, 1000)

	got := <-found
	require.Same(t, th, got)
}

// TestStopSyncDuringTimerTickDoesNotLeak guards against driveTimer
// blocking forever on a discarded resultCh when the thread is stopped
// (and its task queue cleared) while a tick's task is still in flight.
func TestStopSyncDuringTimerTickDoesNotLeak(t *testing.T) {
	th, err := thread.New("t7", 0)
	require.NoError(t, err)
	th.Start()

	th.InstallTimer(5*time.Millisecond, func() bool {
		time.Sleep(20 * time.Millisecond)
		return true
	}, false)

	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- th.StopSync(1000) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StopSync did not return; driveTimer likely leaked on the in-flight tick")
	}
}

func TestCurrentReturnsMainThreadOutsideAnyLoop(t *testing.T) {
	got := thread.Current()
	require.NotNil(t, got)
	require.Equal(t, "main", got.ID())

	again := thread.Current()
	require.Same(t, got, again, "the designated main thread must be a stable singleton")
}
