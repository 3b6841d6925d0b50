package periodic

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimer_FiresAndRearms(t *testing.T) {
	var fires int32
	tm := New(10*time.Millisecond, 0, func() bool {
		atomic.AddInt32(&fires, 1)
		return true
	})
	tm.Start()
	defer tm.Shutdown()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fires) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if atomic.LoadInt32(&fires) < 3 {
		t.Errorf("expected at least 3 fires in 500ms with a 10ms period, got %d", fires)
	}
}

func TestTimer_ShutdownStopsFurtherFires(t *testing.T) {
	var fires int32
	tm := New(5*time.Millisecond, 0, func() bool {
		atomic.AddInt32(&fires, 1)
		return true
	})
	tm.Start()
	time.Sleep(20 * time.Millisecond)
	tm.Shutdown()

	observed := atomic.LoadInt32(&fires)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fires) != observed {
		t.Errorf("expected no further fires after Shutdown: before=%d after=%d", observed, fires)
	}
}

func TestTimer_CoalescesOverlappingFires(t *testing.T) {
	var fires int32
	tm := New(5*time.Millisecond, 0, func() bool {
		n := atomic.AddInt32(&fires, 1)
		return n == 1
	})
	tm.Start()
	defer tm.Shutdown()

	time.Sleep(100 * time.Millisecond)
	period := 5 * time.Millisecond
	elapsed := 100 * time.Millisecond
	maxExpected := int32(elapsed/period) + 2
	if fires > maxExpected {
		t.Errorf("expected at most ~%d fires (property 7: ceil(t/p)+1), got %d", maxExpected, fires)
	}
}
