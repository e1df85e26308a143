package gate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateLimitsConcurrency(t *testing.T) {
	g := New(2)
	var current, max int32

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			g.Acquire(context.Background())
			n := atomic.AddInt32(&current, 1)
			for {
				old := atomic.LoadInt32(&max)
				if n <= old || atomic.CompareAndSwapInt32(&max, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			g.Release()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&max); got > 2 {
		t.Errorf("expected at most 2 concurrent holders, observed %d", got)
	}
}

func TestGateNonPositiveCapacityClampsToOne(t *testing.T) {
	g := New(0)
	ctx := context.Background()
	if err := g.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	acquired := make(chan bool, 1)
	go func() {
		ctx2, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		acquired <- g.Acquire(ctx2) == nil
	}()

	if ok := <-acquired; ok {
		t.Error("expected second acquire to block when capacity is 1")
	}
}

func TestGateDo(t *testing.T) {
	g := New(1)
	called := false
	err := g.Do(context.Background(), func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}
