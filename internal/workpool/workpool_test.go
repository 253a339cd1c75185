package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(3)
	var running, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(ctx context.Context) error {
				cur := atomic.AddInt32(&running, 1)
				for {
					prev := atomic.LoadInt32(&peak)
					if cur <= prev || atomic.CompareAndSwapInt32(&peak, prev, cur) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 3 {
		t.Errorf("peak concurrency %d exceeds pool size 3", got)
	}
	if p.InUse() != 0 {
		t.Errorf("InUse = %d after drain, want 0", p.InUse())
	}
}

func TestDoHonoursCancellationWhileWaiting(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(ctx context.Context) error {
			<-block
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let the holder take the slot

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := p.Do(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("fn must not run when acquisition is cancelled")
	}
	close(block)
}

func TestDoPropagatesError(t *testing.T) {
	p := New(2)
	want := errors.New("upstream exploded")
	if err := p.Do(context.Background(), func(ctx context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("Do = %v, want original error", err)
	}
}
