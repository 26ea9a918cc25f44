package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// tickerProducer emits values pushed through in until ctx is done.
func tickerProducer(in <-chan int) Producer[int] {
	return func(ctx context.Context, emit func(int)) {
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-in:
				emit(v)
			}
		}
	}
}

func TestShared_ValueDoesNotStartProducer(t *testing.T) {
	s := NewShared(context.Background(), time.Second, 7, Equal[int], tickerProducer(make(chan int)))

	assert.Equal(t, 7, s.Value())
	assert.False(t, s.Active())
	assert.Equal(t, 0, s.Starts())
}

func TestShared_StartsOnFirstSubscriber(t *testing.T) {
	in := make(chan int)
	s := NewShared(context.Background(), time.Second, 0, Equal[int], tickerProducer(in))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	assert.Equal(t, 0, receive(t, ch))
	assert.True(t, s.Active())

	in <- 42
	assert.Equal(t, 42, receive(t, ch))

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	s.Subscribe(ctx2)
	assert.Equal(t, 1, s.Starts())
}

func TestShared_StopsAfterGrace(t *testing.T) {
	in := make(chan int)
	s := NewShared(context.Background(), 50*time.Millisecond, 0, Equal[int], tickerProducer(in))

	ctx, cancel := context.WithCancel(context.Background())
	s.Subscribe(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.Active(), "producer should survive within the grace period")

	assert.Eventually(t, func() bool { return !s.Active() }, time.Second, 5*time.Millisecond)
}

func TestShared_ResubscribeWithinGraceKeepsProducer(t *testing.T) {
	in := make(chan int)
	s := NewShared(context.Background(), 80*time.Millisecond, 0, Equal[int], tickerProducer(in))

	ctx, cancel := context.WithCancel(context.Background())
	s.Subscribe(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	s.Subscribe(ctx2)

	time.Sleep(120 * time.Millisecond)
	assert.True(t, s.Active())
	assert.Equal(t, 1, s.Starts())
}

func TestShared_ReplaysLastValueAfterStop(t *testing.T) {
	in := make(chan int)
	s := NewShared(context.Background(), 0, 0, Equal[int], tickerProducer(in))

	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	<-ch
	in <- 5
	assert.Equal(t, 5, receive(t, ch))
	cancel()

	assert.Eventually(t, func() bool { return !s.Active() }, time.Second, 5*time.Millisecond)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	assert.Equal(t, 5, receive(t, s.Subscribe(ctx2)))
	assert.Equal(t, 2, s.Starts())
}

func TestShared_ParentCancelStopsProducer(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	s := NewShared(parent, time.Minute, 0, Equal[int], func(ctx context.Context, emit func(int)) {
		<-ctx.Done()
		close(stopped)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Subscribe(ctx)
	cancelParent()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("producer not stopped by parent cancellation")
	}
}
