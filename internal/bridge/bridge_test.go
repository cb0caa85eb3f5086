package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type pair struct {
	A, B int
}

func newTestClient(t *testing.T, h *Host) *Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := Pipe(ctx, h)
	t.Cleanup(func() {
		c.Close()
		cancel()
	})
	return c
}

func testHost() *Host {
	h := NewHost()
	h.Register("math.add", func(_ context.Context, args Args) (any, error) {
		var p pair
		if err := args.Decode(0, &p); err != nil {
			return nil, err
		}
		return p.A + p.B, nil
	})
	h.Register("fail", func(context.Context, Args) (any, error) {
		return nil, errors.New("disk on fire")
	})
	return h
}

func TestCallRoundTrip(t *testing.T) {
	c := newTestClient(t, testHost())
	var sum int
	if err := c.Call(context.Background(), "math.add", &sum, pair{A: 2, B: 40}); err != nil {
		t.Fatal(err)
	}
	if sum != 42 {
		t.Errorf("sum = %d, want 42", sum)
	}
	if err := c.Call(context.Background(), "math.add", nil, pair{}); err != nil {
		t.Errorf("Call with nil out = %v", err)
	}
}

func TestCallErrors(t *testing.T) {
	c := newTestClient(t, testHost())
	ctx := context.Background()

	err := c.Call(ctx, "songs.nope", nil)
	if !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("unknown method = %v", err)
	}

	err = c.Call(ctx, "fail", nil)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("handler failure = %v, want *RemoteError", err)
	}
	if re.Method != "fail" || re.Message != "disk on fire" || errors.Is(err, ErrUnknownMethod) {
		t.Errorf("RemoteError = %+v", re)
	}

	err = c.Call(ctx, "math.add", nil)
	if !errors.As(err, &re) {
		t.Errorf("missing argument = %v, want *RemoteError", err)
	}
}

func TestConcurrentCalls(t *testing.T) {
	c := newTestClient(t, testHost())
	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var sum int
			if err := c.Call(context.Background(), "math.add", &sum, pair{A: i, B: i}); err != nil {
				errs <- err
				return
			}
			if sum != 2*i {
				errs <- errors.New("reply routed to the wrong call")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestNotify(t *testing.T) {
	h := NewHost()
	got := make(chan string, 3)
	h.Register("logger.info", func(_ context.Context, args Args) (any, error) {
		var msg string
		err := args.Decode(0, &msg)
		got <- msg
		return nil, err
	})
	c := newTestClient(t, h)

	for _, msg := range []string{"one", "two", "three"} {
		if err := c.Notify("logger.info", msg); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"one", "two", "three"} {
		select {
		case msg := <-got:
			if msg != want {
				t.Errorf("notification = %q, want %q", msg, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("notification not delivered")
		}
	}
}

func TestCallContextCancelled(t *testing.T) {
	h := NewHost()
	h.Register("slow", func(ctx context.Context, _ Args) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := newTestClient(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, "slow", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() = %v, want DeadlineExceeded", err)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	h := NewHost()
	started := make(chan struct{})
	h.Register("block", func(ctx context.Context, _ Args) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := Pipe(ctx, h)

	errc := make(chan error, 1)
	go func() { errc <- c.Call(context.Background(), "block", nil) }()
	<-started
	c.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pending Call() = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not released by Close")
	}
	if err := c.Call(context.Background(), "block", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Call() after Close = %v, want ErrClosed", err)
	}
	if err := c.Notify("block"); !errors.Is(err, ErrClosed) {
		t.Errorf("Notify() after Close = %v, want ErrClosed", err)
	}
}
