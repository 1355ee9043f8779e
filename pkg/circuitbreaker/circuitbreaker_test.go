package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestError = errors.New("test error")

func failN(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := cb.Execute(context.Background(), func() error { return errTestError })
		require.ErrorIs(t, err, errTestError)
	}
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_ClosedState_FailurePassesErrorThrough(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), func() error { return errTestError })

	assert.Same(t, errTestError, err)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 1, cb.GetStats().FailureCount)
}

func TestCircuitBreaker_OpenState_RejectsRequests(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Timeout: time.Hour})
	failN(t, cb, 2)

	require.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "guarded function must not run while open")
}

func TestCircuitBreaker_HalfOpen_SuccessCloses(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: 20 * time.Millisecond})
	failN(t, cb, 2)
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(30 * time.Millisecond)

	assert.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpen_FailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: 20 * time.Millisecond})
	failN(t, cb, 1)

	time.Sleep(30 * time.Millisecond)
	failN(t, cb, 1)

	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_HalfOpen_LimitsProbes(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: 20 * time.Millisecond, MaxRequestsHalfOpen: 1})
	failN(t, cb, 1)
	time.Sleep(30 * time.Millisecond)

	release := make(chan struct{})
	probing := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func() error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	ignored := errors.New("caller went away")
	cb := New(Config{
		FailureThreshold: 1,
		Timeout:          time.Hour,
		IsFailure:        func(err error) bool { return !errors.Is(err, ignored) },
	})

	err := cb.Execute(context.Background(), func() error { return ignored })
	assert.ErrorIs(t, err, ignored)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_Generic(t *testing.T) {
	cb := New(DefaultConfig())

	v, err := Execute(context.Background(), cb, func() (string, error) { return "answer", nil })
	require.NoError(t, err)
	assert.Equal(t, "answer", v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Execute(ctx, cb, func() (string, error) { return "never", nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OnStateChange_Callback(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: time.Hour})

	changes := make(chan [2]State, 2)
	cb.OnStateChange(func(from, to State) { changes <- [2]State{from, to} })

	failN(t, cb, 1)

	select {
	case c := <-changes:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, c)
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: time.Hour})
	failN(t, cb, 1)
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()

	stats := cb.GetStats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Zero(t, stats.FailureCount)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(Config{FailureThreshold: 1000, Timeout: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func() error {
				if i%2 == 0 {
					return errTestError
				}
				return nil
			})
			_ = cb.GetStats()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestRegistry_OneBreakerPerKey(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, Timeout: time.Hour})

	a := r.Get("192.168.7.166:8889")
	assert.Same(t, a, r.Get("192.168.7.166:8889"))
	b := r.Get("192.168.7.166:8890")
	assert.NotSame(t, a, b)

	failN(t, a, 1)
	states := r.States()
	assert.Equal(t, StateOpen, states["192.168.7.166:8889"])
	assert.Equal(t, StateClosed, states["192.168.7.166:8890"])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 1, cfg.SuccessThreshold)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
