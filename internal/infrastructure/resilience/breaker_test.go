package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFailed = errors.New("failed")

func call(b *Breaker, ok bool) error {
	_, err := b.Execute(func() (any, error) {
		if ok {
			return "ok", nil
		}
		return nil, errFailed
	})
	return err
}

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Interval: time.Minute, Timeout: time.Minute},
			requests: []bool{true, true, true},
			want:     StateClosed,
		},
		{
			name:     "opens after consecutive failures",
			settings: Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(3)},
			requests: []bool{false, false, false},
			want:     StateOpen,
		},
		{
			name:     "success resets the failure streak",
			settings: Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(3)},
			requests: []bool{false, false, true, false, false},
			want:     StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)
			for _, ok := range tt.requests {
				_ = call(breaker, ok)
			}
			assert.Equal(t, tt.want, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: time.Minute})

	require.NoError(t, call(breaker, true))
	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)

	assert.ErrorIs(t, call(breaker, false), errFailed)
	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenFailsFast(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(2)})

	_ = call(breaker, false)
	_ = call(breaker, false)
	require.Equal(t, StateOpen, breaker.State())

	ran := false
	_, err := breaker.Execute(func() (any, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	var transitions []string
	breaker := New("test", Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: tripAfter(2),
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = call(breaker, false)
	_ = call(breaker, false)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, call(breaker, true))
	require.NoError(t, call(breaker, true))
	assert.Equal(t, StateClosed, breaker.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: 10 * time.Millisecond, ReadyToTrip: tripAfter(1)})

	_ = call(breaker, false)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = call(breaker, false)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestDoIgnoresCallerCancellation(t *testing.T) {
	breaker := New("test", Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, breaker, func(ctx context.Context) (string, error) {
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(0), breaker.Counts().Requests)
}

func TestDoIsFailureClassifier(t *testing.T) {
	notFound := errors.New("not found")
	breaker := New("test", Settings{
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: tripAfter(1),
		IsFailure:   func(err error) bool { return !errors.Is(err, notFound) },
	})

	got, err := Do(context.Background(), breaker, func(context.Context) (int, error) {
		return 0, notFound
	})
	assert.Zero(t, got)
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestGroup(t *testing.T) {
	group := NewGroup("fetch", Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(1)})

	a := group.Get("a.example.com")
	assert.Same(t, a, group.Get("a.example.com"))
	assert.Equal(t, "fetch:a.example.com", a.Name())

	_ = call(a, false)
	_ = call(group.Get("b.example.com"), true)

	states := group.States()
	assert.Equal(t, StateOpen, states["a.example.com"])
	assert.Equal(t, StateClosed, states["b.example.com"])
}
