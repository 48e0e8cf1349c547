package emitter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitterFanOutInRegistrationOrder(t *testing.T) {
	t.Parallel()

	e := New[string](nil)
	var got []string
	e.On("evt", func(args ...any) { got = append(got, "first") })
	e.On("evt", func(args ...any) { got = append(got, "second") })
	e.On("other", func(args ...any) { got = append(got, "other") })

	e.Emit("evt")

	require.Equal(t, []string{"first", "second"}, got)
	require.Equal(t, 2, e.Count("evt"))
	require.Zero(t, e.Count("missing"))
}

func TestEmitterPassesArgumentsUnmodified(t *testing.T) {
	t.Parallel()

	e := New[string](nil)
	var got []any
	e.On("evt", func(args ...any) { got = args })

	e.Emit("evt", "msg", 12, "src.js")

	require.Equal(t, []any{"msg", 12, "src.js"}, got)
}

func TestEmitterRecoversListenerPanic(t *testing.T) {
	t.Parallel()

	e := New[string](nil)
	called := false
	e.On("evt", func(args ...any) { panic("boom") })
	e.On("evt", func(args ...any) { called = true })

	require.NotPanics(t, func() { e.Emit("evt") })
	require.True(t, called)
}

func TestEmitterIgnoresNilListener(t *testing.T) {
	t.Parallel()

	e := New[string](nil)
	e.On("evt", nil)
	require.Zero(t, e.Count("evt"))
}

func TestEmitterListenerMaySubscribeDuringEmit(t *testing.T) {
	t.Parallel()

	e := New[string](nil)
	calls := 0
	e.On("evt", func(args ...any) {
		calls++
		e.On("evt", func(args ...any) { calls++ })
	})

	e.Emit("evt")
	require.Equal(t, 1, calls)
	e.Emit("evt")
	require.Equal(t, 3, calls)
}

func TestEmitterConcurrentUse(t *testing.T) {
	t.Parallel()

	e := New[int](nil)
	var mu sync.Mutex
	total := 0
	e.On(1, func(args ...any) {
		mu.Lock()
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit(1)
		}()
	}
	wg.Wait()
	require.Equal(t, 8, total)
}
