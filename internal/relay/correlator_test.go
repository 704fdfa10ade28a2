// ABOUTME: Tests for the correlator's wait and deliver bookkeeping
// ABOUTME: Covers delivery, timeout, late delivery, isolation and shutdown

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator_DeliverBeforeDeadline(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Pending())

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Deliver(Reply{RequestID: w.ID, Result: json.RawMessage(`"saved"`)})
	}()

	result, err := w.Await(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `"saved"`, string(result))
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_DeliverBeforeAwait(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(time.Second)
	require.NoError(t, err)

	assert.True(t, c.Deliver(Reply{RequestID: w.ID, Result: json.RawMessage(`42`)}))

	result, err := w.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", string(result))
}

func TestCorrelator_EditorError(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(time.Second)
	require.NoError(t, err)

	c.Deliver(Reply{RequestID: w.ID, Error: "no active editor"})

	_, err = w.Await(context.Background())
	var editorErr *EditorError
	require.True(t, errors.As(err, &editorErr))
	assert.Equal(t, "no active editor", editorErr.Message)
}

func TestCorrelator_Timeout(t *testing.T) {
	c := NewCorrelator(nil)
	timeout := 50 * time.Millisecond
	w, err := c.BeginWait(timeout)
	require.NoError(t, err)

	start := time.Now()
	_, err = w.Await(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), timeout)
	assert.Equal(t, 0, c.Pending(), "timed out wait must be deregistered")
}

func TestCorrelator_LateDeliveryIsNoop(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(10 * time.Millisecond)
	require.NoError(t, err)

	_, err = w.Await(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	assert.NotPanics(t, func() {
		assert.False(t, c.Deliver(Reply{RequestID: w.ID, Result: json.RawMessage(`"late"`)}))
	})
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_SecondDeliveryDropped(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(time.Second)
	require.NoError(t, err)

	assert.True(t, c.Deliver(Reply{RequestID: w.ID, Result: json.RawMessage(`"first"`)}))
	assert.False(t, c.Deliver(Reply{RequestID: w.ID, Result: json.RawMessage(`"second"`)}))

	result, err := w.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `"first"`, string(result))
}

func TestCorrelator_UnknownID(t *testing.T) {
	c := NewCorrelator(nil)
	assert.False(t, c.Deliver(Reply{RequestID: "does-not-exist"}))
}

func TestCorrelator_NoCrossDelivery(t *testing.T) {
	c := NewCorrelator(nil)
	a, err := c.BeginWait(time.Second)
	require.NoError(t, err)
	b, err := c.BeginWait(50 * time.Millisecond)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	c.Deliver(Reply{RequestID: a.ID, Result: json.RawMessage(`"for-a"`)})

	_, err = b.Await(context.Background())
	assert.ErrorIs(t, err, ErrTimeout, "delivery to A must not resolve B")

	result, err := a.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `"for-a"`, string(result))
}

func TestCorrelator_ConcurrentWaits(t *testing.T) {
	c := NewCorrelator(nil)
	const n = 100

	waits := make([]*Wait, n)
	for i := range waits {
		w, err := c.BeginWait(2 * time.Second)
		require.NoError(t, err)
		waits[i] = w
	}

	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i, w := range waits {
		wg.Add(1)
		go func(i int, w *Wait) {
			defer wg.Done()
			r, err := w.Await(context.Background())
			results[i] = string(r)
			errs[i] = err
		}(i, w)
	}

	// Deliver in reverse order from separate goroutines.
	for i := n - 1; i >= 0; i-- {
		go func(w *Wait) {
			c.Deliver(Reply{RequestID: w.ID, Result: json.RawMessage(`"` + w.ID + `"`)})
		}(waits[i])
	}
	wg.Wait()

	for i, w := range waits {
		require.NoError(t, errs[i])
		assert.Equal(t, `"`+w.ID+`"`, results[i])
	}
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_ContextCancel(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_Close(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(time.Minute)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := w.Await(context.Background())
		done <- err
	}()

	c.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the waiter")
	}

	_, err = c.BeginWait(time.Second)
	assert.ErrorIs(t, err, ErrClosed)

	assert.NotPanics(t, c.Close)
}

func TestCorrelator_DefaultTimeout(t *testing.T) {
	c := NewCorrelator(nil)
	w, err := c.BeginWait(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, w.Deadline.Sub(w.CreatedAt))
	w.Cancel()
	assert.Equal(t, 0, c.Pending())
}
