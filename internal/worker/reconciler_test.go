package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(maxRetries int) *Reconciler {
	return NewReconciler(ReconcilerConfig{PollInterval: 10 * time.Millisecond, MaxRetries: maxRetries}, nil)
}

func TestRunOnceCompletesAndForgets(t *testing.T) {
	r := newReconciler(3)
	calls := 0
	r.Track("A", func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("bad gateway")
		}
		return nil
	})

	assert.Equal(t, 0, r.RunOnce(context.Background()))
	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "A", pending[0].AppointmentID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "bad gateway", pending[0].LastError)

	assert.Equal(t, 1, r.RunOnce(context.Background()))
	assert.Empty(t, r.Pending())
	assert.Equal(t, 0, r.RunOnce(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestRetryMayCallDone(t *testing.T) {
	r := newReconciler(3)
	r.Track("A", func(context.Context) error {
		r.Done("A")
		return nil
	})
	assert.Equal(t, 1, r.RunOnce(context.Background()))
	assert.Empty(t, r.Pending())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	r := newReconciler(2)
	r.Track("A", func(context.Context) error { return errors.New("down") })

	r.RunOnce(context.Background())
	require.Len(t, r.Pending(), 1)
	r.RunOnce(context.Background())
	assert.Empty(t, r.Pending())
}

func TestTrackAgainKeepsAttempts(t *testing.T) {
	r := newReconciler(5)
	r.Track("A", func(context.Context) error { return errors.New("down") })
	r.RunOnce(context.Background())
	r.Track("A", func(context.Context) error { return errors.New("still down") })

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestStartRetriesUntilCancelled(t *testing.T) {
	r := newReconciler(100)
	var calls int32
	r.Track("A", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("down")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(r.Pending()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestConfigValidation(t *testing.T) {
	assert.Panics(t, func() { NewReconciler(ReconcilerConfig{MaxRetries: 1}, nil) })
	assert.Panics(t, func() { NewReconciler(ReconcilerConfig{PollInterval: time.Second}, nil) })
}

func TestGaugeFollowsTrackedCompletions(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "pending"})
	r := NewReconciler(ReconcilerConfig{PollInterval: time.Second, MaxRetries: 2, Gauge: gauge}, nil)
	r.Track("A", func(context.Context) error { return errors.New("down") })
	r.Track("B", func(context.Context) error { return errors.New("down") })
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	r.Done("B")
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))

	r.RunOnce(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	r.RunOnce(context.Background())
	assert.Empty(t, r.Pending())
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge), "given up entries leave the gauge")
}
