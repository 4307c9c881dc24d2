package ratelimit

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter() *Limiter {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(logger)
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestThirtyFirstRequestRejected(t *testing.T) {
	l := newTestLimiter()

	for i := 0; i < MaxRequests; i++ {
		at := t0.Add(time.Duration(i) * 30 * time.Millisecond)
		assert.True(t, l.AllowAt("1.2.3.4", at), "request %d", i+1)
	}
	assert.False(t, l.AllowAt("1.2.3.4", t0.Add(time.Second)))
	assert.False(t, l.AllowAt("1.2.3.4", t0.Add(59*time.Second)))

	assert.True(t, l.AllowAt("5.6.7.8", t0.Add(time.Second)), "other keys are independent")

	assert.True(t, l.AllowAt("1.2.3.4", t0.Add(Window+time.Millisecond)))
}

func TestRejectionsAreNotRecorded(t *testing.T) {
	l := newTestLimiter()

	for i := 0; i < MaxRequests; i++ {
		l.AllowAt("k", t0)
	}
	for i := 0; i < 100; i++ {
		assert.False(t, l.AllowAt("k", t0.Add(30*time.Second)))
	}

	// Only the first 30 occupy the window, so all slots free up together.
	assert.True(t, l.AllowAt("k", t0.Add(Window)))
}

func TestConcurrentSameKey(t *testing.T) {
	l := newTestLimiter()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.AllowAt("shared", t0) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(MaxRequests), admitted.Load())
}

func TestSweepRemovesIdleKeys(t *testing.T) {
	l := newTestLimiter()

	l.AllowAt("old", t0)
	l.AllowAt("recent", t0.Add(50*time.Second))
	assert.Equal(t, 2, l.Len())

	assert.Equal(t, 1, l.Sweep(t0.Add(Window+time.Second)))
	assert.Equal(t, 1, l.Len())

	assert.True(t, l.AllowAt("old", t0.Add(Window+time.Second)))
}

func TestStartStopsOnCancel(t *testing.T) {
	l := newTestLimiter()
	l.AllowAt("old", time.Now().Add(-2*Window))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Start(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestProperty_WindowBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("no trailing window ever holds more than MaxRequests admissions", prop.ForAll(
		func(offsets []int64) bool {
			sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

			l := newTestLimiter()
			var admitted []time.Time
			for _, off := range offsets {
				at := t0.Add(time.Duration(off) * time.Millisecond)
				inWindow := 0
				for _, a := range admitted {
					if at.Sub(a) < Window {
						inWindow++
					}
				}
				ok := l.AllowAt("k", at)
				// Admission must happen exactly when the window has room.
				if ok != (inWindow < MaxRequests) {
					return false
				}
				if ok {
					admitted = append(admitted, at)
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 180_000)),
	))

	properties.TestingRun(t)
}
