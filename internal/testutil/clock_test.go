package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/env"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var _ env.Clock = (*StepClock)(nil)

func TestStepClock_StartsAtStart(t *testing.T) {
	clock := NewStepClock(start, time.Minute)
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, int64(0), clock.Ticks())
}

func TestStepClock_TickAdvances(t *testing.T) {
	clock := NewStepClock(start, time.Minute)

	assert.Equal(t, start.Add(time.Minute), clock.Tick())
	assert.Equal(t, start.Add(time.Minute), clock.Now(), "Now does not advance")
	assert.Equal(t, start.Add(2*time.Minute), clock.Tick())
	assert.Equal(t, int64(2), clock.Ticks())
}

func TestStepClock_DefaultStep(t *testing.T) {
	clock := NewStepClock(start, 0)
	assert.Equal(t, start.Add(time.Second), clock.Tick())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(start, time.Second)
	clock.Tick()
	clock.Tick()
	clock.Reset()
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Second), clock.Tick())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(start, time.Second)
	const goroutines, ticks = 20, 50

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ticks {
				clock.Tick()
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*ticks), clock.Ticks())
	assert.Equal(t, start.Add(goroutines*ticks*time.Second), clock.Now())
}
