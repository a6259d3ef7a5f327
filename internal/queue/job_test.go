package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffNext(t *testing.T) {
	exp := Backoff{Type: BackoffExponential, Delay: 2000 * time.Millisecond}
	assert.Equal(t, 2000*time.Millisecond, exp.Next(1))
	assert.Equal(t, 4000*time.Millisecond, exp.Next(2))
	assert.Equal(t, 8000*time.Millisecond, exp.Next(3))

	fixed := Backoff{Type: BackoffFixed, Delay: 5 * time.Second}
	assert.Equal(t, 5*time.Second, fixed.Next(1))
	assert.Equal(t, 5*time.Second, fixed.Next(4))

	assert.Zero(t, Backoff{}.Next(1))
	assert.Zero(t, exp.Next(0))
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{Attempts: 0, Priority: -3, Delay: -time.Second}
	o.normalize()
	assert.Equal(t, 1, o.Attempts)
	assert.Equal(t, 0, o.Priority)
	assert.Zero(t, o.Delay)
	assert.Equal(t, DefaultRetention, o.RemoveOnComplete)
	assert.Equal(t, DefaultRetention, o.RemoveOnFail)

	o = Options{RemoveOnComplete: RemoveImmediately, RemoveOnFail: KeepAll}
	o.normalize()
	assert.Equal(t, RemoveImmediately, o.RemoveOnComplete)
	assert.Equal(t, KeepAll, o.RemoveOnFail)

	o = Options{Priority: maxPriority + 10}
	o.normalize()
	assert.Equal(t, maxPriority, o.Priority)
}

func TestProducerDefaults(t *testing.T) {
	assert.Equal(t, 3, EmailDefaults.Attempts)
	assert.Equal(t, Backoff{Type: BackoffExponential, Delay: 2 * time.Second}, EmailDefaults.Backoff)
	assert.Equal(t, Retention(100), EmailDefaults.RemoveOnComplete)
	assert.Equal(t, Retention(50), EmailDefaults.RemoveOnFail)

	assert.Equal(t, time.Second, NotificationDefaults.Backoff.Delay)
	assert.Equal(t, 2, ImageDefaults.Attempts)
	assert.Equal(t, BackoffFixed, ImageDefaults.Backoff.Type)
	assert.Equal(t, 10*time.Second, ReportDefaults.Backoff.Delay)
	assert.Equal(t, 1, BackgroundDefaults.Priority)

	o := build(EmailDefaults, []Option{WithAttempts(5), WithJobID("x")})
	assert.Equal(t, 5, o.Attempts)
	assert.Equal(t, "x", o.JobID)
	assert.Equal(t, 3, EmailDefaults.Attempts)
}
