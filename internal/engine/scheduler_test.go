package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsInDeadlineOrder(t *testing.T) {
	s := NewScheduler()
	var got []string
	s.After(3*time.Second, func() { got = append(got, "c") })
	s.After(1*time.Second, func() { got = append(got, "a") })
	s.After(2*time.Second, func() { got = append(got, "b") })

	assert.Equal(t, 0, s.Advance(500*time.Millisecond))
	assert.Equal(t, 3, s.Pending())

	assert.Equal(t, 3, s.Advance(5*time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 5500*time.Millisecond, s.Now())
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	fired := false
	task := s.After(time.Second, func() { fired = true })

	assert.True(t, task.Pending())
	assert.True(t, task.Cancel())
	assert.False(t, task.Cancel(), "second cancel is a no-op")
	assert.False(t, task.Pending())

	s.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, s.Pending())

	var nilTask *Task
	assert.False(t, nilTask.Cancel())
	assert.False(t, nilTask.Pending())
}

func TestSchedulerCallbackCanCancelLaterTask(t *testing.T) {
	s := NewScheduler()
	var second *Task
	ran := 0
	s.After(time.Second, func() {
		ran++
		second.Cancel()
	})
	second = s.After(time.Second, func() { ran++ })

	assert.Equal(t, 1, s.Advance(time.Second))
	assert.Equal(t, 1, ran)
}

func TestSchedulerTasksScheduledByCallbacksWait(t *testing.T) {
	s := NewScheduler()
	ran := 0
	s.After(0, func() {
		s.After(0, func() { ran++ })
	})

	assert.Equal(t, 1, s.Advance(0))
	assert.Equal(t, 0, ran)
	assert.Equal(t, 1, s.Advance(0))
	assert.Equal(t, 1, ran)
}

func TestSchedulerClockOnlyMovesOnAdvance(t *testing.T) {
	s := NewScheduler()
	task := s.After(time.Second, func() {})
	assert.Equal(t, time.Second, task.Due())

	// Negative advances are ignored.
	s.Advance(-time.Hour)
	assert.Equal(t, time.Duration(0), s.Now())
	assert.True(t, task.Pending())
}
