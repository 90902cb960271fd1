package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackgroundTaskSuccess(t *testing.T) {

	var got int
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) {
		v := 42
		return &v, nil
	}}
	task.OnSuccess(func(v int) { got = v }).Run()

	assert.Equal(t, 42, got)
}

func TestBackgroundTaskRecover(t *testing.T) {

	var got int
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) {
		return nil, errors.New("boom")
	}}
	task.Recover(func(err error) int { return -1 }).OnSuccess(func(v int) { got = v }).Run()

	assert.Equal(t, -1, got)
}

func TestBackgroundTaskOnError(t *testing.T) {

	var gotErr error
	called := false
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) {
		return nil, errors.New("boom")
	}}
	task.OnError(func(err error) { gotErr = err }).OnSuccess(func(int) { called = true }).Run()

	assert.EqualError(t, gotErr, "boom")
	assert.False(t, called)
}

func TestBackgroundTaskTimeout(t *testing.T) {

	var gotErr error
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) {
		time.Sleep(500 * time.Millisecond)
		v := 1
		return &v, nil
	}}
	task.WithTimeout(50 * time.Millisecond).OnError(func(err error) { gotErr = err }).Run()

	assert.Error(t, gotErr)
}

func TestMapBackgroundTask(t *testing.T) {

	var got string
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) {
		v := 7
		return &v, nil
	}}
	mapped := MapBackgroundTask(task, func(v *int) *string {
		s := time.Duration(*v).String()
		return &s
	})
	mapped.OnSuccess(func(v string) { got = v }).Run()

	assert.Equal(t, "7ns", got)
}
