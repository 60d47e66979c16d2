package scheduler

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"
)

func TestRunOnceOrderAndExactlyOnce(t *testing.T) {
	s := New()

	var got []int
	for i := 0; i < 5; i++ {
		s.Schedule(func() { got = append(got, i) })
	}
	s.Schedule(nil)

	if n := s.RunOnce(); n != 5 {
		t.Fatalf("RunOnce ran %d tasks, want 5", n)
	}
	if want := []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if n := s.RunOnce(); n != 0 {
		t.Fatalf("second RunOnce ran %d tasks, want 0", n)
	}
}

func TestTasksScheduledDuringBatchRunNextTick(t *testing.T) {
	s := New()

	var got []string
	s.Schedule(func() {
		got = append(got, "first")
		s.Schedule(func() { got = append(got, "nested") })
	})

	s.RunOnce()
	if !reflect.DeepEqual(got, []string{"first"}) {
		t.Fatalf("after first tick: %v", got)
	}
	s.RunOnce()
	if !reflect.DeepEqual(got, []string{"first", "nested"}) {
		t.Fatalf("after second tick: %v", got)
	}
}

func TestConcurrentSchedule(t *testing.T) {
	s := New()

	var (
		wg    sync.WaitGroup
		count int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Schedule(func() { count++ })
		}()
	}
	wg.Wait()

	s.RunOnce()
	if count != 50 {
		t.Fatalf("ran %d tasks, want 50", count)
	}
}

func TestPanickingTaskDoesNotStopBatch(t *testing.T) {
	s := New()

	ran := false
	s.Schedule(func() { panic("boom") })
	s.Schedule(func() { ran = true })
	s.RunOnce()

	if !ran {
		t.Fatal("task after a panicking task did not run")
	}
}

func TestRunDrainsOnTick(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	s := New(WithClock(fc))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for !fc.HasWaiters() {
		time.Sleep(time.Millisecond)
	}

	executed := make(chan struct{})
	s.Schedule(func() { close(executed) })

	fc.Step(DefaultInterval)
	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Fatal("task not executed after a tick")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
