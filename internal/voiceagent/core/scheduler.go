package core

// Task is a unit of work executed on the scheduler goroutine.
type Task func()

// Scheduler accepts tasks from any goroutine. Driver and transport
// callbacks use it to hand work to the single writer of device state.
type Scheduler interface {
	Schedule(task Task)
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(task Task)

func (f SchedulerFunc) Schedule(task Task) {
	f(task)
}
