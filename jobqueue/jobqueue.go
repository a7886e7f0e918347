// Package jobqueue implements the deferred job queue drained by the control
// surface. Producers on any goroutine append jobs; the single consumer runs
// them on its own goroutine.
package jobqueue

import "sync"

// Job is a deferred unit of work. It is run exactly once by DrainAndRun.
type Job func()

// Queue is a FIFO of pending jobs guarded by a mutex.
type Queue struct {
	mu     sync.Mutex
	jobs   []Job
	notify func()
}

// New returns an empty queue. notify, when not nil, is called after every
// Enqueue so the consumer can schedule a drain. It must not block.
func New(notify func()) *Queue {
	return &Queue{notify: notify}
}

// Enqueue appends jobs to the tail of the queue. Jobs passed in one call
// stay contiguous and in argument order.
func (q *Queue) Enqueue(jobs ...Job) {
	if len(jobs) == 0 {
		return
	}

	q.mu.Lock()
	for _, j := range jobs {
		if j != nil {
			q.jobs = append(q.jobs, j)
		}
	}
	notify := q.notify
	q.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// SetNotify replaces the wake-up hook.
func (q *Queue) SetNotify(notify func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notify = notify
}

// DrainAndRun atomically takes every pending job and runs them in order on
// the calling goroutine. Jobs enqueued while draining are left for the next
// call. It returns the number of jobs run.
func (q *Queue) DrainAndRun() int {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()

	for _, j := range jobs {
		j()
	}

	return len(jobs)
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
