// Package bridge turns receiver status events, which arrive on the session's
// watcher goroutine, into jobs for the control surface's job queue. It never
// touches presentation state itself.
package bridge

import (
	"math"

	"go2tv.app/go2cast/jobqueue"
	"go2tv.app/go2cast/session"
)

// StatusSink is the presentation state owned by the control surface.
// Its methods are only called from drained jobs.
type StatusSink interface {
	ShowVolume(percent int)
	ShowMuted(muted bool)
	ShowDuration(seconds float64)
	ShowPosition(seconds float64)
	ShowTitle(title string)
	ShowPlayerState(state session.PlayerState)
}

// Recorder keeps the authoritative status snapshot, see session.Session.
type Recorder interface {
	Record(ev session.Event)
}

// Bridge converts status events into pending jobs.
type Bridge struct {
	queue    *jobqueue.Queue
	sink     StatusSink
	recorder Recorder
}

// New returns a bridge feeding queue. recorder may be nil.
func New(queue *jobqueue.Queue, sink StatusSink, recorder Recorder) *Bridge {
	return &Bridge{
		queue:    queue,
		sink:     sink,
		recorder: recorder,
	}
}

// VolumePercent maps a receiver volume level in [0, 1] to the 0-100
// display range.
func VolumePercent(level float64) int {
	p := int(math.Round(level * 100))
	return max(0, min(100, p))
}

// Jobs returns the jobs reflecting ev, in the order they must run.
func (b *Bridge) Jobs(ev session.Event) []jobqueue.Job {
	var jobs []jobqueue.Job
	if b.recorder != nil {
		jobs = append(jobs, func() { b.recorder.Record(ev) })
	}

	switch e := ev.(type) {
	case session.ReceiverStatusEvent:
		percent := VolumePercent(e.Volume)
		jobs = append(jobs,
			func() { b.sink.ShowVolume(percent) },
			func() { b.sink.ShowMuted(e.Muted) },
		)
	case session.PlayerStatusEvent:
		jobs = append(jobs,
			func() { b.sink.ShowDuration(e.Duration) },
			func() { b.sink.ShowPosition(e.CurrentTime) },
			func() { b.sink.ShowTitle(e.Title) },
			func() { b.sink.ShowPlayerState(e.State) },
		)
	default:
		return nil
	}

	return jobs
}

// Handle enqueues the jobs for ev. It is safe to call from any goroutine
// and is meant to be passed to session.Session.Subscribe.
func (b *Bridge) Handle(ev session.Event) {
	if jobs := b.Jobs(ev); len(jobs) > 0 {
		b.queue.Enqueue(jobs...)
	}
}
