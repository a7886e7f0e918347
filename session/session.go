// Package session owns the single live connection to a cast receiver.
// It exposes fire-and-forget transport commands and publishes the
// receiver's status as typed events to its subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go2tv.app/go2cast/castprotocol"
	"go2tv.app/go2cast/media"
)

// DefaultStatusInterval is how often the receiver status is polled.
const DefaultStatusInterval = time.Second

// watcherStopWait bounds how long Disconnect waits for an in-flight
// status poll before leaving the close to the watcher's exit.
var watcherStopWait = 2 * time.Second

// ErrConnection is returned when the receiver cannot be reached.
var ErrConnection = errors.New("session: receiver unreachable")

// Receiver is the transport the session drives.
// castprotocol.CastClient is the production implementation.
type Receiver interface {
	Connect() error
	Load(mediaURL, contentType, title string, autoplay bool) error
	Enqueue(mediaURL, contentType, title string, autoplay bool) error
	QueueNext() error
	QueuePrev() error
	Play() error
	Pause() error
	Stop() error
	Seek(seconds int) error
	SetVolume(level float32) error
	SetMuted(muted bool) error
	GetStatus() (*castprotocol.CastStatus, error)
	Close(stopMedia bool) error
}

var _ Receiver = (*castprotocol.CastClient)(nil)

// Session is the exclusive owner of one receiver connection.
type Session struct {
	rcv      Receiver
	interval time.Duration
	log      zerolog.Logger

	mu        sync.RWMutex
	connected bool
	player    PlayerStatus
	receiver  ReceiverStatus
	cancel    context.CancelFunc
	done      chan struct{}

	subsMu sync.Mutex
	subs   map[string]func(Event)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l.With().Str("Component", "session").Logger()
	}
}

// WithStatusInterval sets the receiver status polling interval.
func WithStatusInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// New wraps rcv. The connection is not opened until Connect.
func New(rcv Receiver, opts ...Option) *Session {
	s := &Session{
		rcv:      rcv,
		interval: DefaultStatusInterval,
		log:      zerolog.Nop(),
		player:   PlayerStatus{State: Idle},
		subs:     make(map[string]func(Event)),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Connect opens the receiver connection and starts the status watcher.
// Connecting an already connected session is a no-op.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	if err := s.rcv.Connect(); err != nil {
		s.log.Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.connected = true

	go s.watch(ctx, s.done)

	s.log.Debug().Str("Method", "Connect").Msg("connected")
	return nil
}

// Connected reports whether the session holds a live connection.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Disconnect stops the status watcher and releases the connection.
// It is safe to call on a session that never connected, and more than once.
// When a status poll is still running after watcherStopWait the connection
// is released in the background once the poll returns.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	timer := time.NewTimer(watcherStopWait)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.log.Warn().Str("Method", "Disconnect").Msg("status poll still running, closing in background")
		go func() {
			<-done
			if err := s.rcv.Close(false); err != nil {
				s.log.Error().Str("Method", "Disconnect").Err(err).Msg("close failed")
			}
		}()
		return nil
	}

	s.log.Debug().Str("Method", "Disconnect").Msg("disconnecting")
	return s.rcv.Close(false)
}

// PlayMedia replaces current playback with ref, or appends it to the
// receiver queue when ref.Enqueue is set.
func (s *Session) PlayMedia(ref media.Reference) error {
	mime := ref.MimeType
	if mime == "" {
		mime = media.DefaultMimeType
	}

	if ref.Enqueue {
		return s.rcv.Enqueue(ref.URL, mime, ref.Title, ref.Autoplay)
	}

	return s.rcv.Load(ref.URL, mime, ref.Title, ref.Autoplay)
}

// Pause pauses playback. It does nothing unless the player is PLAYING.
func (s *Session) Pause() error {
	if st := s.PlayerStatus().State; st != Playing {
		s.log.Debug().Str("Method", "Pause").Str("State", string(st)).Msg("ignored")
		return nil
	}
	return s.rcv.Pause()
}

// Resume resumes playback. It does nothing unless the player is PAUSED.
func (s *Session) Resume() error {
	if st := s.PlayerStatus().State; st != Paused {
		s.log.Debug().Str("Method", "Resume").Str("State", string(st)).Msg("ignored")
		return nil
	}
	return s.rcv.Play()
}

// Stop stops playback.
func (s *Session) Stop() error {
	return s.rcv.Stop()
}

// Seek asks the receiver to jump to seconds. The value is not clamped
// here; the receiver clamps it to the media duration.
func (s *Session) Seek(seconds float64) error {
	return s.rcv.Seek(int(math.Round(seconds)))
}

// SetVolume sets the device volume, level in [0, 1].
func (s *Session) SetVolume(level float64) error {
	level = math.Max(0, math.Min(1, level))
	return s.rcv.SetVolume(float32(level))
}

// SetMuted mutes or unmutes the device.
func (s *Session) SetMuted(muted bool) error {
	return s.rcv.SetMuted(muted)
}

// QueueNext advances within the receiver queue.
func (s *Session) QueueNext() error {
	return s.rcv.QueueNext()
}

// QueuePrev goes back within the receiver queue.
func (s *Session) QueuePrev() error {
	return s.rcv.QueuePrev()
}

// PlayerStatus returns the last recorded media status.
func (s *Session) PlayerStatus() PlayerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player
}

// ReceiverStatus returns the last recorded device status.
func (s *Session) ReceiverStatus() ReceiverStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receiver
}

// Record applies ev to the status snapshot. It is meant to be called from
// jobs drained on the control goroutine.
func (s *Session) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case ReceiverStatusEvent:
		s.receiver = ReceiverStatus{Volume: e.Volume, Muted: e.Muted}
	case PlayerStatusEvent:
		s.player = PlayerStatus{
			State:       e.State,
			CurrentTime: e.CurrentTime,
			Duration:    e.Duration,
			Title:       e.Title,
		}
	}
}

// Subscribe registers fn for status events and returns its handle.
// fn runs on the watcher goroutine, never on the caller's.
func (s *Session) Subscribe(fn func(Event)) string {
	id := uuid.NewString()

	s.subsMu.Lock()
	s.subs[id] = fn
	s.subsMu.Unlock()

	return id
}

// Unsubscribe removes the handler registered under id.
func (s *Session) Unsubscribe(id string) {
	s.subsMu.Lock()
	delete(s.subs, id)
	s.subsMu.Unlock()
}

func (s *Session) publish(ev Event) {
	s.subsMu.Lock()
	handlers := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

func (s *Session) watch(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last *castprotocol.CastStatus
	for {
		status, err := s.rcv.GetStatus()
		if err != nil {
			s.log.Debug().Str("Method", "watch").Err(err).Msg("status poll failed")
		} else {
			for _, ev := range diffStatus(last, status) {
				if ctx.Err() != nil {
					return
				}
				s.publish(ev)
			}
			last = status
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
