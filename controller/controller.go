// Package controller is the command source behind the control surface. It
// owns the cast session for the lifetime of the player screen, resolves
// media references and funnels every status update through the job queue,
// so presentation state is only touched from the goroutine that drains it.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go2tv.app/go2cast/bridge"
	"go2tv.app/go2cast/jobqueue"
	"go2tv.app/go2cast/media"
	"go2tv.app/go2cast/servefiles"
	"go2tv.app/go2cast/session"
	"golang.org/x/time/rate"
)

var (
	ErrMalformedInput = errors.New("controller: malformed input")
	ErrThrottled      = errors.New("controller: stream extraction already requested")
	ErrClosed         = errors.New("controller: closed")
)

// DefaultExtractionInterval is the minimum spacing between two stream
// extractions.
const DefaultExtractionInterval = 3 * time.Second

// Session is the cast session driven by the controller.
// *session.Session implements it.
type Session interface {
	PlayMedia(ref media.Reference) error
	Pause() error
	Resume() error
	Stop() error
	Seek(seconds float64) error
	SetVolume(level float64) error
	SetMuted(muted bool) error
	QueueNext() error
	QueuePrev() error
	PlayerStatus() session.PlayerStatus
	ReceiverStatus() session.ReceiverStatus
	Record(ev session.Event)
	Subscribe(fn func(session.Event)) string
	Unsubscribe(id string)
	Disconnect() error
}

var _ Session = (*session.Session)(nil)

// Resolver turns references into playable media.
type Resolver interface {
	Listing(ctx context.Context, baseURL string) ([]media.Reference, error)
	Extract(ctx context.Context, pageURL string) ([]media.Reference, error)
}

// FileServer is the local directory server.
type FileServer interface {
	Start(dir, host string, port int) error
	Stop() error
	Running() bool
}

// StatusSink is the presentation state of the control surface. All calls
// happen on the goroutine that calls the controller's commands.
type StatusSink interface {
	bridge.StatusSink
	ShowListing(titles []string)
	ShowServerRunning(running bool)
	ShowMessage(msg string)
}

// Controller implements the command source. Commands must be called from
// a single goroutine, the one that owns the sink.
type Controller struct {
	sess    Session
	res     Resolver
	srv     FileServer
	queue   *jobqueue.Queue
	sink    StatusSink
	limiter *rate.Limiter
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subID  string

	// lastPlay closes when the most recently started play batch is done.
	lastPlay chan struct{}

	listing []media.Reference
	closed  bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l.With().Str("Component", "controller").Logger()
	}
}

// WithExtractionLimit replaces the default one-per-3s extraction limiter.
func WithExtractionLimit(every rate.Limit, burst int) Option {
	return func(c *Controller) {
		c.limiter = rate.NewLimiter(every, burst)
	}
}

// New wires sess to sink through queue and subscribes to its status.
func New(sess Session, res Resolver, srv FileServer, queue *jobqueue.Queue, sink StatusSink, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		sess:    sess,
		res:     res,
		srv:     srv,
		queue:   queue,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(DefaultExtractionInterval), 1),
		log:     zerolog.Nop(),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, o := range opts {
		o(c)
	}

	b := bridge.New(queue, sink, sess)
	c.subID = sess.Subscribe(b.Handle)

	return c
}

// run issues one command, reports its failure on the message line and
// drains the queue so feedback caused by the command shows up at once.
func (c *Controller) run(method string, fn func() error) error {
	if c.closed {
		return ErrClosed
	}

	err := fn()
	if err != nil {
		c.log.Error().Str("Method", method).Err(err).Msg("command failed")
		c.sink.ShowMessage(err.Error())
	}

	c.queue.DrainAndRun()
	return err
}

// Drain runs the pending jobs and returns how many ran.
func (c *Controller) Drain() int {
	return c.queue.DrainAndRun()
}

// ConnectListing loads the directory index served at host:port.
func (c *Controller) ConnectListing(host, port string) error {
	return c.run("ConnectListing", func() error {
		host = strings.TrimSpace(host)
		if host == "" {
			return fmt.Errorf("%w: host is required", ErrMalformedInput)
		}
		if strings.TrimSpace(port) == "" {
			return fmt.Errorf("%w: port is required", ErrMalformedInput)
		}

		p, err := servefiles.ParsePort(port)
		if err != nil {
			return err
		}

		base := fmt.Sprintf("http://%s/", net.JoinHostPort(host, strconv.Itoa(p)))
		c.sink.ShowMessage("loading " + base)

		c.background("ConnectListing", func() func() {
			refs, err := c.res.Listing(c.ctx, base)
			return func() { c.showListing(base, refs, err) }
		})
		return nil
	})
}

// background runs fn off the control goroutine and queues the job it
// returns. Results that arrive after Close are dropped.
func (c *Controller) background(method string, fn func() func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		job := fn()
		if c.ctx.Err() != nil {
			c.log.Debug().Str("Method", method).Msg("dropping result after close")
			return
		}

		c.queue.Enqueue(func() {
			if !c.closed {
				job()
			}
		})
	}()
}

// report shows a failed background command on the message line.
func (c *Controller) report(method string, err error) {
	c.log.Error().Str("Method", method).Err(err).Msg("command failed")
	c.sink.ShowMessage(err.Error())
}

func (c *Controller) showListing(base string, refs []media.Reference, err error) {
	if err != nil {
		c.report("ConnectListing", err)
		return
	}

	c.listing = refs
	titles := make([]string, len(refs))
	for i, ref := range refs {
		titles[i] = ref.Title
	}
	c.sink.ShowListing(titles)
	c.sink.ShowMessage(fmt.Sprintf("%d entries from %s", len(refs), base))
}

// play sends refs to the session in order, off the control goroutine.
// Batches run one after another in the order they were issued; a failure
// stops the rest of its batch.
func (c *Controller) play(method string, refs []media.Reference) {
	prev, done := c.lastPlay, make(chan struct{})
	c.lastPlay = done

	c.background(method, func() func() {
		defer close(done)
		if prev != nil {
			<-prev
		}

		sent := 0
		var err error
		for _, ref := range refs {
			if c.ctx.Err() != nil {
				break
			}
			if err = c.sess.PlayMedia(ref); err != nil {
				break
			}
			sent++
		}

		return func() {
			if err != nil {
				c.report(method, err)
				return
			}
			if sent > 0 {
				c.sink.ShowMessage(fmt.Sprintf("queued %d item(s) of %s", sent, refs[0].Title))
			}
		}
	})
}

func (c *Controller) listingEntry(i int) (media.Reference, error) {
	if i < 0 || i >= len(c.listing) {
		return media.Reference{}, fmt.Errorf("%w: no listing entry selected", ErrMalformedInput)
	}
	return c.listing[i], nil
}

// PlayLocal replaces current playback with listing entry i.
func (c *Controller) PlayLocal(i int) error {
	return c.run("PlayLocal", func() error {
		ref, err := c.listingEntry(i)
		if err != nil {
			return err
		}

		ref.Enqueue, ref.Autoplay = false, true
		c.play("PlayLocal", []media.Reference{ref})
		return nil
	})
}

// EnqueueLocal appends listing entry i to the receiver queue without
// starting it.
func (c *Controller) EnqueueLocal(i int) error {
	return c.run("EnqueueLocal", func() error {
		ref, err := c.listingEntry(i)
		if err != nil {
			return err
		}

		ref.Enqueue, ref.Autoplay = true, false
		c.play("EnqueueLocal", []media.Reference{ref})
		return nil
	})
}

// PlayStream extracts pageURL in the background and replaces playback
// with the result.
func (c *Controller) PlayStream(pageURL string) error {
	return c.run("PlayStream", func() error {
		return c.extract(pageURL, false)
	})
}

// EnqueueStream extracts pageURL in the background and appends every
// resulting reference to the receiver queue.
func (c *Controller) EnqueueStream(pageURL string) error {
	return c.run("EnqueueStream", func() error {
		return c.extract(pageURL, true)
	})
}

func (c *Controller) extract(pageURL string, enqueue bool) error {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return fmt.Errorf("%w: url is required", ErrMalformedInput)
	}

	if !c.limiter.Allow() {
		return ErrThrottled
	}

	c.sink.ShowMessage("resolving " + pageURL)

	c.background("extract", func() func() {
		refs, err := c.res.Extract(c.ctx, pageURL)
		return func() { c.playExtracted(refs, err, enqueue) }
	})

	return nil
}

// playExtracted runs as a drained job on the control goroutine.
func (c *Controller) playExtracted(refs []media.Reference, err error, enqueue bool) {
	if err != nil {
		c.report("playExtracted", err)
		return
	}

	if enqueue {
		for i := range refs {
			refs[i].Enqueue, refs[i].Autoplay = true, true
		}
	}

	c.play("playExtracted", refs)
}

// TogglePlayback pauses a playing receiver and resumes a paused one.
// Any other state is left alone.
func (c *Controller) TogglePlayback() error {
	return c.run("TogglePlayback", func() error {
		switch c.sess.PlayerStatus().State {
		case session.Playing:
			if err := c.sess.Pause(); err != nil {
				return err
			}
			c.sink.ShowPlayerState(session.Paused)
		case session.Paused:
			if err := c.sess.Resume(); err != nil {
				return err
			}
			c.sink.ShowPlayerState(session.Playing)
		default:
			c.log.Debug().Str("Method", "TogglePlayback").
				Str("State", string(c.sess.PlayerStatus().State)).Msg("nothing to toggle")
		}
		return nil
	})
}

// Stop stops playback.
func (c *Controller) Stop() error {
	return c.run("Stop", c.sess.Stop)
}

// Next jumps to the next queue item.
func (c *Controller) Next() error {
	return c.run("Next", c.sess.QueueNext)
}

// Prev jumps to the previous queue item.
func (c *Controller) Prev() error {
	return c.run("Prev", c.sess.QueuePrev)
}

// ToggleMute flips the receiver mute flag.
func (c *Controller) ToggleMute() error {
	return c.run("ToggleMute", func() error {
		muted := !c.sess.ReceiverStatus().Muted
		if err := c.sess.SetMuted(muted); err != nil {
			return err
		}
		c.sink.ShowMuted(muted)
		return nil
	})
}

// SetVolume sets the receiver volume from a 0-100 percentage.
func (c *Controller) SetVolume(percent int) error {
	return c.run("SetVolume", func() error {
		percent = max(0, min(100, percent))
		if err := c.sess.SetVolume(float64(percent) / 100); err != nil {
			return err
		}
		c.sink.ShowVolume(percent)
		return nil
	})
}

// Seek jumps to an absolute position in seconds.
func (c *Controller) Seek(seconds float64) error {
	return c.run("Seek", func() error {
		return c.sess.Seek(seconds)
	})
}

// SeekBy moves the position by delta seconds relative to the last known
// position.
func (c *Controller) SeekBy(delta float64) error {
	return c.run("SeekBy", func() error {
		return c.sess.Seek(c.sess.PlayerStatus().CurrentTime + delta)
	})
}

// ToggleServer starts serving dir on host:port, or stops the running
// server.
func (c *Controller) ToggleServer(dir, host, port string) error {
	return c.run("ToggleServer", func() error {
		if c.srv.Running() {
			if err := c.srv.Stop(); err != nil {
				return err
			}
			c.sink.ShowServerRunning(false)
			c.sink.ShowMessage("server stopped")
			return nil
		}

		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%w: directory is required", ErrMalformedInput)
		}
		if strings.TrimSpace(host) == "" {
			return fmt.Errorf("%w: host is required", ErrMalformedInput)
		}

		p, err := servefiles.ParsePort(port)
		if err != nil {
			return err
		}

		if err := c.srv.Start(dir, strings.TrimSpace(host), p); err != nil {
			return err
		}

		c.sink.ShowServerRunning(true)
		c.sink.ShowMessage(fmt.Sprintf("serving %s on %s", dir, net.JoinHostPort(host, strconv.Itoa(p))))
		return nil
	})
}

// Close cancels in-flight extractions, stops the status subscription,
// the local server and the session. Later calls do nothing.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.cancel()
	c.sess.Unsubscribe(c.subID)
	c.wg.Wait()

	return errors.Join(c.srv.Stop(), c.sess.Disconnect())
}
