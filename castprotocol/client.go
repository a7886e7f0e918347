package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
)

// DefaultPort is the Chromecast control port.
const DefaultPort = 8009

var (
	ErrNotConnected   = errors.New("chromecast: not connected")
	ErrNoMediaSession = errors.New("chromecast: no active media session")
	ErrNoTransport    = errors.New("chromecast: failed to get transport ID after retries")
)

// retryDelay is the base wait between transport lookups. Tests shrink it.
var retryDelay = 500 * time.Millisecond

// sessionWaitAttempts bounds how many status refreshes Load spends waiting
// for the receiver to report the new media session.
const sessionWaitAttempts = 10

// castApp is the subset of *application.Application the client drives.
type castApp interface {
	Start(addr string, port int) error
	Update() error
	App() *cast.Application
	Status() (*cast.Application, *cast.Media, *cast.Volume)
	Pause() error
	Unpause() error
	Stop() error
	SeekFromStart(value int) error
	SetVolume(value float32) error
	SetMuted(value bool) error
	Close(stopMedia bool) error
}

// CastClient wraps go-chromecast Application for simplified API
type CastClient struct {
	app         castApp
	conn        sender // keep reference to connection for custom commands
	mu          sync.RWMutex
	host        string
	port        int
	connected   bool
	sessionID   int
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Str("Component", "castprotocol").Logger()
		})
	}
	return &c.Logger
}

// NewCastClient creates a client for the device at host:port. A zero port
// selects DefaultPort.
func NewCastClient(host string, port int) (*CastClient, error) {
	if host == "" {
		return nil, fmt.Errorf("chromecast client: empty host")
	}
	if port == 0 {
		port = DefaultPort
	}

	// Create our own connection that we can use for custom commands
	conn := cast.NewConnection()

	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(3),
	)

	return &CastClient{
		app:    app,
		conn:   conn,
		host:   host,
		port:   port,
		Logger: zerolog.Nop(),
	}, nil
}

// Connect establishes connection to the Chromecast device.
func (c *CastClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil {
		return fmt.Errorf("chromecast connect: app is nil")
	}

	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Msg("connecting")
	if err := c.app.Start(c.host, c.port); err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect %s: %w", net.JoinHostPort(c.host, strconv.Itoa(c.port)), err)
	}
	c.connected = true
	c.Log().Debug().Str("Method", "Connect").Msg("connected successfully")
	return nil
}

// isTimeoutError checks if an error is a timeout/deadline exceeded error.
// This typically happens when the device needs to wake from standby.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// transportID refreshes the application state until the media receiver
// reports a transport ID.
func (c *CastClient) transportID(method string, attempts int) (string, error) {
	for i := range attempts {
		if err := c.app.Update(); err != nil {
			c.Log().Debug().Str("Method", method).Int("Attempt", i+1).Err(err).Msg("app.Update retry")
			time.Sleep(time.Duration(i+1) * retryDelay)
			continue
		}
		app := c.app.App()
		if app != nil && app.TransportId != "" {
			c.Log().Debug().Str("Method", method).Str("TransportId", app.TransportId).Msg("got transport ID")
			return app.TransportId, nil
		}
		time.Sleep(time.Duration(i+1) * retryDelay)
	}

	return "", ErrNoTransport
}

// mediaSession returns the transport and media session IDs of the media
// currently loaded on the receiver.
func (c *CastClient) mediaSession(method string) (string, int, error) {
	transportId, err := c.transportID(method, 3)
	if err != nil {
		return "", 0, err
	}

	id := c.currentSessionID()
	if id == 0 {
		id = c.sessionID
	}
	if id == 0 {
		return "", 0, ErrNoMediaSession
	}

	return transportId, id, nil
}

func (c *CastClient) currentSessionID() int {
	_, media, _ := c.app.Status()
	if media == nil {
		return 0
	}
	return media.MediaSessionId
}

// awaitMediaSession refreshes the status until the receiver reports a media
// session other than prev. The receiver keeps reporting the old session for
// a while after LOAD, and go-chromecast never clears it.
func (c *CastClient) awaitMediaSession(method string, prev int) (int, error) {
	for i := range sessionWaitAttempts {
		if err := c.app.Update(); err != nil {
			c.Log().Debug().Str("Method", method).Int("Attempt", i+1).Err(err).Msg("app.Update retry")
		} else if id := c.currentSessionID(); id != 0 && id != prev {
			return id, nil
		}
		time.Sleep(retryDelay)
	}

	return 0, fmt.Errorf("%w: receiver did not acknowledge the load", ErrNoMediaSession)
}

// Load replaces the receiver's playback with mediaURL.
// The default media receiver is (re)launched first, then a LOAD carrying
// the title metadata is sent.
func (c *CastClient) Load(mediaURL, contentType, title string, autoplay bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Load").Str("URL", mediaURL).Str("ContentType", contentType).Str("Title", title).Bool("Autoplay", autoplay).Msg("loading media")

	if !c.connected {
		return ErrNotConnected
	}

	prev := c.currentSessionID()

	var lastErr error
	for attempt := range 3 {
		if err := LaunchDefaultReceiver(c.conn); err != nil {
			lastErr = err
			if isTimeoutError(err) {
				c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Err(err).Msg("timeout, device may be waking up, retrying...")
				time.Sleep(4 * retryDelay)
				continue
			}
			c.Log().Error().Str("Method", "Load").Err(err).Msg("launch receiver failed")
			return fmt.Errorf("launch receiver: %w", err)
		}

		transportId, err := c.transportID("Load", 8)
		if err != nil {
			lastErr = err
			c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Msg("no transport ID, retrying...")
			continue
		}

		item := NewAudioItem(mediaURL, contentType, title)
		if err := LoadWithMetadata(c.conn, transportId, item, 0, autoplay); err != nil {
			lastErr = err
			if isTimeoutError(err) {
				c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Err(err).Msg("timeout, retrying...")
				continue
			}
			c.Log().Error().Str("Method", "Load").Err(err).Msg("load failed")
			return err
		}

		id, err := c.awaitMediaSession("Load", prev)
		if err != nil {
			c.sessionID = 0
			c.Log().Error().Str("Method", "Load").Err(err).Msg("no media session after load")
			return err
		}
		c.sessionID = id

		c.Log().Debug().Str("Method", "Load").Int("MediaSessionId", id).Msg("load success")
		return nil
	}

	c.Log().Error().Str("Method", "Load").Err(lastErr).Msg("load failed after retries")
	return lastErr
}

// Enqueue appends mediaURL to the receiver's queue. When nothing is loaded
// yet there is no queue to append to and the media is loaded instead.
func (c *CastClient) Enqueue(mediaURL, contentType, title string, autoplay bool) error {
	c.mu.Lock()

	c.Log().Debug().Str("Method", "Enqueue").Str("URL", mediaURL).Str("Title", title).Bool("Autoplay", autoplay).Msg("enqueueing media")

	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}

	transportId, sessionId, err := c.mediaSession("Enqueue")
	if errors.Is(err, ErrNoMediaSession) {
		c.mu.Unlock()
		c.Log().Debug().Str("Method", "Enqueue").Msg("no media session, falling back to load")
		return c.Load(mediaURL, contentType, title, autoplay)
	}
	defer c.mu.Unlock()
	if err != nil {
		c.Log().Error().Str("Method", "Enqueue").Err(err).Msg("failed")
		return err
	}

	item := NewAudioItem(mediaURL, contentType, title)
	if err := QueueInsert(c.conn, transportId, sessionId, item, autoplay); err != nil {
		c.Log().Error().Str("Method", "Enqueue").Err(err).Msg("failed")
		return err
	}

	return nil
}

func (c *CastClient) queueJump(method string, jump int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", method).Int("Jump", jump).Msg("jumping in queue")

	if !c.connected {
		return ErrNotConnected
	}

	transportId, sessionId, err := c.mediaSession(method)
	if err != nil {
		c.Log().Error().Str("Method", method).Err(err).Msg("failed")
		return err
	}

	return QueueJump(c.conn, transportId, sessionId, jump)
}

// QueueNext skips to the next queue item.
func (c *CastClient) QueueNext() error {
	return c.queueJump("QueueNext", 1)
}

// QueuePrev goes back to the previous queue item.
func (c *CastClient) QueuePrev() error {
	return c.queueJump("QueuePrev", -1)
}

// Play resumes playback.
func (c *CastClient) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.Log().Debug().Str("Method", "Play").Msg("resuming playback")
	err := c.app.Unpause()
	if err != nil {
		c.Log().Error().Str("Method", "Play").Err(err).Msg("failed")
	}
	return err
}

// Pause pauses playback.
func (c *CastClient) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.Log().Debug().Str("Method", "Pause").Msg("pausing playback")
	err := c.app.Pause()
	if err != nil {
		c.Log().Error().Str("Method", "Pause").Err(err).Msg("failed")
	}
	return err
}

// Stop stops playback and closes the media session.
func (c *CastClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.Log().Debug().Str("Method", "Stop").Msg("stopping playback")
	c.sessionID = 0
	err := c.app.Stop()
	if err != nil {
		c.Log().Error().Str("Method", "Stop").Err(err).Msg("failed")
	}
	return err
}

// Seek seeks to position in seconds from start.
func (c *CastClient) Seek(seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.Log().Debug().Str("Method", "Seek").Int("Seconds", seconds).Msg("seeking")
	err := c.app.SeekFromStart(seconds)
	if err != nil {
		c.Log().Error().Str("Method", "Seek").Err(err).Msg("failed")
	}
	return err
}

// SetVolume sets volume (0.0 to 1.0).
func (c *CastClient) SetVolume(level float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.Log().Debug().Str("Method", "SetVolume").Float32("Level", level).Msg("setting volume")
	err := c.app.SetVolume(level)
	if err != nil {
		c.Log().Error().Str("Method", "SetVolume").Err(err).Msg("failed")
	}
	return err
}

// SetMuted sets mute state.
func (c *CastClient) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.Log().Debug().Str("Method", "SetMuted").Bool("Muted", muted).Msg("setting mute")
	err := c.app.SetMuted(muted)
	if err != nil {
		c.Log().Error().Str("Method", "SetMuted").Err(err).Msg("failed")
	}
	return err
}

// GetStatus returns current playback status. go-chromecast updates its
// cached status without locking, so the refresh runs under c.mu like every
// other use of the application.
func (c *CastClient) GetStatus() (*CastStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	// Request fresh status from device (Update refreshes the cached status)
	if err := c.app.Update(); err != nil {
		c.Log().Debug().Str("Method", "GetStatus").Err(err).Msg("app.Update failed")
		return nil, err
	}
	_, media, vol := c.app.Status()
	status := &CastStatus{}
	if vol != nil {
		status.Volume = float32(vol.Level)
		status.Muted = vol.Muted
	}
	if media != nil {
		status.PlayerState = media.PlayerState
		status.CurrentTime = media.CurrentTime
		if media.Media.Duration > 0 {
			status.Duration = media.Media.Duration
		}
		status.ContentType = media.Media.ContentType
		status.MediaTitle = media.Media.Metadata.Title
		status.IdleReason = media.IdleReason
	} else {
		status.PlayerState = StateIdle
	}
	return status, nil
}

// Close disconnects from the Chromecast device. Closing a client that is
// not connected is a no-op.
func (c *CastClient) Close(stopMedia bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.Log().Debug().Str("Method", "Close").Bool("StopMedia", stopMedia).Msg("closing connection")
	c.connected = false
	c.sessionID = 0
	err := c.app.Close(stopMedia)
	if err != nil {
		c.Log().Error().Str("Method", "Close").Err(err).Msg("failed")
	}
	return err
}

// IsConnected returns whether client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Host returns the hostname of the Chromecast device.
func (c *CastClient) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}
