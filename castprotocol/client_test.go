package castprotocol

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishen/go-chromecast/cast"
)

type sentMessage struct {
	destination string
	namespace   string
	body        map[string]any
}

type fakeConn struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error

	// onSend runs after a message is recorded, with its type.
	onSend func(msgType string)
}

func (f *fakeConn) Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error {
	if f.err != nil {
		return f.err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		return err
	}

	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{destination: destinationID, namespace: namespace, body: body})
	f.mu.Unlock()

	if f.onSend != nil {
		msgType, _ := body["type"].(string)
		f.onSend(msgType)
	}
	return nil
}

func (f *fakeConn) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i], _ = m.body["type"].(string)
	}
	return out
}

type fakeApp struct {
	app    *cast.Application
	media  *cast.Media
	volume *cast.Volume

	seekedTo int
	closed   int
	calls    []string

	// onUpdate models the status refresh of the real application.
	onUpdate func(f *fakeApp)
}

func (f *fakeApp) Start(addr string, port int) error {
	f.calls = append(f.calls, "Start")
	return nil
}
func (f *fakeApp) Update() error {
	if f.onUpdate != nil {
		f.onUpdate(f)
	}
	return nil
}
func (f *fakeApp) App() *cast.Application {
	return f.app
}
func (f *fakeApp) Status() (*cast.Application, *cast.Media, *cast.Volume) {
	return f.app, f.media, f.volume
}
func (f *fakeApp) Pause() error {
	f.calls = append(f.calls, "Pause")
	return nil
}
func (f *fakeApp) Unpause() error {
	f.calls = append(f.calls, "Unpause")
	return nil
}
func (f *fakeApp) Stop() error {
	f.calls = append(f.calls, "Stop")
	return nil
}
func (f *fakeApp) SeekFromStart(value int) error {
	f.seekedTo = value
	return nil
}
func (f *fakeApp) SetVolume(value float32) error {
	f.calls = append(f.calls, "SetVolume")
	return nil
}
func (f *fakeApp) SetMuted(value bool) error {
	f.calls = append(f.calls, "SetMuted")
	return nil
}
func (f *fakeApp) Close(stopMedia bool) error {
	f.closed++
	return nil
}

func newTestClient(app *fakeApp, conn *fakeConn) *CastClient {
	retryDelay = 0
	return &CastClient{app: app, conn: conn, host: "192.168.1.20", port: DefaultPort, connected: true}
}

// reportSessionAfterLoad makes the receiver report media session id on the
// first refresh after each LOAD, the way a real device answers.
func reportSessionAfterLoad(app *fakeApp, conn *fakeConn, ids ...int) {
	var pending []int
	conn.onSend = func(msgType string) {
		if msgType == "LOAD" && len(ids) > 0 {
			pending = append(pending, ids[0])
			ids = ids[1:]
		}
	}
	app.onUpdate = func(f *fakeApp) {
		if len(pending) > 0 {
			f.media = &cast.Media{MediaSessionId: pending[0], PlayerState: StateBuffering}
			pending = pending[1:]
		}
	}
}

func TestLoadLaunchesReceiverThenLoadsWithTitle(t *testing.T) {
	app := &fakeApp{app: &cast.Application{TransportId: "transport-1"}}
	conn := &fakeConn{}
	reportSessionAfterLoad(app, conn, 4)
	c := newTestClient(app, conn)

	require.NoError(t, c.Load("http://10.0.0.2:8000/song.mp3", "audio/mp3", "song.mp3", true))

	require.Len(t, conn.sent, 2)
	require.Equal(t, "LAUNCH", conn.sent[0].body["type"])
	require.Equal(t, defaultMediaReceiverAppID, conn.sent[0].body["appId"])
	require.Equal(t, namespaceReceiver, conn.sent[0].namespace)

	load := conn.sent[1]
	require.Equal(t, "LOAD", load.body["type"])
	require.Equal(t, "transport-1", load.destination)
	require.Equal(t, namespaceMedia, load.namespace)
	require.Equal(t, true, load.body["autoplay"])

	media := load.body["media"].(map[string]any)
	require.Equal(t, "http://10.0.0.2:8000/song.mp3", media["contentId"])
	require.Equal(t, "audio/mp3", media["contentType"])
	require.Equal(t, "song.mp3", media["metadata"].(map[string]any)["title"])
}

func TestLoadFailsWithoutTransport(t *testing.T) {
	app := &fakeApp{}
	conn := &fakeConn{}
	c := newTestClient(app, conn)

	err := c.Load("http://10.0.0.2/a.mp3", "audio/mp3", "", true)
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestEnqueueInsertsIntoExistingSession(t *testing.T) {
	app := &fakeApp{
		app:   &cast.Application{TransportId: "transport-1"},
		media: &cast.Media{MediaSessionId: 7, PlayerState: StatePlaying},
	}
	conn := &fakeConn{}
	c := newTestClient(app, conn)

	require.NoError(t, c.Enqueue("https://cdn.example/seg2.ts", "audio/mp3", "Live", true))

	require.Len(t, conn.sent, 1)
	msg := conn.sent[0].body
	require.Equal(t, "QUEUE_INSERT", msg["type"])
	require.EqualValues(t, 7, msg["mediaSessionId"])

	items := msg["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	require.Equal(t, true, item["autoplay"])
	require.Equal(t, "https://cdn.example/seg2.ts", item["media"].(map[string]any)["contentId"])
}

func TestEnqueueOnIdleReceiverLoads(t *testing.T) {
	app := &fakeApp{app: &cast.Application{TransportId: "transport-1"}}
	conn := &fakeConn{}
	reportSessionAfterLoad(app, conn, 1)
	c := newTestClient(app, conn)

	require.NoError(t, c.Enqueue("http://10.0.0.2/a.mp3", "audio/mp3", "a.mp3", false))

	require.Equal(t, []string{"LAUNCH", "LOAD"}, conn.types())
	require.Equal(t, false, conn.sent[1].body["autoplay"])
}

func TestLoadThenEnqueueAppendsInOrder(t *testing.T) {
	app := &fakeApp{app: &cast.Application{TransportId: "transport-1"}}
	conn := &fakeConn{}
	reportSessionAfterLoad(app, conn, 12)
	c := newTestClient(app, conn)

	require.NoError(t, c.Load("https://cdn.example/seg1.ts", "audio/mp3", "Live", true))
	require.NoError(t, c.Enqueue("https://cdn.example/seg2.ts", "audio/mp3", "Live", true))
	require.NoError(t, c.Enqueue("https://cdn.example/seg3.ts", "audio/mp3", "Live", true))

	require.Equal(t, []string{"LAUNCH", "LOAD", "QUEUE_INSERT", "QUEUE_INSERT"}, conn.types())
	for i, want := range []string{"https://cdn.example/seg2.ts", "https://cdn.example/seg3.ts"} {
		msg := conn.sent[2+i].body
		require.EqualValues(t, 12, msg["mediaSessionId"])
		item := msg["items"].([]any)[0].(map[string]any)
		require.Equal(t, want, item["media"].(map[string]any)["contentId"])
	}
}

func TestEnqueueUsesLoadedSessionWhileStatusLags(t *testing.T) {
	app := &fakeApp{app: &cast.Application{TransportId: "transport-1"}}
	conn := &fakeConn{}
	reportSessionAfterLoad(app, conn, 8)
	c := newTestClient(app, conn)

	require.NoError(t, c.Load("https://cdn.example/seg1.ts", "audio/mp3", "Live", true))
	// The next status no longer carries a media entry.
	app.media = nil

	require.NoError(t, c.Enqueue("https://cdn.example/seg2.ts", "audio/mp3", "Live", true))
	require.Equal(t, []string{"LAUNCH", "LOAD", "QUEUE_INSERT"}, conn.types())
	require.EqualValues(t, 8, conn.sent[2].body["mediaSessionId"])
}

func TestLoadWaitsForNewSessionID(t *testing.T) {
	app := &fakeApp{
		app:   &cast.Application{TransportId: "transport-1"},
		media: &cast.Media{MediaSessionId: 5, PlayerState: StateIdle},
	}
	conn := &fakeConn{}
	reportSessionAfterLoad(app, conn, 6)
	c := newTestClient(app, conn)

	require.NoError(t, c.Load("https://cdn.example/seg1.ts", "audio/mp3", "Live", true))
	require.NoError(t, c.Enqueue("https://cdn.example/seg2.ts", "audio/mp3", "Live", true))

	require.Equal(t, []string{"LAUNCH", "LOAD", "QUEUE_INSERT"}, conn.types())
	require.EqualValues(t, 6, conn.sent[2].body["mediaSessionId"])
}

func TestLoadWithoutAcknowledgementFails(t *testing.T) {
	app := &fakeApp{app: &cast.Application{TransportId: "transport-1"}}
	conn := &fakeConn{}
	c := newTestClient(app, conn)

	err := c.Load("https://cdn.example/seg1.ts", "audio/mp3", "Live", true)
	require.ErrorIs(t, err, ErrNoMediaSession)
	require.Equal(t, []string{"LAUNCH", "LOAD"}, conn.types())
}

func TestGetStatusConcurrentWithCommands(t *testing.T) {
	app := &fakeApp{app: &cast.Application{TransportId: "transport-1"}}
	app.onUpdate = func(f *fakeApp) {
		f.media = &cast.Media{MediaSessionId: 2, PlayerState: StatePlaying}
		f.volume = &cast.Volume{Level: 0.5}
	}
	conn := &fakeConn{}
	c := newTestClient(app, conn)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 50 {
			_, err := c.GetStatus()
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			assert.NoError(t, c.Enqueue("https://cdn.example/a.ts", "audio/mp3", "a", true))
		}
	}()
	wg.Wait()

	require.Len(t, conn.types(), 50)
}

func TestQueueJumpDirections(t *testing.T) {
	app := &fakeApp{
		app:   &cast.Application{TransportId: "transport-1"},
		media: &cast.Media{MediaSessionId: 3},
	}
	conn := &fakeConn{}
	c := newTestClient(app, conn)

	require.NoError(t, c.QueueNext())
	require.NoError(t, c.QueuePrev())

	require.Len(t, conn.sent, 2)
	require.Equal(t, "QUEUE_UPDATE", conn.sent[0].body["type"])
	require.EqualValues(t, 1, conn.sent[0].body["jump"])
	require.EqualValues(t, -1, conn.sent[1].body["jump"])
}

func TestQueueJumpWithoutSession(t *testing.T) {
	app := &fakeApp{app: &cast.Application{TransportId: "transport-1"}}
	c := newTestClient(app, &fakeConn{})

	require.ErrorIs(t, c.QueueNext(), ErrNoMediaSession)
}

func TestSeekPassesNegativeValues(t *testing.T) {
	app := &fakeApp{}
	c := newTestClient(app, &fakeConn{})

	require.NoError(t, c.Seek(-5))
	require.Equal(t, -5, app.seekedTo)
}

func TestGetStatus(t *testing.T) {
	media := &cast.Media{PlayerState: StatePaused, CurrentTime: 12.5}
	media.Media.Duration = 200
	media.Media.Metadata.Title = "Track"

	app := &fakeApp{
		media:  media,
		volume: &cast.Volume{Level: 0.4, Muted: true},
	}
	c := newTestClient(app, &fakeConn{})

	st, err := c.GetStatus()
	require.NoError(t, err)
	require.Equal(t, StatePaused, st.PlayerState)
	require.InDelta(t, 12.5, st.CurrentTime, 0.001)
	require.InDelta(t, 200, st.Duration, 0.001)
	require.InDelta(t, 0.4, st.Volume, 0.001)
	require.True(t, st.Muted)
	require.Equal(t, "Track", st.MediaTitle)
}

func TestGetStatusWithoutMediaIsIdle(t *testing.T) {
	c := newTestClient(&fakeApp{}, &fakeConn{})

	st, err := c.GetStatus()
	require.NoError(t, err)
	require.Equal(t, StateIdle, st.PlayerState)
}

func TestCommandsRequireConnection(t *testing.T) {
	c := newTestClient(&fakeApp{}, &fakeConn{})
	c.connected = false

	require.ErrorIs(t, c.Pause(), ErrNotConnected)
	require.ErrorIs(t, c.SetMuted(true), ErrNotConnected)
	require.ErrorIs(t, c.Load("http://x/a.mp3", "audio/mp3", "", true), ErrNotConnected)
	_, err := c.GetStatus()
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIsIdempotent(t *testing.T) {
	app := &fakeApp{}
	c := newTestClient(app, &fakeConn{})

	require.NoError(t, c.Close(false))
	require.NoError(t, c.Close(false))
	require.Equal(t, 1, app.closed)
	require.False(t, c.IsConnected())
}

func TestSendErrorsAreWrapped(t *testing.T) {
	boom := errors.New("boom")
	conn := &fakeConn{err: boom}

	err := QueueJump(conn, "t", 1, 1)
	require.ErrorIs(t, err, boom)
}
