package interactive

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"go2tv.app/go2cast/session"
)

const (
	volumeStep = 5
	seekStep   = 10
)

// Commands is the command source driven by the player screen.
// *controller.Controller implements it.
type Commands interface {
	ConnectListing(host, port string) error
	PlayLocal(i int) error
	EnqueueLocal(i int) error
	PlayStream(pageURL string) error
	EnqueueStream(pageURL string) error
	TogglePlayback() error
	Stop() error
	Next() error
	Prev() error
	ToggleMute() error
	SetVolume(percent int) error
	Seek(seconds float64) error
	SeekBy(delta float64) error
	ToggleServer(dir, host, port string) error
	Drain() int
	Close() error
}

// Field identifies an editable input line.
type Field int

const (
	FieldURL Field = iota
	FieldHost
	FieldPort
	FieldDir
	fieldCount
)

var fieldLabels = [fieldCount]string{"URL ", "Host", "Port", "Dir "}

// Defaults pre-fill the input lines.
type Defaults struct {
	URL  string
	Host string
	Port string
	Dir  string
}

// PlayerScreen renders the receiver state and maps keys to commands. Its
// Show* methods make it the controller's status sink; they are only
// called on the event loop goroutine, from drained jobs or key handlers.
type PlayerScreen struct {
	Current tcell.Screen
	device  string

	volume   int
	muted    bool
	duration float64
	position float64
	title    string
	state    session.PlayerState
	listing  []string
	selected int
	serving  bool
	message  string

	fields  [fieldCount]string
	focus   Field
	editing bool
}

// NewPlayerScreen returns a player screen for the named device. The
// screen must already be initialised.
func NewPlayerScreen(s tcell.Screen, device string, d Defaults) *PlayerScreen {
	p := &PlayerScreen{
		Current: s,
		device:  device,
		state:   session.Idle,
		message: "Waiting for status...",
	}
	p.fields[FieldURL] = d.URL
	p.fields[FieldHost] = d.Host
	p.fields[FieldPort] = d.Port
	p.fields[FieldDir] = d.Dir
	return p
}

// Wake posts an interrupt so the event loop drains pending jobs. It is
// safe to call from any goroutine and is meant as the job queue hook.
func (p *PlayerScreen) Wake() {
	_ = p.Current.PostEvent(tcell.NewEventInterrupt(nil))
}

func (p *PlayerScreen) ShowVolume(percent int)                 { p.volume = percent }
func (p *PlayerScreen) ShowMuted(muted bool)                   { p.muted = muted }
func (p *PlayerScreen) ShowDuration(seconds float64)           { p.duration = seconds }
func (p *PlayerScreen) ShowPosition(seconds float64)           { p.position = seconds }
func (p *PlayerScreen) ShowTitle(title string)                 { p.title = title }
func (p *PlayerScreen) ShowPlayerState(st session.PlayerState) { p.state = st }
func (p *PlayerScreen) ShowServerRunning(running bool)         { p.serving = running }
func (p *PlayerScreen) ShowMessage(msg string)                 { p.message = msg }

func (p *PlayerScreen) ShowListing(titles []string) {
	p.listing = titles
	p.selected = 0
}

// Run processes events until the user quits, then closes cmds.
func (p *PlayerScreen) Run(cmds Commands) error {
	cmds.Drain()
	p.draw()

	for {
		switch ev := p.Current.PollEvent().(type) {
		case nil:
			return cmds.Close()
		case *tcell.EventInterrupt:
			cmds.Drain()
		case *tcell.EventResize:
			p.Current.Sync()
		case *tcell.EventKey:
			if quit := p.handleKey(cmds, ev); quit {
				return cmds.Close()
			}
		}
		p.draw()
	}
}

// handleKey maps one key press to a command and reports whether the
// user asked to quit. Command errors are already on the message line.
func (p *PlayerScreen) handleKey(cmds Commands, ev *tcell.EventKey) bool {
	if ev.Key() == tcell.KeyCtrlC {
		return true
	}

	if p.editing {
		p.editKey(ev)
		return false
	}

	switch ev.Key() {
	case tcell.KeyEscape:
		return true
	case tcell.KeyTab:
		p.editing = true
	case tcell.KeyEnter:
		_ = cmds.PlayLocal(p.selected)
	case tcell.KeyUp:
		p.selected = max(0, p.selected-1)
	case tcell.KeyDown:
		p.selected = max(0, min(len(p.listing)-1, p.selected+1))
	case tcell.KeyLeft:
		_ = cmds.SeekBy(-seekStep)
	case tcell.KeyRight:
		_ = cmds.SeekBy(seekStep)
	case tcell.KeyHome:
		_ = cmds.Seek(0)
	case tcell.KeyPgUp:
		_ = cmds.SetVolume(p.volume + volumeStep)
	case tcell.KeyPgDn:
		_ = cmds.SetVolume(p.volume - volumeStep)
	case tcell.KeyRune:
		return p.runeKey(cmds, ev.Rune())
	}

	return false
}

func (p *PlayerScreen) runeKey(cmds Commands, r rune) bool {
	switch r {
	case 'q':
		return true
	case 'p', ' ':
		_ = cmds.TogglePlayback()
	case 's':
		_ = cmds.Stop()
	case 'n':
		_ = cmds.Next()
	case 'b':
		_ = cmds.Prev()
	case 'm':
		_ = cmds.ToggleMute()
	case 'a':
		_ = cmds.EnqueueLocal(p.selected)
	case 'c':
		_ = cmds.ConnectListing(p.fields[FieldHost], p.fields[FieldPort])
	case 'h':
		_ = cmds.ToggleServer(p.fields[FieldDir], p.fields[FieldHost], p.fields[FieldPort])
	case 'y':
		_ = cmds.PlayStream(p.fields[FieldURL])
	case 'Y':
		_ = cmds.EnqueueStream(p.fields[FieldURL])
	}
	return false
}

// editKey edits the focused input line.
func (p *PlayerScreen) editKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyEnter:
		p.editing = false
	case tcell.KeyTab:
		p.focus = (p.focus + 1) % fieldCount
	case tcell.KeyBacktab:
		p.focus = (p.focus + fieldCount - 1) % fieldCount
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if v := []rune(p.fields[p.focus]); len(v) > 0 {
			p.fields[p.focus] = string(v[:len(v)-1])
		}
	case tcell.KeyCtrlU:
		p.fields[p.focus] = ""
	case tcell.KeyRune:
		p.fields[p.focus] += string(ev.Rune())
	}
}

func (p *PlayerScreen) draw() {
	s := p.Current
	w, h := s.Size()
	s.Clear()

	emitStr(s, 1, 0, boldStyle, truncate("go2cast - "+p.device, w-2))
	emitStr(s, 1, 1, dimStyle, "Press ESC or q to exit.")

	emitCentered(s, 3, defStyle, truncate("Title: "+p.title, w-2))

	stateStyle := boldStyle
	if p.state == session.Buffering {
		stateStyle = blinkStyle
	}
	emitCentered(s, 4, stateStyle, string(p.state))

	clock := formatClock(p.position) + " / " + formatClock(p.duration)
	bar := progressBar(p.position, p.duration, min(50, w-len(clock)-4))
	emitCentered(s, 5, defStyle, bar+" "+clock)

	vol := fmt.Sprintf("Volume: %d%%", p.volume)
	if p.muted {
		vol += "  MUTED"
	}
	emitCentered(s, 6, defStyle, vol)

	for i := range fieldCount {
		y := 8 + int(i)
		label := fieldLabels[i] + ": "
		style := defStyle
		if p.editing && p.focus == i {
			style = selectStyle
		}
		x := emitStr(s, 1, y, boldStyle, label)
		emitStr(s, x, y, style, truncate(p.fields[i], w-x-1))
	}
	if p.serving {
		emitStr(s, 1, 12, dimStyle, "serving "+p.fields[FieldDir])
	}

	top := 14
	rows := max(0, h-top-3)
	start := 0
	if p.selected >= rows && rows > 0 {
		start = p.selected - rows + 1
	}
	for i := start; i < len(p.listing) && i-start < rows; i++ {
		style := defStyle
		if i == p.selected {
			style = selectStyle
		}
		emitStr(s, 3, top+i-start, style, truncate(p.listing[i], w-4))
	}

	emitStr(s, 1, h-2, boldStyle, truncate(p.message, w-2))
	help := "p play/pause  s stop  n/b next/prev  m mute  PgUp/PgDn volume  Left/Right seek  " +
		"Enter play  a enqueue  c list  h server  y/Y stream  Tab edit"
	emitStr(s, 1, h-1, dimStyle, truncate(help, w-2))

	s.Show()
}

// FieldValue returns the current text of an input line.
func (p *PlayerScreen) FieldValue(f Field) string {
	return strings.TrimSpace(p.fields[f])
}
