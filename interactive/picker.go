package interactive

import (
	"errors"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"go2tv.app/go2cast/devices"
)

// ErrCancelled is returned when the user leaves the picker without
// choosing a device.
var ErrCancelled = errors.New("interactive: selection cancelled")

// DevicePicker lists discovered receivers and lets the user choose one.
type DevicePicker struct {
	Current tcell.Screen
	devices []devices.CastDevice
	cursor  int
}

// NewDevicePicker returns a picker for devs drawing on s. The screen must
// already be initialised.
func NewDevicePicker(s tcell.Screen, devs []devices.CastDevice) *DevicePicker {
	return &DevicePicker{Current: s, devices: devs}
}

// Run blocks until a device is chosen and returns its index. It returns
// devices.ErrNoDeviceAvailable for an empty list and ErrCancelled on Esc.
func (p *DevicePicker) Run() (int, error) {
	if len(p.devices) == 0 {
		return -1, devices.ErrNoDeviceAvailable
	}

	p.draw()
	for {
		switch ev := p.Current.PollEvent().(type) {
		case nil:
			return -1, ErrCancelled
		case *tcell.EventResize:
			p.Current.Sync()
		case *tcell.EventKey:
			if idx, done, err := p.handleKey(ev); done {
				return idx, err
			}
		}
		p.draw()
	}
}

func (p *DevicePicker) handleKey(ev *tcell.EventKey) (int, bool, error) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return -1, true, ErrCancelled
	case tcell.KeyEnter:
		return p.cursor, true, nil
	case tcell.KeyUp:
		p.cursor = max(0, p.cursor-1)
	case tcell.KeyDown:
		p.cursor = min(len(p.devices)-1, p.cursor+1)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return -1, true, ErrCancelled
		case 'k':
			p.cursor = max(0, p.cursor-1)
		case 'j':
			p.cursor = min(len(p.devices)-1, p.cursor+1)
		}
	}
	return -1, false, nil
}

func (p *DevicePicker) draw() {
	s := p.Current
	w, _ := s.Size()
	s.Clear()

	emitStr(s, 1, 1, boldStyle, "Select a cast device")
	emitStr(s, 1, 2, dimStyle, "Up/Down to move, Enter to select, Esc to exit.")

	header := fmt.Sprintf("%-20s %-28s %s", "Model name", "Friendly name", "IP address")
	emitStr(s, 3, 4, boldStyle, truncate(header, w-4))

	for i, d := range p.devices {
		style := defStyle
		marker := "  "
		if i == p.cursor {
			style = selectStyle
			marker = "> "
		}
		line := fmt.Sprintf("%-20s %-28s %s", d.ModelName, d.FriendlyName, d.Host)
		emitStr(s, 1, 5+i, defStyle, marker)
		emitStr(s, 3, 5+i, style, truncate(line, w-4))
	}

	s.Show()
}
