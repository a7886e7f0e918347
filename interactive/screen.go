// Package interactive is the terminal control surface: a device picker and
// a player screen. Everything in it runs on the tcell event loop goroutine.
package interactive

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/encoding"
	"github.com/mattn/go-runewidth"
)

var defStyle = tcell.StyleDefault.
	Background(tcell.ColorBlack).
	Foreground(tcell.ColorWhite)

var (
	boldStyle   = defStyle.Bold(true)
	dimStyle    = defStyle.Foreground(tcell.ColorGray)
	selectStyle = defStyle.Reverse(true)
	blinkStyle  = defStyle.Blink(true)
)

// InitScreen creates and initialises the terminal screen. The caller owns
// it and must call Fini.
func InitScreen() (tcell.Screen, error) {
	encoding.Register()

	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("interactive screen: %w", err)
	}
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("interactive screen init: %w", err)
	}

	s.SetStyle(defStyle)
	s.Clear()
	return s, nil
}

// emitStr draws str at x, y and returns the column after it.
func emitStr(s tcell.Screen, x, y int, style tcell.Style, str string) int {
	for _, c := range str {
		var comb []rune
		w := runewidth.RuneWidth(c)
		if w == 0 {
			comb = []rune{c}
			c = ' '
			w = 1
		}
		s.SetContent(x, y, c, comb, style)
		x += w
	}
	return x
}

// emitCentered draws str centered on row y.
func emitCentered(s tcell.Screen, y int, style tcell.Style, str string) {
	w, _ := s.Size()
	emitStr(s, max(0, w/2-runewidth.StringWidth(str)/2), y, style, str)
}

// truncate shortens str to fit width cells.
func truncate(str string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(str, width, "…")
}

// formatClock renders seconds as m:ss, or h:mm:ss past an hour.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// progressBar renders a width-cell bar for position out of duration.
func progressBar(position, duration float64, width int) string {
	if width < 3 {
		return ""
	}
	inner := width - 2
	filled := 0
	if duration > 0 {
		filled = int(float64(inner) * min(1, max(0, position/duration)))
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", inner-filled) + "]"
}
