package session

import "go2tv.app/go2cast/castprotocol"

// PlayerState is the receiver-reported playback phase.
type PlayerState string

const (
	Idle      PlayerState = castprotocol.StateIdle
	Playing   PlayerState = castprotocol.StatePlaying
	Paused    PlayerState = castprotocol.StatePaused
	Buffering PlayerState = castprotocol.StateBuffering
)

// ParsePlayerState maps a raw receiver state to a PlayerState. Anything
// unknown is reported as Idle.
func ParsePlayerState(s string) PlayerState {
	switch PlayerState(s) {
	case Playing, Paused, Buffering:
		return PlayerState(s)
	default:
		return Idle
	}
}

// PlayerStatus is the media part of the receiver status.
type PlayerStatus struct {
	State       PlayerState
	CurrentTime float64
	Duration    float64
	Title       string
}

// ReceiverStatus is the device part of the receiver status.
type ReceiverStatus struct {
	Volume float64
	Muted  bool
}

// Event is a status notification delivered to subscribers. It is either a
// ReceiverStatusEvent or a PlayerStatusEvent.
type Event interface {
	isEvent()
}

// ReceiverStatusEvent reports a volume or mute change.
type ReceiverStatusEvent struct {
	Volume float64
	Muted  bool
}

// PlayerStatusEvent reports a change of the media status.
type PlayerStatusEvent struct {
	State       PlayerState
	CurrentTime float64
	Duration    float64
	Title       string
}

func (ReceiverStatusEvent) isEvent() {}
func (PlayerStatusEvent) isEvent()   {}

// diffStatus returns the events needed to move an observer from prev to
// cur. A nil prev yields both events.
func diffStatus(prev, cur *castprotocol.CastStatus) []Event {
	if cur == nil {
		return nil
	}

	var events []Event
	if prev == nil || prev.Volume != cur.Volume || prev.Muted != cur.Muted {
		events = append(events, ReceiverStatusEvent{
			Volume: float64(cur.Volume),
			Muted:  cur.Muted,
		})
	}

	if prev == nil ||
		prev.PlayerState != cur.PlayerState ||
		prev.CurrentTime != cur.CurrentTime ||
		prev.Duration != cur.Duration ||
		prev.MediaTitle != cur.MediaTitle {
		events = append(events, PlayerStatusEvent{
			State:       ParsePlayerState(cur.PlayerState),
			CurrentTime: float64(cur.CurrentTime),
			Duration:    float64(cur.Duration),
			Title:       cur.MediaTitle,
		})
	}

	return events
}
