package castprotocol

import (
	"fmt"
	"sync/atomic"

	"github.com/vishen/go-chromecast/cast"
)

const (
	defaultSender             = "sender-0"
	defaultReceiver           = "receiver-0"
	namespaceReceiver         = "urn:x-cast:com.google.cast.receiver"
	namespaceMedia            = "urn:x-cast:com.google.cast.media"
	defaultMediaReceiverAppID = "CC1AD845"
)

// Request ID counter for Chromecast messages
var requestIDCounter int32

func nextRequestID() int {
	return int(atomic.AddInt32(&requestIDCounter, 1))
}

// sender is the part of cast.Conn we need for custom commands.
type sender interface {
	Send(requestID int, payload cast.Payload, sourceID, destinationID, namespace string) error
}

// CustomLoadPayload is a LOAD request carrying title metadata.
type CustomLoadPayload struct {
	Type        string    `json:"type"`
	RequestId   int       `json:"requestId"`
	Media       MediaItem `json:"media"`
	CurrentTime int       `json:"currentTime"`
	Autoplay    bool      `json:"autoplay"`
}

// SetRequestId implements cast.Payload interface
func (p *CustomLoadPayload) SetRequestId(id int) {
	p.RequestId = id
}

// QueueInsertPayload appends items to the receiver's play queue.
type QueueInsertPayload struct {
	Type           string      `json:"type"`
	RequestId      int         `json:"requestId"`
	MediaSessionId int         `json:"mediaSessionId"`
	Items          []QueueItem `json:"items"`
}

// SetRequestId implements cast.Payload interface
func (p *QueueInsertPayload) SetRequestId(id int) {
	p.RequestId = id
}

// Ensure payloads implement the cast.Payload interface
var (
	_ cast.Payload = (*CustomLoadPayload)(nil)
	_ cast.Payload = (*QueueInsertPayload)(nil)
)

// LaunchDefaultReceiver asks the device to start the default media receiver
// app. Launching it while it already runs resets its queue.
func LaunchDefaultReceiver(conn sender) error {
	payload := &cast.LaunchRequest{
		PayloadHeader: cast.LaunchHeader,
		AppId:         defaultMediaReceiverAppID,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, defaultReceiver, namespaceReceiver); err != nil {
		return fmt.Errorf("send launch: %w", err)
	}

	return nil
}

// LoadWithMetadata sends a LOAD command that replaces whatever the media
// receiver is playing.
func LoadWithMetadata(conn sender, transportId string, item MediaItem, startTime int, autoplay bool) error {
	payload := &CustomLoadPayload{
		Type:        "LOAD",
		Media:       item,
		CurrentTime: startTime,
		Autoplay:    autoplay,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, transportId, namespaceMedia); err != nil {
		return fmt.Errorf("send load: %w", err)
	}

	return nil
}

// QueueInsert appends one item to the queue of an existing media session.
func QueueInsert(conn sender, transportId string, mediaSessionId int, item MediaItem, autoplay bool) error {
	payload := &QueueInsertPayload{
		Type:           "QUEUE_INSERT",
		MediaSessionId: mediaSessionId,
		Items: []QueueItem{
			{Media: item, Autoplay: autoplay},
		},
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, transportId, namespaceMedia); err != nil {
		return fmt.Errorf("send queue insert: %w", err)
	}

	return nil
}

// QueueJump moves jump items forward (positive) or backward (negative)
// within the queue of an existing media session.
func QueueJump(conn sender, transportId string, mediaSessionId int, jump int) error {
	payload := &cast.QueueUpdate{
		PayloadHeader:  cast.QueueUpdateHeader,
		MediaSessionId: mediaSessionId,
		Jump:           jump,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, transportId, namespaceMedia); err != nil {
		return fmt.Errorf("send queue update: %w", err)
	}

	return nil
}
