package castprotocol

// Metadata types understood by the default media receiver.
const (
	MetadataGeneric    = 0
	MetadataMusicTrack = 3
)

// MediaItem is the media description sent in LOAD and QUEUE_INSERT
// requests.
type MediaItem struct {
	ContentId   string     `json:"contentId"`
	ContentType string     `json:"contentType"`
	StreamType  string     `json:"streamType"`
	Duration    float32    `json:"duration,omitempty"`
	Metadata    *MediaMeta `json:"metadata,omitempty"`
}

// MediaMeta contains metadata about the media.
type MediaMeta struct {
	MetadataType int    `json:"metadataType"`
	Title        string `json:"title,omitempty"`
}

// QueueItem is one entry of a QUEUE_INSERT request.
type QueueItem struct {
	Media    MediaItem `json:"media"`
	Autoplay bool      `json:"autoplay"`
}

// NewAudioItem creates a buffered MediaItem tagged as a music track.
func NewAudioItem(url, contentType, title string) MediaItem {
	item := MediaItem{
		ContentId:   url,
		ContentType: contentType,
		StreamType:  "BUFFERED",
	}

	if title != "" {
		item.Metadata = &MediaMeta{
			MetadataType: MetadataMusicTrack,
			Title:        title,
		}
	}

	return item
}
