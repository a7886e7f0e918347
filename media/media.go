// Package media holds the playable unit shared by the resolver, the cast
// session and the controller.
package media

// DefaultMimeType is the content type sent to the receiver for every
// reference unless configured otherwise.
const DefaultMimeType = "audio/mp3"

// Reference is a resolved, directly playable media URL.
// A resolution step produces an ordered slice of these and that order is
// the playback order.
type Reference struct {
	URL      string
	MimeType string
	Title    string
	// Enqueue appends to the receiver queue instead of replacing playback.
	Enqueue  bool
	Autoplay bool
}

// WithMimeType returns a copy of refs with an empty MimeType set to mime.
func WithMimeType(refs []Reference, mime string) []Reference {
	out := make([]Reference, len(refs))
	for i, r := range refs {
		if r.MimeType == "" {
			r.MimeType = mime
		}
		out[i] = r
	}
	return out
}
