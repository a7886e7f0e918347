package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"go2tv.app/go2cast/media"
	"go2tv.app/go2cast/utils"
)

// audioOnlyResolution is the resolution label extractors use for formats
// without a video track.
const audioOnlyResolution = "audio only"

// DefaultYtDlpPath is looked up in PATH when no explicit binary is set.
const DefaultYtDlpPath = "yt-dlp"

// Format is one encoding of a page's media.
type Format struct {
	FormatID   string `mapstructure:"format_id"`
	Protocol   string `mapstructure:"protocol"`
	Resolution string `mapstructure:"resolution"`
	VCodec     string `mapstructure:"vcodec"`
	URL        string `mapstructure:"url"`
}

// Info is the extractor's description of a page.
type Info struct {
	Title   string   `mapstructure:"title"`
	Formats []Format `mapstructure:"formats"`
}

// Extractor describes the formats available for a page without
// downloading any media.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*Info, error)
}

var execCommand = exec.CommandContext

// YtDlp runs the yt-dlp binary in JSON dump mode.
type YtDlp struct {
	// Path of the binary, DefaultYtDlpPath when empty.
	Path string
}

func (y *YtDlp) binary() string {
	if y.Path == "" {
		return DefaultYtDlpPath
	}
	return y.Path
}

// Extract implements Extractor.
func (y *YtDlp) Extract(ctx context.Context, pageURL string) (*Info, error) {
	var stderr bytes.Buffer
	cmd := execCommand(ctx, y.binary(), "-J", "--no-playlist", "--no-warnings", pageURL)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %w: %s", ErrExtraction, err, msg)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	info, err := DecodeInfo(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	return info, nil
}

// Check verifies the binary can be executed.
func (y *YtDlp) Check(ctx context.Context) error {
	if _, err := execCommand(ctx, y.binary(), "--version").Output(); err != nil {
		return fmt.Errorf("yt-dlp check: %w", err)
	}
	return nil
}

// DecodeInfo decodes a yt-dlp JSON document. Unknown fields are ignored and
// scalar fields are weakly typed, so a numeric format_id is accepted.
func DecodeInfo(data []byte) (*Info, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("DecodeInfo unmarshal error: %w", err)
	}

	var info Info
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info,
	})
	if err != nil {
		return nil, fmt.Errorf("DecodeInfo decoder error: %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("DecodeInfo decode error: %w", err)
	}

	return &info, nil
}

// IsAudioOnly reports whether f carries no video track.
func (f Format) IsAudioOnly() bool {
	if f.Resolution != "" {
		return f.Resolution == audioOnlyResolution
	}
	return f.VCodec == "none"
}

// Quality returns the numeric quality of f, taken from its format_id. Ids
// like "hls-160" use their trailing number. ok is false when no number
// can be found.
func (f Format) Quality() (q int, ok bool) {
	id := strings.TrimSpace(f.FormatID)
	if n, err := strconv.Atoi(id); err == nil {
		return n, true
	}

	if i := strings.LastIndex(id, "-"); i >= 0 {
		if n, err := strconv.Atoi(id[i+1:]); err == nil {
			return n, true
		}
	}

	return 0, false
}

// SelectAudioFormat returns the audio-only format with the highest quality.
// On ties the first one encountered wins.
func SelectAudioFormat(formats []Format) (Format, error) {
	var (
		best  Format
		bestQ int
		found bool
	)

	for _, f := range formats {
		if !f.IsAudioOnly() || f.URL == "" {
			continue
		}

		q, ok := f.Quality()
		if !ok {
			continue
		}

		if !found || q > bestQ {
			best, bestQ, found = f, q, true
		}
	}

	if !found {
		return Format{}, ErrNoAudioStream
	}

	return best, nil
}

// Extract resolves pageURL into playable references. The first reference
// replaces current playback; when the best audio format is an HLS playlist
// every segment after the first is appended to the receiver queue.
func (r *Resolver) Extract(ctx context.Context, pageURL string) ([]media.Reference, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, fmt.Errorf("%w: empty page url", ErrMalformedInput)
	}

	info, err := r.extractor.Extract(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}

	format, err := SelectAudioFormat(info.Formats)
	if err != nil {
		return nil, fmt.Errorf("Extract %s: %w", pageURL, err)
	}

	r.log.Debug().Str("Method", "Extract").Str("FormatID", format.FormatID).
		Str("Protocol", format.Protocol).Msg("selected audio format")

	if !utils.IsHLSProtocol(format.Protocol) && !utils.IsHLSStream(format.URL, "") {
		return []media.Reference{{
			URL:      format.URL,
			MimeType: r.mimeType,
			Title:    info.Title,
			Autoplay: true,
		}}, nil
	}

	urls, err := r.playlist(ctx, format.URL)
	if err != nil {
		return nil, fmt.Errorf("Extract playlist: %w", err)
	}

	return r.playlistReferences(urls, info.Title), nil
}

func (r *Resolver) playlist(ctx context.Context, playlistURL string) ([]string, error) {
	body, _, err := r.fetch(ctx, playlistURL)
	if err != nil {
		return nil, err
	}

	urls, err := utils.PlaylistURLs(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: playlist has no absolute segment urls", ErrNoAudioStream)
	}

	return urls, nil
}

func (r *Resolver) playlistReferences(urls []string, title string) []media.Reference {
	refs := make([]media.Reference, 0, len(urls))
	for i, u := range urls {
		refs = append(refs, media.Reference{
			URL:      u,
			MimeType: r.mimeType,
			Title:    title,
			Enqueue:  i > 0,
			Autoplay: true,
		})
	}
	return refs
}
