// Package resolver turns user supplied references into ordered, directly
// playable media references. It understands two kinds of input: an HTML
// directory index served over HTTP, and an arbitrary page URL whose audio
// formats are described by an external metadata extractor.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"go2tv.app/go2cast/media"
)

var (
	ErrUnreachable    = errors.New("resolver: url unreachable")
	ErrNoAudioStream  = errors.New("resolver: no audio-only stream")
	ErrMalformedInput = errors.New("resolver: malformed input")
	ErrExtraction     = errors.New("resolver: metadata extraction failed")
)

// maxBodySize bounds listing pages and playlists.
const maxBodySize = 16 << 20

// Resolver produces media references. It holds no per-call state and is
// safe for concurrent use.
type Resolver struct {
	client    *http.Client
	extractor Extractor
	mimeType  string
	log       zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for listings and playlists.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithExtractor sets the metadata extractor used by Extract.
func WithExtractor(e Extractor) Option {
	return func(r *Resolver) {
		if e != nil {
			r.extractor = e
		}
	}
}

// WithMimeType sets the content type attached to every reference.
func WithMimeType(mime string) Option {
	return func(r *Resolver) {
		if mime != "" {
			r.mimeType = mime
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) {
		r.log = l.With().Str("Component", "resolver").Logger()
	}
}

// New returns a Resolver backed by yt-dlp and a retrying HTTP client.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		client:    NewRetryableHTTPClient(1),
		extractor: &YtDlp{},
		mimeType:  media.DefaultMimeType,
		log:       zerolog.Nop(),
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// fetch returns the body and Content-Type of u. Transport failures and
// HTTP error statuses are reported as ErrUnreachable.
func (r *Resolver) fetch(ctx context.Context, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug().Str("Method", "fetch").Str("URL", u).Err(err).Msg("request failed")
		return nil, "", fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("%w: %s returned %s", ErrUnreachable, u, resp.Status)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxBodySize)); err != nil {
		return nil, "", fmt.Errorf("%w: reading %s: %w", ErrUnreachable, u, err)
	}

	return buf.Bytes(), resp.Header.Get("Content-Type"), nil
}
