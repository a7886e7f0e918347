package utils

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// hlsProtocolPrefix marks segmented playlist formats in extractor output,
// e.g. "m3u8" or "m3u8_native".
const hlsProtocolPrefix = "m3u8"

// IsHLSProtocol reports whether an extractor protocol identifier denotes
// an HLS playlist.
func IsHLSProtocol(protocol string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(protocol)), hlsProtocolPrefix)
}

// IsHLSStream returns true for HLS playlist URLs or HLS mime types.
func IsHLSStream(mediaURL, mediaType string) bool {
	trimmedURL := strings.TrimSpace(mediaURL)
	if trimmedURL != "" {
		u, err := url.Parse(trimmedURL)
		if err == nil && strings.EqualFold(path.Ext(u.Path), ".m3u8") {
			return true
		}
	}

	mime := strings.ToLower(strings.TrimSpace(mediaType))
	return strings.Contains(mime, "mpegurl")
}

// PlaylistURLs returns every absolute http(s) URI of an HLS playlist body,
// in file order. Comment and tag lines, blank lines and relative URIs are
// skipped.
func PlaylistURLs(r io.Reader) ([]string, error) {
	var urls []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("PlaylistURLs scan error: %w", err)
	}

	return urls, nil
}
