package utils

import (
	"strings"
	"testing"
)

func TestIsHLSStream(t *testing.T) {
	tt := []struct {
		name      string
		mediaURL  string
		mediaType string
		want      bool
	}{
		{
			name:     "HLS URL extension",
			mediaURL: "https://example.com/live/playlist.m3u8",
			want:     true,
		},
		{
			name:     "HLS URL extension with query",
			mediaURL: "https://example.com/live/playlist.m3u8?token=abc",
			want:     true,
		},
		{
			name:      "HLS mime apple",
			mediaURL:  "https://example.com/live",
			mediaType: "application/vnd.apple.mpegurl",
			want:      true,
		},
		{
			name:      "HLS mime x-mpegurl",
			mediaURL:  "https://example.com/live",
			mediaType: "application/x-mpegURL",
			want:      true,
		},
		{
			name:      "non HLS",
			mediaURL:  "https://example.com/audio.mp3",
			mediaType: "audio/mpeg",
			want:      false,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := IsHLSStream(tc.mediaURL, tc.mediaType)
			if got != tc.want {
				t.Fatalf("%s: got: %t, want: %t", tc.name, got, tc.want)
			}
		})
	}
}

func TestIsHLSProtocol(t *testing.T) {
	tt := []struct {
		protocol string
		want     bool
	}{
		{"m3u8", true},
		{"m3u8_native", true},
		{"M3U8_NATIVE", true},
		{"https", false},
		{"http_dash_segments", false},
		{"", false},
	}

	for _, tc := range tt {
		if got := IsHLSProtocol(tc.protocol); got != tc.want {
			t.Fatalf("IsHLSProtocol(%q): got: %t, want: %t", tc.protocol, got, tc.want)
		}
	}
}

func TestPlaylistURLs(t *testing.T) {
	tt := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "three absolute segments",
			body: "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nhttps://cdn.example/a.ts\n#EXTINF:10,\nhttps://cdn.example/b.ts\n#EXTINF:10,\nhttp://cdn.example/c.ts\n#EXT-X-ENDLIST\n",
			want: []string{"https://cdn.example/a.ts", "https://cdn.example/b.ts", "http://cdn.example/c.ts"},
		},
		{
			name: "CRLF line endings",
			body: "#EXTM3U\r\nhttps://cdn.example/a.ts\r\nhttps://cdn.example/b.ts\r\n",
			want: []string{"https://cdn.example/a.ts", "https://cdn.example/b.ts"},
		},
		{
			name: "relative URIs are skipped",
			body: "#EXTM3U\nseg1.ts\n/abs/seg2.ts\nhttps://cdn.example/seg3.ts\n",
			want: []string{"https://cdn.example/seg3.ts"},
		},
		{
			name: "commented URL is skipped",
			body: "#https://cdn.example/hidden.ts\n\n\nhttps://cdn.example/shown.ts",
			want: []string{"https://cdn.example/shown.ts"},
		},
		{
			name: "empty",
			body: "",
			want: nil,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PlaylistURLs(strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tc.name, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("%s: got: %v, want: %v", tc.name, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("%s: got: %v, want: %v", tc.name, got, tc.want)
				}
			}
		})
	}
}
