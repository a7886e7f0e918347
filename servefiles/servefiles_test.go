package servefiles

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go2tv.app/go2cast/resolver"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// mp3Header is an ID3v2 tag header, enough for filetype to match.
var mp3Header = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 300)...)

func testDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b song.mp3"), mp3Header)
	writeFile(t, filepath.Join(dir, "A.mp3"), mp3Header)
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))
	writeFile(t, filepath.Join(dir, "albums", "c.mp3"), mp3Header)
	return dir
}

func TestParsePort(t *testing.T) {
	tt := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"8000", 8000, false},
		{" 1 ", 1, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"65536", 0, true},
		{"-1", 0, true},
		{"http", 0, true},
		{"", 0, true},
	}

	for _, tc := range tt {
		got, err := ParsePort(tc.input)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidPort) {
				t.Fatalf("ParsePort(%q) err = %v, want ErrInvalidPort", tc.input, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParsePort(%q) = %d, %v, want %d", tc.input, got, err, tc.want)
		}
	}
}

func TestIndexIsConsumableByResolver(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testDir(t), zerolog.Nop()))
	defer srv.Close()

	hrefs := func() []string {
		resp, err := http.Get(srv.URL + "/")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		got, err := resolver.ListingHrefs(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return got
	}()

	want := []string{"A.mp3", "albums/", "b%20song.mp3", "notes.txt"}
	if strings.Join(hrefs, ",") != strings.Join(want, ",") {
		t.Fatalf("index hrefs = %v, want %v", hrefs, want)
	}
}

func TestServeFileSniffsContentType(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testDir(t), zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/b%20song.mp3")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("Content-Type = %q, want audio/mpeg", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	if len(body) != len(mp3Header) {
		t.Fatalf("body length = %d, want %d", len(body), len(mp3Header))
	}
}

func TestServeNestedAndMissing(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testDir(t), zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/albums/c.mp3")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("nested file status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/missing.mp3")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing file status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("traversal status = %d, want 404", resp.StatusCode)
	}
}

func TestStartStop(t *testing.T) {
	s := NewServer(zerolog.Nop())
	if err := s.Start(testDir(t), "127.0.0.1", 0); err != nil {
		t.Fatalf("Start() err = %v, want nil", err)
	}
	if !s.Running() {
		t.Fatal("Running() = false after Start")
	}

	if err := s.Start(t.TempDir(), "127.0.0.1", 0); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Start() err = %v, want ErrRunning", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() err = %v, want nil", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() err = %v, want nil", err)
	}
	if s.Running() || s.Addr() != "" {
		t.Fatal("server still running after Stop")
	}
}

func TestStartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port

	s := NewServer(zerolog.Nop())
	err = s.Start(testDir(t), "127.0.0.1", port)
	if !errors.Is(err, ErrPortInUse) {
		t.Fatalf("Start() on port %s err = %v, want ErrPortInUse", strconv.Itoa(port), err)
	}
	if s.Running() {
		t.Fatal("Running() = true after failed Start")
	}
}

func TestStartMalformed(t *testing.T) {
	s := NewServer(zerolog.Nop())

	if err := s.Start("", "127.0.0.1", 0); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("Start(empty dir) err = %v, want ErrMalformedInput", err)
	}

	file := filepath.Join(t.TempDir(), "f.mp3")
	writeFile(t, file, mp3Header)
	if err := s.Start(file, "127.0.0.1", 0); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("Start(file) err = %v, want ErrMalformedInput", err)
	}

	if err := s.Start(t.TempDir(), "127.0.0.1", 70000); !errors.Is(err, ErrInvalidPort) {
		t.Fatalf("Start(port 70000) err = %v, want ErrInvalidPort", err)
	}
}
