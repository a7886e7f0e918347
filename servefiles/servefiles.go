// Package servefiles exposes a local directory over HTTP using the
// <ul><li><a href> index layout that resolver.Listing understands.
package servefiles

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
	"go2tv.app/go2cast/utils"
)

var (
	ErrPortInUse      = errors.New("servefiles: port already in use")
	ErrInvalidPort    = errors.New("servefiles: invalid port")
	ErrMalformedInput = errors.New("servefiles: malformed input")
	ErrRunning        = errors.New("servefiles: server already running")
)

// shutdownTimeout bounds graceful shutdown in Stop.
const shutdownTimeout = 5 * time.Second

// sniffLen is how much of a file filetype needs to match any kind.
const sniffLen = 261

// ParsePort validates a user supplied TCP port.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}

	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %d out of range", ErrInvalidPort, port)
	}

	return port, nil
}

// HTTPserver serves one directory at a time.
type HTTPserver struct {
	log zerolog.Logger

	mu   sync.Mutex
	http *http.Server
	ln   net.Listener
	done chan struct{}
}

// NewServer returns a stopped server.
func NewServer(log zerolog.Logger) *HTTPserver {
	return &HTTPserver{
		log: log.With().Str("Component", "servefiles").Logger(),
	}
}

// Start serves dir on host:port in the background. Port 0 picks a free
// port; Addr reports the one in use.
func (s *HTTPserver) Start(dir, host string, port int) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: empty directory", ErrMalformedInput)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %d out of range", ErrInvalidPort, port)
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMalformedInput, dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return ErrRunning
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if utils.IsAddrInUse(err) {
			return fmt.Errorf("%w: %s", ErrPortInUse, addr)
		}
		return fmt.Errorf("server listen error: %w", err)
	}

	srv := &http.Server{
		Handler:           NewHandler(dir, s.log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})

	s.http, s.ln, s.done = srv, ln, done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Str("Method", "Start").Err(err).Msg("server stopped")
		}
	}()

	s.log.Info().Str("Method", "Start").Str("Addr", ln.Addr().String()).Str("Dir", dir).Msg("serving directory")
	return nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *HTTPserver) Stop() error {
	s.mu.Lock()
	srv, done := s.http, s.done
	s.http, s.ln, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	<-done

	s.log.Info().Str("Method", "Stop").Msg("server stopped")
	return err
}

// Running reports whether the server is serving.
func (s *HTTPserver) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.http != nil
}

// Addr returns the listening address, or "" when stopped.
func (s *HTTPserver) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// NewHandler returns the router serving dir.
func NewHandler(dir string, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	h := &dirHandler{root: dir, log: log}
	r.Get("/*", h.serve)
	r.Head("/*", h.serve)

	return r
}

type dirHandler struct {
	root string
	log  zerolog.Logger
}

func (h *dirHandler) serve(w http.ResponseWriter, req *http.Request) {
	urlPath := path.Clean("/" + chi.URLParam(req, "*"))
	full := filepath.Join(h.root, filepath.FromSlash(urlPath))

	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, req)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.NotFound(w, req)
		return
	}

	if fi.IsDir() {
		if !strings.HasSuffix(req.URL.Path, "/") {
			http.Redirect(w, req, req.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		h.serveIndex(w, f, urlPath)
		return
	}

	if ctype := sniffContentType(f); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}

	http.ServeContent(w, req, fi.Name(), fi.ModTime(), f)
}

func (h *dirHandler) serveIndex(w http.ResponseWriter, dir *os.File, urlPath string) {
	entries, err := dir.ReadDir(-1)
	if err != nil {
		h.log.Error().Str("Method", "serveIndex").Err(err).Msg("read dir failed")
		http.Error(w, "No permission to list directory", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, RenderIndex(urlPath, entries))
}

// RenderIndex renders the directory listing for entries. Names are sorted
// case-insensitively and directories get a trailing slash.
func RenderIndex(urlPath string, entries []os.DirEntry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	if !strings.HasSuffix(urlPath, "/") {
		urlPath += "/"
	}
	title := html.EscapeString("Directory listing for " + urlPath)

	var b strings.Builder
	b.WriteString("<!DOCTYPE HTML>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n</head>\n<body>\n<h1>%s</h1>\n<hr>\n<ul>\n", title, title)
	for _, name := range names {
		href := utils.ConvertFilename(strings.TrimSuffix(name, "/"))
		if strings.HasSuffix(name, "/") {
			href += "/"
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", href, html.EscapeString(name))
	}
	b.WriteString("</ul>\n<hr>\n</body>\n</html>\n")

	return b.String()
}

// sniffContentType matches the file header against known kinds and rewinds
// f. It returns "" when the kind is unknown, leaving ServeContent to guess
// from the extension.
func sniffContentType(f io.ReadSeeker) string {
	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return ""
	}

	return kind.MIME.Value
}
