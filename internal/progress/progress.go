// Package progress is a small optional HTTP server that exposes the
// live progress of an in-flight `analyze` run as JSON, the generalization
// of the engine's progress callbacks/iterators into a pollable endpoint
// (SPEC_FULL.md §6). It is a CLI-level concern: the engine never imports
// this package; the CLI wraps the log reader in a CountingReader, and that
// reader feeds the Reporter.
package progress

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Snapshot is the JSON shape served at /status: a cheap, lock-protected
// view of how far the current run has gotten.
type Snapshot struct {
	File      string    `json:"file"`
	BytesRead int64     `json:"bytes_read"`
	LinesRead int       `json:"lines_read"`
	Done      bool      `json:"done"`
	StartedAt time.Time `json:"started_at"`
}

// Reporter is the progress sink behind a CountingReader; calling Snapshot
// concurrently with advance is safe.
type Reporter struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewReporter starts a Reporter for the named file.
func NewReporter(file string) *Reporter {
	return &Reporter{snap: Snapshot{File: file, StartedAt: time.Now()}}
}

// advance records that one more line, totalling n bytes, has been read.
func (r *Reporter) advance(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.BytesRead += int64(n)
	r.snap.LinesRead++
}

// Finish marks the run complete.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Done = true
}

// Snapshot returns a copy of the current progress state.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// CountingReader wraps r, reporting every line's length to a Reporter as it
// streams past — the one place outside the engine that needs to see the
// raw byte stream, so logtoken.Tokenizer itself stays reporter-agnostic.
type CountingReader struct {
	scanner  *bufio.Scanner
	reporter *Reporter
	buf      []byte
}

// NewCountingReader wraps src so every line read through it is tallied
// against reporter before being handed onward.
func NewCountingReader(src io.Reader, reporter *Reporter) *CountingReader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &CountingReader{scanner: scanner, reporter: reporter}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		line := c.scanner.Bytes()
		c.reporter.advance(len(line) + 1)
		c.buf = append(append(c.buf, line...), '\n')
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Server serves a Reporter's Snapshot as JSON on /status, following the
// teacher's mux.NewRouter()+http.ListenAndServe construction (main.go).
type Server struct {
	httpServer *http.Server
	reporter   *Reporter
}

// NewServer builds a Server bound to addr, not yet listening.
func NewServer(addr string, reporter *Reporter) *Server {
	router := mux.NewRouter()
	s := &Server{reporter: reporter}
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.reporter.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Serve starts the HTTP server in the background and returns immediately;
// call Shutdown to stop it. Listen errors other than a clean shutdown are
// sent on the returned channel.
func (s *Server) Serve() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
