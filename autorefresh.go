package autorefresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/livebud/mux"
	"github.com/livebud/sse"
	"github.com/matthewmueller/httpbuf"
)

// DefaultKeepalive is how long a refresh stream may stay idle before a
// keepalive comment is sent.
const DefaultKeepalive = 60 * time.Second

// New server for the file at path. Refreshes are driven by signal.
func New(log *slog.Logger, signal *Signal, path string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		File:      path,
		Keepalive: DefaultKeepalive,
		log:       log,
		signal:    signal,
		ctx:       ctx,
		cancel:    cancel,
	}
	router := mux.New()
	router.Get("/", s.serveIndex)
	router.Get("/file", s.serveFile)
	router.Get("/refresh", s.serveRefresh)
	s.router = router
	return s
}

type Server struct {
	File      string        // Path of the served file
	MIME      string        // Content type of the served file, omitted if empty
	Keepalive time.Duration // Idle time before a keepalive comment

	log    *slog.Logger
	signal *Signal
	router http.Handler
	ctx    context.Context // canceled by Close
	cancel context.CancelFunc
}

var _ http.Handler = (*Server)(nil)

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends every open refresh stream. http.Server.Shutdown waits for
// handlers to return without canceling their contexts, so call Close
// alongside it.
func (s *Server) Close() error {
	s.cancel()
	return nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(indexPage)))
	io.WriteString(w, indexPage)
}

// serveFile buffers the whole file so a failed read turns into a 500 rather
// than a truncated 200.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	file, err := os.Open(s.File)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Info("autorefresh: file not found", "path", s.File)
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		s.log.Error("autorefresh: unable to open file", "path", s.File, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer file.Close()
	rw := httpbuf.Wrap(w)
	if _, err := io.Copy(rw, file); err != nil {
		s.log.Error("autorefresh: unable to read file", "path", s.File, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if s.MIME == "" {
		// httpbuf copies headers one value at a time, which would turn a nil
		// Content-Type into an empty one. Write the buffered body directly so
		// the header is left out and net/http doesn't sniff one either.
		header := w.Header()
		header["Content-Type"] = nil
		header.Set("Cache-Control", "no-store")
		header.Set("Content-Length", strconv.Itoa(len(rw.Body)))
		w.Write(rw.Body)
		return
	}
	rw.Header().Set("Content-Type", s.MIME)
	rw.Header().Set("Cache-Control", "no-store")
	rw.Flush()
}

// serveRefresh streams refresh events until the client goes away or the
// server is closed.
func (s *Server) serveRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	log := s.log.With("session", uuid.NewString(), "remote", r.RemoteAddr)
	// Take the baseline before the client can observe the stream, so an advance
	// right after the stream opens is never lost.
	last := s.signal.Current()
	if seen, ok := lastEventID(r); ok {
		last = seen
	}
	w.Header().Set("Cache-Control", "no-store")
	pub, err := sse.Create(w)
	if err != nil {
		log.Error("autorefresh: unable to open event stream", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info("autorefresh: client connected", "generation", last)
	// An empty event lets the browser know the stream is open
	if err := s.publish(ctx, log, pub, &sse.Event{}); err != nil {
		s.closeStream(ctx, log, err)
		return
	}
	rc := http.NewResponseController(w)
	for {
		gen, timedOut, err := s.signal.Wait(ctx, last, s.Keepalive)
		if err != nil {
			s.closeStream(ctx, log, err)
			return
		}
		if timedOut {
			err = keepalive(w, rc, log, last)
		} else {
			id := strconv.Itoa(int(gen))
			err = s.publish(ctx, log, pub, &sse.Event{ID: id, Type: "refresh", Data: []byte(id)})
			last = gen
		}
		if err != nil {
			s.closeStream(ctx, log, err)
			return
		}
	}
}

func (s *Server) publish(ctx context.Context, log *slog.Logger, pub sse.Publisher, event *sse.Event) error {
	log.Info("autorefresh: sending frame", "frame", event.Format().String())
	return pub.Publish(ctx, event)
}

// keepalive sends a comment carrying the last generation. Browsers ignore it,
// but proxies see traffic on the connection.
func keepalive(w io.Writer, rc *http.ResponseController, log *slog.Logger, last uint16) error {
	frame := fmt.Sprintf(": %d\n\n", last)
	log.Info("autorefresh: sending frame", "frame", frame)
	if _, err := io.WriteString(w, frame); err != nil {
		return err
	}
	return rc.Flush()
}

func (s *Server) closeStream(ctx context.Context, log *slog.Logger, err error) {
	switch {
	case s.ctx.Err() != nil:
		log.Info("autorefresh: server closing stream")
	case peerGone(ctx, err):
		log.Info("autorefresh: client disconnected")
	default:
		log.Error("autorefresh: unable to write event", "error", err)
	}
}

// lastEventID returns the generation a reconnecting client already saw, taken
// from the Last-Event-ID header or the "last" query parameter.
func lastEventID(r *http.Request) (uint16, bool) {
	id := r.Header.Get("Last-Event-ID")
	if id == "" {
		id = r.URL.Query().Get("last")
	}
	if id == "" {
		return 0, false
	}
	gen, err := strconv.ParseUint(id, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(gen), true
}

func peerGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
