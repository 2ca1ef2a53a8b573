package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Server is the small dashboard the spec calls for alongside the poll
// loop: a live-updating page wired to the SSE channel, and /latest
// serving the most recent generated document directly.
type Server struct {
	watcher *Watcher
	port    int
	srv     *http.Server
}

func NewServer(w *Watcher, port int) *Server {
	if port <= 0 {
		port = 8421
	}
	return &Server{watcher: w, port: port}
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/latest", s.handleLatest)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start listens on loopback and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	html := s.watcher.LatestHTML()
	if html == "" {
		http.Error(w, "nothing generated yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.watcher.progress == nil {
		http.Error(w, "no progress channel configured", http.StatusServiceUnavailable)
		return
	}
	s.watcher.progress.Handler(w, r)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML(s.watcher.target, s.port)))
}

func dashboardHTML(target string, port int) string {
	return `<!DOCTYPE html>
<html>
<head>
<title>forge watch :` + strconv.Itoa(port) + `</title>
<style>
body{font-family:ui-monospace,monospace;margin:2rem;background:#0b0d10;color:#d8dee4}
h1{font-size:1.1rem;color:#9aa5b1}
#log{white-space:pre-wrap;border:1px solid #222;padding:1rem;height:60vh;overflow:auto}
iframe{width:100%;height:60vh;border:1px solid #222;margin-top:1rem;background:#fff}
.watching{color:#6cc644}
</style>
</head>
<body>
<h1>watching <span class="watching">` + target + `</span></h1>
<div id="log"></div>
<iframe src="/latest"></iframe>
<script>
const log = document.getElementById('log');
const frame = document.querySelector('iframe');
const es = new EventSource('/events');
es.onmessage = function(ev) {
  log.textContent += ev.data + "\n";
  log.scrollTop = log.scrollHeight;
  try {
    const evt = JSON.parse(ev.data);
    if (evt.type === 'complete') frame.src = '/latest?t=' + Date.now();
  } catch (e) {}
};
</script>
</body>
</html>
`
}
