// Package fileserver implements the static file server adapter: map a
// URL path to a file under a configured root, stream it through an
// async readable file stream piped into the response's writable stream.
// Grounded on original_source's HttpWebServer.cpp (the extension table,
// the 404-on-any-failure behavior, the Date/Last-Modified headers), with
// a path-traversal rejection original_source never implemented.
package fileserver

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/compose-http/asynchttp/httpconn"
	"github.com/compose-http/asynchttp/ioreactor"
	"github.com/compose-http/asynchttp/pipeline"
	"github.com/compose-http/asynchttp/stream"
)

// httpDate is the HTTP-date format: "Www, DD Mmm YYYY HH:MM:SS GMT".
const httpDate = "Mon, 02 Jan 2006 15:04:05 GMT"

var contentTypes = map[string]string{
	"htm":  "text/html",
	"html": "text/html",
	"css":  "text/css",
	"png":  "image/png",
	"jpg":  "image/jpg",
	"jpeg": "image/jpg",
	"svg":  "image/svg+xml",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"pdf":  "application/pdf",
	"ico":  "image/x-icon",
	"txt":  "text/plain",
}

func contentTypeFor(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "text/html"
}

// Handler serves files out of Root for requests dispatched by an
// httpserver.Server.
type Handler struct {
	Root    string
	Reactor *ioreactor.Reactor
	Clock   clockwork.Clock
	Log     *logrus.Entry
}

// New constructs a Handler rooted at dir.
func New(dir string, reactor *ioreactor.Reactor, clock clockwork.Clock, log *logrus.Entry) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{Root: dir, Reactor: reactor, Clock: clock, Log: log}
}

// ServeHTTP resolves the connection's request URL against Root and
// streams the file as the response body, or replies 404 on any failure —
// exactly original_source's HttpWebServer::serveFile behavior, plus a
// `..` rejection the original never had.
func (h *Handler) ServeHTTP(c *httpconn.Connection) {
	urlPath := c.Request.URL
	if idx := strings.IndexAny(urlPath, "?#"); idx >= 0 {
		urlPath = urlPath[:idx]
	}
	if !strings.HasPrefix(urlPath, "/") {
		h.notFound(c)
		return
	}
	rel := strings.TrimPrefix(urlPath, "/")
	if rel == "" {
		rel = "index.html"
	}
	if containsDotDot(rel) {
		h.notFound(c)
		return
	}

	full := filepath.Join(h.Root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		h.notFound(c)
		return
	}
	f, err := os.Open(full)
	if err != nil {
		h.notFound(c)
		return
	}

	if err := c.Response.StartResponse(200); err != nil {
		f.Close()
		h.notFound(c)
		return
	}
	_ = c.Response.AddHeader("Connection", "Closed")
	_ = c.Response.AddHeader("Content-Type", contentTypeFor(full))
	_ = c.Response.AddHeader("Content-Length", strconv.FormatInt(info.Size(), 10))
	_ = c.Response.AddHeader("Server", "SC")
	_ = c.Response.AddHeader("Date", h.Clock.Now().UTC().Format(httpDate))
	_ = c.Response.AddHeader("Last-Modified", info.ModTime().UTC().Format(httpDate))
	c.Response.SetKeepAlive(false)
	if err := c.Response.SendHeaders(); err != nil {
		f.Close()
		return
	}

	source := stream.NewReadable(c.Writable.Pool(), h.Reactor, f, true)
	p := pipeline.New(source, c.Writable)
	p.OnDone(func() {
		c.FinishStreamed()
	})
	p.Pipe()
	p.Start()
}

func (h *Handler) notFound(c *httpconn.Connection) {
	if err := c.Response.StartResponse(404); err != nil {
		return
	}
	_ = c.Response.EndWithBody(nil)
}

// containsDotDot rejects any ".." segment in the RAW (uncleaned) request
// path — path.Clean would itself absorb a leading ".." (e.g.
// "/../secret.txt" cleans to "/secret.txt"), which is exactly the
// traversal original_source never guarded against; checking pre-Clean
// segments is what actually catches it.
func containsDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
