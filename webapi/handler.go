package webapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	_ "embed"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/russross/blackfriday/v2"

	"github.com/mjl-/sherpa"
	"github.com/mjl-/sherpadoc"
	"github.com/mjl-/sherpaprom"

	"github.com/mjl-/regdomain/metrics"
	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/orgdomain"
	"github.com/mjl-/regdomain/pslstore"
	"github.com/mjl-/regdomain/regvar"
)

//go:embed api.json
var apiJSON []byte

//go:embed index.md
var indexMD []byte

var apiDoc = mustParseAPI("api", apiJSON)

var collector *sherpaprom.Collector

var indexHTML []byte

func mustParseAPI(api string, buf []byte) (doc sherpadoc.Section) {
	err := json.Unmarshal(buf, &doc)
	if err != nil {
		pkglog.Fatalx("parsing api docs", err, slog.String("api", api))
	}
	return doc
}

func init() {
	var err error
	collector, err = sherpaprom.NewCollector("regdomainapi", nil)
	if err != nil {
		pkglog.Fatalx("creating sherpa prometheus collector", err)
	}

	r := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		HeadingIDPrefix: "hdr-",
		Flags:           blackfriday.CompletePage | blackfriday.HrefTargetBlank,
		Title:           "regdomain",
	})
	indexHTML = blackfriday.Run(indexMD,
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.AutoHeadingIDs),
		blackfriday.WithRenderer(r))
}

// Options for Handler.
type Options struct {
	Store   *pslstore.Store // Optional, for snapshot counts in Status.
	Metrics bool            // Whether to serve prometheus metrics at /metrics.
}

// Handler returns an HTTP handler for the API, index page and checks.
func Handler(elog *slog.Logger, resolver *orgdomain.Resolver, opts Options) (http.Handler, error) {
	log := mlog.New("webapi", elog)

	doc := apiDoc
	api := API{resolver, opts.Store}
	apiHandler, err := sherpa.NewHandler("/api/", regvar.Version, api, &doc, &sherpa.HandlerOpts{Collector: collector, AdjustFunctionNames: "none"})
	if err != nil {
		return nil, fmt.Errorf("sherpa handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if resolver.Current() == nil {
			http.Error(w, "503 - no public suffix list index loaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n"))
	})
	if opts.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != "GET" && r.Method != "HEAD" {
			http.Error(w, "405 - method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, max-age=0")
		http.ServeContent(w, r, "index.html", regvar.Started, bytes.NewReader(indexHTML))
	})

	return &recoverHandler{log, mux}, nil
}

// recoverHandler logs and counts panics of handlers and responds with an
// internal server error.
type recoverHandler struct {
	log  mlog.Log
	next http.Handler
}

func (h *recoverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		if x == http.ErrAbortHandler {
			panic(x)
		}
		h.log.Error("http handler panic", slog.Any("panic", x), slog.String("path", r.URL.Path))
		debug.PrintStack()
		metrics.PanicInc(metrics.Webapi)
		http.Error(w, "500 - internal server error", http.StatusInternalServerError)
	}()
	h.next.ServeHTTP(w, r)
}
