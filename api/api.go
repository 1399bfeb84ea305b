// Package api exposes the CAN web gateway over HTTP.
package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/squadracorsepolito/canweb/broadcast"
	"github.com/squadracorsepolito/canweb/bus"
	"github.com/squadracorsepolito/canweb/history"
	"github.com/squadracorsepolito/canweb/ingest"
	"github.com/squadracorsepolito/canweb/internal"
	"github.com/squadracorsepolito/canweb/session"
	"github.com/squadracorsepolito/canweb/signals"
)

// Options holds the components served by the API.
type Options struct {
	Store       *history.Store
	Broadcaster *broadcast.Broadcaster
	Driver      bus.Driver
	Sessions    *session.Handler

	// Decoder enables the signals endpoint. Optional.
	Decoder *signals.Decoder
	// Counters reports the ingestion counters on the stats endpoint. Optional.
	Counters func() ingest.Counters

	// StaticDir is served at the root when it exists.
	StaticDir string

	// OriginPatterns lists the hosts allowed to open a WebSocket
	// from another origin.
	OriginPatterns []string
}

// API holds the HTTP handlers.
type API struct {
	tel *internal.Telemetry

	opts Options

	cborEnc   cbor.EncMode
	cborCodec *session.CBORCodec
}

func New(opts Options) (*API, error) {
	if opts.Store == nil || opts.Broadcaster == nil || opts.Driver == nil {
		return nil, errors.New("api: store, broadcaster and driver are required")
	}

	if opts.Sessions == nil {
		opts.Sessions = session.NewHandler(nil)
	}

	cborEnc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, err
	}

	cborCodec, err := session.NewCBORCodec()
	if err != nil {
		return nil, err
	}

	return &API{
		tel: internal.NewTelemetry("api", "http"),

		opts: opts,

		cborEnc:   cborEnc,
		cborCodec: cborCodec,
	}, nil
}

// Router returns the handler of every route.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/messages", a.handleMessages)
	r.Get("/signals", a.handleSignals)
	r.Get("/stats", a.handleStats)
	r.Get("/ws", a.handleWebSocket)
	r.Get("/favicon.ico", handleFavicon)

	if !bus.IsReadOnly(a.opts.Driver) {
		r.Post("/send", a.handleSend)
	}

	if a.opts.StaticDir != "" {
		if info, err := os.Stat(a.opts.StaticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(a.opts.StaticDir)))
		} else {
			a.tel.LogWarn("static directory not found", "dir", a.opts.StaticDir)
		}
	}

	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		a.tel.LogDebug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
