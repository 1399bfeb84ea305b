package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/ingest"
	"github.com/squadracorsepolito/canweb/session"
)

// NoMessages is the body of the messages endpoint when the history is empty.
var NoMessages = []string{"No messages available"}

const (
	maxSendBodySize = 4 << 10
	wsReadLimit     = 64 << 10
)

// handleMessages returns the stored messages, oldest first,
// optionally restricted to the ids of the filter_id query parameters.
func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if a.opts.Store.Len() == 0 {
		a.render(w, r, http.StatusOK, NoMessages)
		return
	}

	filter := can.ParseIDs(r.URL.Query()["filter_id"])
	a.render(w, r, http.StatusOK, a.opts.Store.Snapshot(filter))
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	req := can.SendRequest{}

	body := http.MaxBytesReader(w, r.Body, maxSendBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeText(w, http.StatusBadRequest, "Invalid request: empty body")
			return
		}
		writeText(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	raw, err := can.NewOutbound(req)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	if err := a.opts.Driver.Write(raw); err != nil {
		a.tel.LogError("failed to send frame", err, "can_id", raw.ID)
		writeText(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	a.tel.LogDebug("frame sent", "can_id", raw.ID, "extended", raw.Extended, "rtr", raw.RTR, "dlc", raw.DLC)

	writeText(w, http.StatusOK, "Message sent")
}

// handleWebSocket upgrades the connection and runs a session on it.
// The subscription is taken before upgrading, so a failure leaves no trace.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, err := a.opts.Broadcaster.Subscribe()
	if err != nil {
		a.tel.LogWarn("refusing websocket session", "reason", err)
		writeText(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{session.JSONCodec{}.Name(), a.cborCodec.Name()},
		OriginPatterns: a.opts.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the response
		sub.Close()
		a.tel.LogWarn("failed to accept websocket", "reason", err)
		return
	}

	conn.SetReadLimit(wsReadLimit)

	var codec session.Codec = session.JSONCodec{}
	if conn.Subprotocol() == a.cborCodec.Name() {
		codec = a.cborCodec
	}

	// Errors are logged by the session handler
	_ = a.opts.Sessions.Serve(r.Context(), session.NewWebSocketConn(conn), sub, codec)
}

func (a *API) handleSignals(w http.ResponseWriter, r *http.Request) {
	if a.opts.Decoder == nil {
		writeText(w, http.StatusNotFound, "No DBC file configured")
		return
	}

	filter := can.ParseIDs(r.URL.Query()["filter_id"])
	a.render(w, r, http.StatusOK, a.opts.Decoder.DecodeAll(a.opts.Store.Snapshot(filter)))
}

type historyStats struct {
	Len int `json:"len"`
	Cap int `json:"cap"`
}

type broadcastStats struct {
	Subscribers    int   `json:"subscribers"`
	Published      int64 `json:"published"`
	ActiveSessions int64 `json:"active_sessions"`
}

type statsResponse struct {
	Driver    string           `json:"driver"`
	History   historyStats     `json:"history"`
	Broadcast broadcastStats   `json:"broadcast"`
	Ingest    *ingest.Counters `json:"ingest,omitempty"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	res := statsResponse{
		Driver: a.opts.Driver.Name(),
		History: historyStats{
			Len: a.opts.Store.Len(),
			Cap: a.opts.Store.Cap(),
		},
		Broadcast: broadcastStats{
			Subscribers:    a.opts.Broadcaster.Count(),
			Published:      a.opts.Broadcaster.Published(),
			ActiveSessions: a.opts.Sessions.ActiveSessions(),
		},
	}

	if a.opts.Counters != nil {
		counters := a.opts.Counters()
		res.Ingest = &counters
	}

	a.render(w, r, http.StatusOK, res)
}
