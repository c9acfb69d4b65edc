package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bountymxe/mxe-go/internal/crypto"
	"github.com/bountymxe/mxe-go/internal/wire"
)

const (
	maxBodySize  = 64 << 10
	maxWait      = 60 * time.Second
	sseKeepAlive = 15 * time.Second
)

// Handler serves the gateway HTTP API backed by c.
func (c *Cluster) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/cluster/key", c.handleKey)
	mux.HandleFunc("POST /v1/computations", c.handleSubmit)
	mux.HandleFunc("GET /v1/computations/{id}/finalization", c.handleFinalization)
	mux.HandleFunc("GET /v1/results", c.handleResults)
	mux.HandleFunc("GET /v1/events", c.handleEvents)
	return mux
}

func (c *Cluster) handleKey(w http.ResponseWriter, r *http.Request) {
	raw, err := c.ClusterKey(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if raw == nil {
		writeError(w, http.StatusNotFound, errors.New("cluster key not yet published"))
		return
	}
	writeJSON(w, http.StatusOK, wire.KeyResponse{PublicKey: crypto.ToBase64URL(raw)})
}

func (c *Cluster) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body wire.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode submission: %w", err))
		return
	}
	ack, err := c.Submit(r.Context(), body.Routing, body.Request)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

func (c *Cluster) handleFinalization(w http.ResponseWriter, r *http.Request) {
	id, err := wire.ParseCorrelationID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var wait time.Duration
	if s := r.URL.Query().Get("wait"); s != "" {
		if wait, err = time.ParseDuration(s); err != nil || wait < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid wait %q", s))
			return
		}
		wait = min(wait, maxWait)
	}
	fin, err := c.Finalization(r.Context(), id, wait)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, fin)
}

func (c *Cluster) handleResults(w http.ResponseWriter, r *http.Request) {
	after, err := parseAfter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	events, last, _ := c.Events(after)
	if events == nil {
		events = []wire.ResultEvent{}
	}
	writeJSON(w, http.StatusOK, wire.ResultsPage{Results: events, Last: last})
}

func (c *Cluster) handleEvents(w http.ResponseWriter, r *http.Request) {
	after, err := parseAfter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		events, last, changed := c.Events(after)
		for _, ev := range events {
			data, err := json.Marshal(ev.Result)
			if err != nil {
				c.logger.Errorf("encode event %d: %v", ev.Seq, err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: result\ndata: %s\n\n", ev.Seq, data)
		}
		if len(events) > 0 {
			flusher.Flush()
		}
		after = last

		select {
		case <-changed:
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-c.stop:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// parseAfter reads the resume position from the after query parameter, or
// from Last-Event-ID when a reconnecting EventSource sends it.
func parseAfter(r *http.Request) (uint64, error) {
	s := r.URL.Query().Get("after")
	if s == "" {
		s = r.Header.Get("Last-Event-ID")
	}
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence number %q", s)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownComputation):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownCircuit), errors.Is(err, ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, wire.ErrorResponse{Error: err.Error()})
}
