package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"beltline.dev/internal/persistence/indexdb"
	"beltline.dev/internal/persistence/s3mirror"
	"beltline.dev/internal/protocol"
	"beltline.dev/internal/session"
	"beltline.dev/internal/telemetry"
	"beltline.dev/internal/transport/ws"
)

// app holds what the HTTP surface of one server process needs.
type app struct {
	blueprintID string
	sess        *session.Session
	idx         *indexdb.Index
	s3          *s3MirrorRuntime
	metrics     *telemetry.Metrics
	validator   *protocol.Validator
	logger      *log.Logger
	outQueue    int
}

func (a *app) routes(enableAdmin, enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/v1/ws", ws.NewServer(a.sess, a.validator, a.outQueue, a.logger).Handler())

	if enableAdmin {
		// Local-only admin endpoints (do not affect editing).
		mux.HandleFunc("/admin/v1/state", loopbackOnly(a.handleState))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(a.handleSnapshot))
		mux.HandleFunc("/admin/v1/ops", loopbackOnly(a.handleEntityOps))
	}
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	resp := struct {
		BlueprintID string          `json:"blueprint_id"`
		SessionID   string          `json:"session_id"`
		Session     session.Stats   `json:"session"`
		Index       *indexdb.Stats  `json:"index,omitempty"`
		S3          *s3mirror.Stats `json:"s3,omitempty"`
	}{
		BlueprintID: a.blueprintID,
		SessionID:   a.sess.ID(),
		Session:     a.sess.Stats(),
	}
	if a.idx != nil {
		st := a.idx.Stats()
		resp.Index = &st
	}
	if st, ok := a.s3.Stats(); ok {
		resp.S3 = &st
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *app) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	seq, err := a.sess.RequestSnapshot(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "seq": seq, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "seq": seq})
}

// handleEntityOps lists the op log indices that touched ?entity=N.
func (a *app) handleEntityOps(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		http.Error(rw, "index disabled", http.StatusNotFound)
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("entity"))
	if err != nil || n <= 0 {
		http.Error(rw, "bad entity", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ops, err := a.idx.OpsForEntity(ctx, a.blueprintID, n)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"entity": n, "ops": ops})
}

type statFunc struct {
	name, help string
	fn         func() float64
}

// registerGauges exposes runtime stats next to the counters the session
// feeds directly.
func (a *app) registerGauges() error {
	gauges := []statFunc{
		{"session_seq", "Current blueprint seq.", func() float64 { return float64(a.sess.Stats().Seq) }},
		{"session_entities", "Entities in the blueprint.", func() float64 { return float64(a.sess.Stats().Entities) }},
		{"session_clients", "Connected editor clients.", func() float64 { return float64(a.sess.Stats().Clients) }},
		{"session_inbox_depth", "Queued gestures.", func() float64 { return float64(a.sess.Stats().InboxDepth) }},
	}
	counters := []statFunc{
		{"session_snapshot_drops_total", "Periodic snapshots dropped because the writer was busy.", func() float64 { return float64(a.sess.Stats().SnapshotDrops) }},
		{"session_sink_errors_total", "Op log sink errors.", func() float64 { return float64(a.sess.Stats().SinkErrorTotal) }},
	}
	if a.idx != nil {
		gauges = append(gauges, statFunc{"index_queue_depth", "Pending index writes.", func() float64 { return float64(a.idx.Stats().QueueDepth) }})
		counters = append(counters, statFunc{"index_drop_ops_total", "Op records dropped by the index queue.", func() float64 { return float64(a.idx.Stats().DropOpTotal) }})
	}
	if _, ok := a.s3.Stats(); ok {
		s3 := func(pick func(s3mirror.Stats) float64) func() float64 {
			return func() float64 {
				st, _ := a.s3.Stats()
				return pick(st)
			}
		}
		gauges = append(gauges,
			statFunc{"s3_queue_depth", "Files waiting for upload.", s3(func(s s3mirror.Stats) float64 { return float64(s.QueueDepth) })},
			statFunc{"s3_last_success_unix", "Time of the last successful upload.", s3(func(s s3mirror.Stats) float64 { return float64(s.LastSuccessUnix) })},
		)
		counters = append(counters,
			statFunc{"s3_upload_success_total", "Files mirrored to object storage.", s3(func(s s3mirror.Stats) float64 { return float64(s.UploadSuccessTotal) })},
			statFunc{"s3_upload_fail_total", "Files that exhausted upload retries.", s3(func(s s3mirror.Stats) float64 { return float64(s.UploadFailTotal) })},
			statFunc{"s3_dropped_total", "Files dropped on a full upload queue.", s3(func(s s3mirror.Stats) float64 { return float64(s.DroppedTotal) })},
		)
	}

	labels := prometheus.Labels{"blueprint": a.blueprintID}
	for _, g := range gauges {
		if err := a.metrics.Gauge(g.name, g.help, labels, g.fn); err != nil {
			return err
		}
	}
	for _, c := range counters {
		if err := a.metrics.Counter(c.name, c.help, labels, c.fn); err != nil {
			return err
		}
	}
	return nil
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
