// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package engine drives the risk assessment pipeline. Each active
// session is owned by one actor goroutine with a bounded mailbox, so
// pings for a session are processed in order while sessions proceed
// independently. A failure inside one session's evaluation never
// affects any other session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/geosentry/geosentry/internal/alert"
	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/geofence"
	"github.com/geosentry/geosentry/internal/hotspot"
	"github.com/geosentry/geosentry/internal/ingest"
	"github.com/geosentry/geosentry/internal/logging"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
	"github.com/geosentry/geosentry/internal/pattern"
	"github.com/geosentry/geosentry/internal/risk"
)

// ErrMailboxFull is returned when a session's mailbox cannot accept
// another ping. The caller should surface backpressure rather than
// block the ingestion path.
var ErrMailboxFull = errors.New("session mailbox full")

// ErrShuttingDown is returned for pings submitted after shutdown began.
var ErrShuttingDown = errors.New("engine shutting down")

// TrackArchiver persists a session's track when the session is reaped,
// so audit history survives session teardown.
type TrackArchiver interface {
	ArchiveTrack(ctx context.Context, sessionID string, track []models.LocationPing) error
}

// Result is the outcome of processing one ping through the full
// pipeline. A rejected ping carries the typed reason and an empty
// assessment.
type Result struct {
	Accepted        bool
	RejectionReason ingest.RejectionReason
	RejectionDetail string
	Assessment      risk.Assessment
	Alert           *models.Alert
}

// Deps wires the pipeline stages into the engine.
type Deps struct {
	Ingestor   *ingest.Ingestor
	Fences     *geofence.Store
	Evaluator  *geofence.Evaluator
	Hotspots   *hotspot.Store
	Scorer     *hotspot.Scorer
	Analyzer   *pattern.Analyzer
	Aggregator *risk.Aggregator
	Emitter    *alert.Emitter

	// Archive is optional; when nil, reaped tracks are discarded.
	Archive TrackArchiver
}

type request struct {
	ping  models.LocationPing
	reply chan Result
}

type worker struct {
	mailbox chan request
	stop    chan struct{}
}

// Engine owns the per-session workers and the pipeline they execute.
type Engine struct {
	cfg  *config.Config
	deps Deps

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an Engine. Session workers are created lazily on the
// first ping for a session; Serve only has to be running for shutdown
// to propagate to them.
func New(cfg *config.Config, deps Deps) *Engine {
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		workers: make(map[string]*worker),
		done:    make(chan struct{}),
	}
}

// Serve blocks until the context is canceled, then stops all session
// workers. It satisfies suture.Service.
func (e *Engine) Serve(ctx context.Context) error {
	<-ctx.Done()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	logging.Info().Str("component", "engine").Msg("engine stopped")
	return ctx.Err()
}

// ProcessPing routes a ping to its session worker and waits for the
// pipeline outcome. It never blocks on a full mailbox: backpressure is
// reported as ErrMailboxFull so the transport can answer accordingly.
func (e *Engine) ProcessPing(ctx context.Context, ping models.LocationPing) (Result, error) {
	w, err := e.workerFor(ping.SessionID)
	if err != nil {
		return Result{}, err
	}

	req := request{ping: ping, reply: make(chan Result, 1)}
	select {
	case w.mailbox <- req:
	default:
		return Result{}, ErrMailboxFull
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-e.done:
		return Result{}, ErrShuttingDown
	}
}

// workerFor returns the session's worker, creating it on first use.
func (e *Engine) workerFor(sessionID string) (*worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrShuttingDown
	}
	if w, ok := e.workers[sessionID]; ok {
		return w, nil
	}

	w := &worker{
		mailbox: make(chan request, e.cfg.Ingest.MailboxSize),
		stop:    make(chan struct{}),
	}
	e.workers[sessionID] = w
	e.wg.Add(1)
	go e.runWorker(sessionID, w)
	return w, nil
}

// runWorker serializes pipeline execution for one session.
func (e *Engine) runWorker(sessionID string, w *worker) {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case <-w.stop:
			return
		case req := <-w.mailbox:
			req.reply <- e.safeProcess(sessionID, req.ping)
		}
	}
}

// safeProcess isolates panics to the offending session. The session's
// worker survives and keeps serving subsequent pings.
func (e *Engine) safeProcess(sessionID string, ping models.LocationPing) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("session_id", sessionID).
				Interface("panic", r).
				Msg("session pipeline panic recovered")
			res = Result{
				Accepted:        false,
				RejectionReason: "internal_error",
				RejectionDetail: fmt.Sprintf("evaluation failed: %v", r),
			}
		}
	}()
	return e.process(ping)
}

// process runs the full pipeline for one accepted ping: validation and
// track append, then the three evaluators, aggregation, and alert
// emission.
func (e *Engine) process(ping models.LocationPing) Result {
	start := time.Now()

	track, err := e.deps.Ingestor.Ingest(ping)
	if err != nil {
		var rej *ingest.RejectionError
		if errors.As(err, &rej) {
			return Result{
				Accepted:        false,
				RejectionReason: rej.Reason,
				RejectionDetail: rej.Detail,
			}
		}
		return Result{
			Accepted:        false,
			RejectionReason: "internal_error",
			RejectionDetail: err.Error(),
		}
	}

	signals := e.deps.Evaluator.Evaluate(ping)
	signals = append(signals, e.deps.Scorer.Score(ping)...)
	signals = append(signals, e.deps.Analyzer.Analyze(track, e.sensitiveLocations())...)

	assessment := e.deps.Aggregator.Aggregate(signals)
	emitted := e.deps.Emitter.MaybeEmit(assessment, ping)

	metrics.RecordEvaluation(time.Since(start))

	return Result{
		Accepted:   true,
		Assessment: assessment,
		Alert:      emitted,
	}
}

// sensitiveLocations builds the loitering reference set from the
// current hotspot snapshot plus the centers of active geofences.
func (e *Engine) sensitiveLocations() []pattern.SensitiveLocation {
	hotspots := e.deps.Hotspots.Snapshot()
	fences := e.deps.Fences.Snapshot()

	out := make([]pattern.SensitiveLocation, 0, len(hotspots)+len(fences))
	for i := range hotspots {
		name := hotspots[i].Name
		if name == "" {
			name = hotspots[i].ID
		}
		out = append(out, pattern.SensitiveLocation{
			Name:      name,
			Latitude:  hotspots[i].Latitude,
			Longitude: hotspots[i].Longitude,
		})
	}
	for i := range fences {
		lat, lon := fences[i].Centroid()
		out = append(out, pattern.SensitiveLocation{
			Name:      fences[i].Name,
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return out
}

// AssessTrack runs the evaluators against the session's current track
// without mutating any state. Used by the session risk profile endpoint.
func (e *Engine) AssessTrack(sessionID string) (risk.Assessment, bool) {
	track, ok := e.deps.Ingestor.Track(sessionID)
	if !ok || len(track) == 0 {
		return risk.Assessment{}, false
	}

	latest := track[len(track)-1]
	signals := e.deps.Scorer.Score(latest)
	signals = append(signals, e.deps.Analyzer.Analyze(track, e.sensitiveLocations())...)
	return e.deps.Aggregator.Aggregate(signals), true
}

// SweepOnce reaps idle sessions: their tracks are archived, geofence
// memberships cleared, and workers stopped. Returns the number of
// sessions reaped.
func (e *Engine) SweepOnce(ctx context.Context, now time.Time) int {
	dropped := e.deps.Ingestor.Sweep(now)
	if len(dropped) == 0 {
		return 0
	}

	// DETERMINISM: reap in session ID order for reproducible logs and
	// archive write ordering.
	ids := make([]string, 0, len(dropped))
	for id := range dropped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e.deps.Evaluator.DropSession(id)
		e.stopWorker(id)

		if e.deps.Archive != nil {
			if err := e.deps.Archive.ArchiveTrack(ctx, id, dropped[id]); err != nil {
				logging.Error().Err(err).Str("session_id", id).Msg("failed to archive reaped track")
			}
		}
	}

	logging.Info().Int("sessions_reaped", len(ids)).Msg("idle session sweep completed")
	return len(ids)
}

// stopWorker terminates and forgets a session's worker. Safe to call
// for sessions without one.
func (e *Engine) stopWorker(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := e.workers[sessionID]; ok {
		close(w.stop)
		delete(e.workers, sessionID)
	}
}

// WorkerCount returns the number of live session workers.
func (e *Engine) WorkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}
