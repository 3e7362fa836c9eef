package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/embedding"
	"github.com/raphaelgruber/voxrecon/internal/evidence"
	"github.com/raphaelgruber/voxrecon/internal/metrics"
	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/names"
	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/reconcile"
	"github.com/raphaelgruber/voxrecon/internal/report"
	"github.com/raphaelgruber/voxrecon/internal/scheduler"
	"github.com/raphaelgruber/voxrecon/internal/stats"
	"github.com/raphaelgruber/voxrecon/internal/store"
)

// ErrNoReport is returned when a claim is regenerated before any report exists.
var ErrNoReport = errors.New("no report generated")

// ErrClaimNotFound is returned for unknown claim ids.
var ErrClaimNotFound = errors.New("claim not found")

// ErrNoStore is returned by persistence operations when no store is configured.
var ErrNoStore = errors.New("persistence not configured")

// Schedule decides whether the next increment should run once audio up to
// unprocessedEndMs has been recorded.
func (s *Service) Schedule(id string, unprocessedEndMs int64) (scheduler.Decision, error) {
	var dec scheduler.Decision
	err := s.withSession(id, func(sess *Session) error {
		sess.recordedEndMs = max(sess.recordedEndMs, unprocessedEndMs)
		dec = scheduler.Decide(scheduler.Input{
			Enabled:            s.cfg.Scheduler.IntervalMs > 0,
			Status:             sess.status,
			UnprocessedEndMs:   unprocessedEndMs,
			LastProcessedEndMs: sess.lastProcessedEndMs,
			IncrementIndex:     len(sess.increments),
			Config:             s.cfg.Scheduler,
		})
		return nil
	})
	return dec, err
}

// RunIncrement transcribes and diarizes the window of dec. Provider times are
// relative to the window audio and are shifted by dec.StartMs. When the
// decision asks for analysis, a reconciliation pass follows.
func (s *Service) RunIncrement(ctx context.Context, id string, dec scheduler.Decision, audio provider.Audio) (*scheduler.IncrementResult, error) {
	if !dec.Schedule {
		return nil, fmt.Errorf("%w: increment not scheduled (%s)", ErrInvalidInput, dec.Reason)
	}
	transcriber, err := s.registry.Transcriber()
	if err != nil {
		return nil, err
	}

	var inc *scheduler.IncrementResult
	err = s.withSession(id, func(sess *Session) error {
		if dec.IncrementIndex != len(sess.increments) {
			return fmt.Errorf("%w: increment %d is stale, next is %d", ErrInvalidInput, dec.IncrementIndex, len(sess.increments))
		}
		prev := sess.status
		sess.status = scheduler.StatusProcessing
		defer func() {
			if sess.status == scheduler.StatusProcessing {
				sess.status = prev
			}
		}()

		var utts []models.Utterance
		err := s.collector.Time(metrics.OpTranscribe, func() error {
			var err error
			utts, err = transcriber.TranscribeBatch(ctx, audio)
			return err
		})
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		for i := range utts {
			shiftUtterance(&utts[i], dec.StartMs)
		}

		if s.registry.HasProvider(provider.KindDiarization) {
			if err := s.diarizeLocked(ctx, sess, dec, audio, utts); err != nil {
				return err
			}
		}

		inc = &scheduler.IncrementResult{
			Index:        dec.IncrementIndex,
			AudioStartMs: dec.StartMs,
			AudioEndMs:   dec.EndMs,
			Mode:         dec.Mode,
			Utterances:   utts,
		}
		sess.increments = append(sess.increments, *inc)
		sess.lastProcessedEndMs = dec.EndMs
		sess.recordedEndMs = max(sess.recordedEndMs, dec.EndMs)
		sess.result = nil
		metrics.Increments.WithLabelValues(string(dec.Mode)).Inc()
		s.logger.Info("increment processed",
			"session_id", id,
			"index", dec.IncrementIndex,
			"mode", dec.Mode,
			"start_ms", dec.StartMs,
			"end_ms", dec.EndMs,
			"utterances", len(utts))

		if dec.RunAnalysis {
			if _, err := s.analyzeLocked(ctx, sess); err != nil {
				return err
			}
		}
		s.persistLocked(ctx, sess)
		return nil
	})
	return inc, err
}

func shiftUtterance(u *models.Utterance, offsetMs int64) {
	u.StartMs += offsetMs
	u.EndMs += offsetMs
	u.DurationMs = u.EndMs - u.StartMs
	for i := range u.Words {
		u.Words[i].StartMs += offsetMs
		u.Words[i].EndMs += offsetMs
	}
}

// incrementSegmentID namespaces a diarizer segment id by increment. The
// diarizer restarts its numbering in every window.
func incrementSegmentID(index int, id string) string {
	return fmt.Sprintf("i%d_%s", index, id)
}

// segmentIncrement returns the increment an id was namespaced with.
func segmentIncrement(id string) (int, bool) {
	head, _, ok := strings.Cut(id, "_")
	if !ok || len(head) < 2 || head[0] != 'i' {
		return 0, false
	}
	n, err := strconv.Atoi(head[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Service) diarizeLocked(ctx context.Context, sess *Session, dec scheduler.Decision, audio provider.Audio, utts []models.Utterance) error {
	diarizer, err := s.registry.Diarizer()
	if err != nil {
		return err
	}
	var res *provider.DiarizationResult
	err = s.collector.Time(metrics.OpDiarize, func() error {
		var err error
		res, err = diarizer.Diarize(ctx, audio)
		return err
	})
	if err != nil {
		return fmt.Errorf("diarize: %w", err)
	}

	offsetMs := dec.StartMs
	if dec.Mode == scheduler.ModeCumulative {
		// The new pass covers the whole window; drop what earlier increments
		// diarized inside it.
		removed := sess.cache.RemoveFunc(func(e models.CachedEmbedding) bool {
			idx, ok := segmentIncrement(e.SegmentID)
			return ok && idx < dec.IncrementIndex && e.StartMs < dec.EndMs && e.EndMs > dec.StartMs
		})
		if removed > 0 {
			s.logger.Debug("replaced earlier diarization", "session_id", sess.ID, "index", dec.IncrementIndex, "removed", removed)
		}
	}
	for i := range res.Embeddings {
		e := &res.Embeddings[i]
		e.SegmentID = incrementSegmentID(dec.IncrementIndex, e.SegmentID)
		e.StartMs += offsetMs
		e.EndMs += offsetMs
	}
	s.insertEmbeddingsLocked(sess, res.Embeddings)
	turns := make([]models.DiarizationTurn, len(res.Turns))
	for i, t := range res.Turns {
		t.StartMs += offsetMs
		t.EndMs += offsetMs
		turns[i] = t
	}
	if reconcile.Backend(s.cfg.Backend) == reconcile.BackendOnDevice {
		sess.localTurns = append(sess.localTurns, turns...)
		return nil
	}
	sess.diarEvents = append(sess.diarEvents, eventsFromTurns(utts, turns)...)
	return nil
}

// eventsFromTurns asserts the cluster of the turn overlapping each utterance
// the most. Ties keep the earlier turn.
func eventsFromTurns(utts []models.Utterance, turns []models.DiarizationTurn) []models.SpeakerEvent {
	var out []models.SpeakerEvent
	for _, u := range utts {
		if u.StreamRole == models.StreamTeacher {
			continue
		}
		best := ""
		var bestOverlap int64
		for _, t := range turns {
			if ov := models.Overlap(u.StartMs, u.EndMs, t.StartMs, t.EndMs); ov > bestOverlap {
				best, bestOverlap = t.ClusterID, ov
			}
		}
		if best == "" {
			continue
		}
		out = append(out, models.SpeakerEvent{
			StreamRole:  u.StreamRole,
			UtteranceID: u.ID,
			ClusterID:   best,
		})
	}
	return out
}

// Stream consumes a streaming transcription and appends every utterance to the
// session. Per-window provider errors are logged and skipped. It returns the
// number of utterances added and stops when ctx is done.
func (s *Service) Stream(ctx context.Context, id string, opts provider.StreamOptions) (int, error) {
	if _, err := s.sessions.Get(id); err != nil {
		return 0, err
	}
	transcriber, err := s.registry.Transcriber()
	if err != nil {
		return 0, err
	}
	opts.SessionID = id
	seq, err := transcriber.StartStreaming(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("start streaming: %w", err)
	}

	added := 0
	for u, err := range seq {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return added, ctxErr
			}
			s.logger.Warn("streaming window failed", "session_id", id, "error", err)
			continue
		}
		if err := s.AddUtterances(id, []models.Utterance{u}); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Reconcile runs clustering, roster matching, reconciliation, statistics and
// evidence over everything the session has collected.
func (s *Service) Reconcile(ctx context.Context, id string) (*Result, error) {
	var res *Result
	err := s.withSession(id, func(sess *Session) error {
		var err error
		res, err = s.analyzeLocked(ctx, sess)
		return err
	})
	return res, err
}

func (s *Service) analyzeLocked(ctx context.Context, sess *Session) (*Result, error) {
	now := s.now()
	utts := sess.transcriptLocked(s.cfg.Scheduler)
	entries := sess.cache.All()

	var clusters cluster.Result
	_ = s.collector.Time(metrics.OpCluster, func() error {
		clusters = cluster.Agglomerative(entries, s.clusterOpts)
		return nil
	})
	mapping := cluster.MatchRoster(clusters, sess.state.Roster, s.cfg.RosterThreshold)
	// Global ids are re-derived on every run; bindings live on the window
	// cluster ids that events carry.
	named := sess.state.ApplyRosterMapping(cluster.WindowMapping(entries, clusters, mapping), now)

	in := reconcile.Input{
		Utterances: utts,
		Events:     sess.eventsLocked(),
		State:      sess.state,
		Global:     reconcile.NewGlobalView(entries, clusters, mapping),
		Backend:    reconcile.Backend(s.cfg.Backend),
		LocalTurns: sess.localTurns,
	}
	var transcript []models.ReconciledUtterance
	_ = s.collector.Time(metrics.OpReconcile, func() error {
		transcript = reconcile.Reconcile(in)
		if extracted := applyNameCandidates(sess.state, transcript, now); len(extracted) > 0 {
			named = append(named, extracted...)
			transcript = reconcile.Reconcile(in)
		}
		return nil
	})
	for _, r := range transcript {
		metrics.Decisions.WithLabelValues(string(r.Decision), r.Resolution).Inc()
	}

	summary := stats.Compute(transcript)
	res := &Result{
		Transcript: transcript,
		Clusters:   clusters,
		Mapping:    mapping,
		Stats:      summary,
		Named:      named,
		ComputedAt: now,
	}
	err := s.collector.Time(metrics.OpEvidence, func() error {
		semantic, err := s.semantic(ctx, sess.memos, transcript)
		if err != nil {
			return err
		}
		res.Evidence = s.builder.Build(evidence.Input{
			Transcript: transcript,
			Stats:      summary.Stats,
			Memos:      sess.memos,
			Roster:     sess.state.Roster,
			Semantic:   semantic,
		})
		res.Events = evidence.AnalyzeEvents(sess.ID, transcript, sess.memos, summary.Stats)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sess.result = res
	s.logger.Debug("session reconciled",
		"session_id", sess.ID,
		"utterances", len(transcript),
		"clusters", len(clusters.IDs),
		"confidence", clusters.Confidence,
		"evidence", len(res.Evidence))
	return res, nil
}

// semantic scores memos against utterances when an embedder is configured.
// Provider failures degrade to keyword matching; only cancellation is returned.
func (s *Service) semantic(ctx context.Context, memos []models.Memo, transcript []models.ReconciledUtterance) (map[string]map[string]float64, error) {
	if s.embedder == nil || len(memos) == 0 {
		return nil, nil
	}
	scores, err := embedding.Semantic(ctx, s.embedder, memos, transcript)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("semantic memo matching failed, using keywords", "model", s.embedder.Model(), "error", err)
		return nil, nil
	}
	return scores, nil
}

// applyNameCandidates binds clusters whose speakers introduce themselves. It
// returns the clusters that gained a binding.
func applyNameCandidates(state *reconcile.SessionState, transcript []models.ReconciledUtterance, now time.Time) []string {
	var out []string
	for _, r := range transcript {
		if r.StreamRole == models.StreamTeacher || r.ClusterID == "" {
			continue
		}
		c, ok := names.Best(r.Text)
		if !ok {
			continue
		}
		if state.ApplyNameCandidate(r.ClusterID, c.Name, c.Confidence, now) {
			out = append(out, r.ClusterID)
		}
	}
	return out
}

// resultLocked returns the cached analysis or computes a fresh one.
func (s *Service) resultLocked(ctx context.Context, sess *Session) (*Result, error) {
	if sess.result != nil {
		return sess.result, nil
	}
	return s.analyzeLocked(ctx, sess)
}

// Report synthesizes a narrative report with the active synthesizer. When a
// model-backed synthesizer fails, the deterministic template is used instead.
func (s *Service) Report(ctx context.Context, id string) (*models.Report, error) {
	var rep *models.Report
	err := s.withSession(id, func(sess *Session) error {
		var err error
		rep, err = s.reportLocked(ctx, sess)
		return err
	})
	return rep, err
}

func (s *Service) reportLocked(ctx context.Context, sess *Session) (*models.Report, error) {
	res, err := s.resultLocked(ctx, sess)
	if err != nil {
		return nil, err
	}
	rc := report.NewContext(sess.ID, res.Transcript, res.Stats.Stats, res.Evidence, res.Events, sess.memos, sess.state.Roster)

	synth, err := s.synthesizer()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var rep *models.Report
	err = s.collector.Time(metrics.OpSynthesize, func() error {
		var err error
		rep, err = synth.SynthesizeReport(ctx, rc)
		return err
	})
	if err != nil && ctx.Err() == nil && s.registry.Active(provider.KindNarrativeSynthesis) != report.TemplateModelID {
		s.logger.Warn("synthesis failed, using template",
			"session_id", sess.ID,
			"provider", s.registry.Active(provider.KindNarrativeSynthesis),
			"error", err)
		rep, err = report.NewTemplateSynthesizer().SynthesizeReport(ctx, rc)
	}
	if err != nil {
		return nil, fmt.Errorf("synthesize report: %w", err)
	}
	if rep.ElapsedMs == 0 {
		rep.ElapsedMs = time.Since(start).Milliseconds()
	}
	sess.report = rep

	if s.store != nil {
		if err := s.collector.Time(metrics.OpStore, func() error {
			return s.store.SaveReport(ctx, sess.ID, rep)
		}); err != nil {
			s.logger.Warn("failed to persist report", "session_id", sess.ID, "error", err)
		}
	}
	return rep, nil
}

func (s *Service) synthesizer() (provider.Synthesizer, error) {
	if !s.registry.HasProvider(provider.KindNarrativeSynthesis) {
		return report.NewTemplateSynthesizer(), nil
	}
	return s.registry.Synthesizer()
}

// LastReport returns the most recent report of a session, falling back to the
// store when the session has none in memory.
func (s *Service) LastReport(ctx context.Context, id string) (*models.Report, error) {
	var rep *models.Report
	err := s.withSession(id, func(sess *Session) error {
		rep = sess.report
		return nil
	})
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	if rep != nil {
		return rep, nil
	}
	if s.store == nil {
		return nil, ErrNoReport
	}
	rep, err = s.store.LatestReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoReport
	}
	return rep, err
}

// RegenerateClaim rewrites one claim of the latest report and stores it in place.
func (s *Service) RegenerateClaim(ctx context.Context, id, claimID string) (*models.Claim, error) {
	var out *models.Claim
	err := s.withSession(id, func(sess *Session) error {
		if sess.report == nil {
			return ErrNoReport
		}
		pi, ci, ok := findClaim(sess.report, claimID)
		if !ok {
			return fmt.Errorf("%s: %w", claimID, ErrClaimNotFound)
		}
		res, err := s.resultLocked(ctx, sess)
		if err != nil {
			return err
		}
		rc := report.NewContext(sess.ID, res.Transcript, res.Stats.Stats, res.Evidence, res.Events, sess.memos, sess.state.Roster)
		synth, err := s.synthesizer()
		if err != nil {
			return err
		}
		claim, err := synth.RegenerateClaim(ctx, sess.report.Persons[pi].Claims[ci], rc)
		if err != nil {
			return fmt.Errorf("regenerate claim: %w", err)
		}
		sess.report.Persons[pi].Claims[ci] = *claim
		out = claim
		return nil
	})
	return out, err
}

func findClaim(rep *models.Report, claimID string) (person, claim int, ok bool) {
	for pi, p := range rep.Persons {
		for ci, c := range p.Claims {
			if c.ClaimID == claimID {
				return pi, ci, true
			}
		}
	}
	return 0, 0, false
}

// Finalize runs a last reconciliation and report, then marks the session completed.
func (s *Service) Finalize(ctx context.Context, id string) (*models.Report, error) {
	var rep *models.Report
	err := s.withSession(id, func(sess *Session) error {
		if sess.status == scheduler.StatusCompleted && sess.report != nil {
			rep = sess.report
			return nil
		}
		sess.status = scheduler.StatusFinalizing
		if _, err := s.analyzeLocked(ctx, sess); err != nil {
			sess.status = scheduler.StatusIdle
			return err
		}
		var err error
		rep, err = s.reportLocked(ctx, sess)
		if err != nil {
			sess.status = scheduler.StatusIdle
			return err
		}
		sess.status = scheduler.StatusCompleted
		s.persistLocked(ctx, sess)
		return nil
	})
	return rep, err
}

// FinalizeAll finalizes every live session concurrently.
func (s *Service) FinalizeAll(ctx context.Context) error {
	return s.sessions.ForEach(ctx, func(ctx context.Context, sess *Session) error {
		if _, err := s.Finalize(ctx, sess.ID); err != nil {
			return fmt.Errorf("finalize %s: %w", sess.ID, err)
		}
		return nil
	})
}

// Persist saves the session snapshot.
func (s *Service) Persist(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.withSession(id, func(sess *Session) error {
		return s.saveLocked(ctx, sess)
	})
}

// persistLocked saves the snapshot when a store is configured and logs failures.
func (s *Service) persistLocked(ctx context.Context, sess *Session) {
	if s.store == nil {
		return
	}
	if err := s.saveLocked(ctx, sess); err != nil {
		s.logger.Warn("failed to persist session", "session_id", sess.ID, "error", err)
	}
}

func (s *Service) saveLocked(ctx context.Context, sess *Session) error {
	cache, state, err := sess.marshalLocked()
	if err != nil {
		return err
	}
	return s.collector.Time(metrics.OpStore, func() error {
		return s.store.SaveSnapshot(ctx, store.Snapshot{
			SessionID:  sess.ID,
			Cache:      string(cache),
			State:      string(state),
			Increments: len(sess.increments),
		})
	})
}

// Restore loads a persisted session into memory, replacing any live copy.
func (s *Service) Restore(ctx context.Context, id string) (Info, error) {
	if s.store == nil {
		return Info{}, ErrNoStore
	}
	snap, err := s.store.LoadSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Info{}, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
		}
		return Info{}, err
	}
	sess := s.sessions.Open(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	skipped, err := sess.restoreLocked([]byte(snap.Cache), []byte(snap.State))
	if err != nil {
		return Info{}, err
	}
	if skipped > 0 {
		s.logger.Warn("restored cache exceeded budget", "session_id", id, "skipped", skipped)
	}
	metrics.CacheBytes.WithLabelValues(id).Set(float64(sess.cache.MemoryUsage()))
	sess.touch(s.now())
	return sess.infoLocked(), nil
}
