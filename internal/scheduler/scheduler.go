// Package scheduler drives the outer poll loop: batches watched accounts,
// fetches their uploads (and optionally likes), runs new tracks through the
// media pipeline and webhook poster, and decides when to flush the stores.
// The tick loop is grounded on the teacher's playlist scheduler (ticker +
// context-cancellable loop); everything it does per tick is new, per
// spec.md §4.6/§4.7.
package scheduler

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arung-agamani/scarchive-go/internal/config"
	"github.com/arung-agamani/scarchive-go/internal/gate"
	"github.com/arung-agamani/scarchive-go/internal/media"
	"github.com/arung-agamani/scarchive-go/internal/soundcloud"
	"github.com/arung-agamani/scarchive-go/internal/store"
	"github.com/arung-agamani/scarchive-go/internal/webhook"
)

// uploadsBuffer is the small cushion added to a published track_count when
// computing the uploads fetch cap (open question resolved in SPEC_FULL.md).
const uploadsBuffer = 5

// Enroller runs the auto-enrollment step (§4.8). Defined here to avoid a
// dependency cycle between scheduler and enroll; internal/enroll implements
// it.
type Enroller interface {
	Run(ctx context.Context) error
}

// Scheduler owns the tick loop and all of its mutable counters.
type Scheduler struct {
	cfg          *config.Config
	client       *soundcloud.Client
	gates        *gate.Gates
	trackStore   *store.TrackStore
	accountStore *store.AccountStore
	pipeline     *media.Pipeline
	poster       *webhook.Poster
	enroller     Enroller

	tickCounter       int
	autoEnrollCounter int
	pendingNewTracks  int
	dirty             bool
	lastStats         time.Time
}

func New(
	cfg *config.Config,
	client *soundcloud.Client,
	gates *gate.Gates,
	trackStore *store.TrackStore,
	accountStore *store.AccountStore,
	pipeline *media.Pipeline,
	poster *webhook.Poster,
	enroller Enroller,
) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		client:       client,
		gates:        gates,
		trackStore:   trackStore,
		accountStore: accountStore,
		pipeline:     pipeline,
		poster:       poster,
		enroller:     enroller,
		lastStats:    time.Now(),
	}
}

// Run blocks, ticking every configured interval, until ctx is cancelled. On
// cancellation it performs a single bounded flush before returning.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Scheduler started", "tick_interval", s.cfg.TickInterval())

	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopping, flushing store")
			s.flushOnShutdown()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// flushOnShutdown implements §4.6 step 1: a bounded 5-second save on
// shutdown. In-flight downloads and webhook posts may be lost; any
// not-yet-inserted new-track ids remain unknown and are re-announced on the
// next run.
func (s *Scheduler) flushOnShutdown() {
	done := make(chan error, 1)
	go func() { done <- s.trackStore.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("shutdown flush failed", "error", err)
		}
	case <-time.After(5 * time.Second):
		slog.Error("shutdown flush timed out after 5s")
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.tickCounter++

	if s.cfg.AutoEnrollSource != "" && s.enroller != nil {
		s.autoEnrollCounter++
		if s.autoEnrollCounter >= s.cfg.AutoEnrollInterval {
			if err := s.enroller.Run(ctx); err != nil {
				slog.Warn("auto-enroll run failed", "error", err)
			}
			s.autoEnrollCounter = 0
		}
	}

	accounts := s.accountStore.List()
	batchSize := s.cfg.UpstreamParallelism
	if batchSize <= 0 {
		batchSize = 1
	}

	var tickNewTracks int
	for start := 0; start < len(accounts); start += batchSize {
		end := start + batchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		batch := accounts[start:end]

		g, gctx := errgroup.WithContext(ctx)
		counts := make([]int, len(batch))
		for i, accountID := range batch {
			i, accountID := i, accountID
			g.Go(func() error {
				n, err := s.runAccount(gctx, accountID)
				if err != nil {
					slog.Warn("account routine failed", "account_id", accountID, "error", err)
					return nil
				}
				counts[i] = n
				return nil
			})
		}
		// Errors are already absorbed per-account above, so every goroutine
		// returns nil and Wait only waits for the batch to finish.
		_ = g.Wait()

		for _, n := range counts {
			tickNewTracks += n
		}
	}

	if tickNewTracks > 0 {
		s.dirty = true
	}
	s.pendingNewTracks += tickNewTracks

	s.maybeSave()
	s.maybeLogStats(len(accounts))
}

// maybeSave implements §4.6 step 5: save once when either threshold fires,
// resetting both counters together.
func (s *Scheduler) maybeSave() {
	shouldSave := (s.dirty && s.pendingNewTracks >= s.cfg.SaveEveryTracks) || s.tickCounter >= s.cfg.SaveEveryTicks
	if !shouldSave {
		return
	}

	if err := s.trackStore.Save(); err != nil {
		slog.Error("periodic save failed", "error", err)
	}

	s.pendingNewTracks = 0
	s.dirty = false
	s.tickCounter = 0
}

func (s *Scheduler) maybeLogStats(watchedAccounts int) {
	if time.Since(s.lastStats) < time.Hour {
		return
	}
	s.lastStats = time.Now()
	slog.Info("poll scheduler stats",
		"watched_accounts", watchedAccounts,
		"known_tracks", len(s.trackStore.ListIDs()),
		"pending_new_tracks", s.pendingNewTracks,
	)
}

// runAccount implements §4.7: fetch uploads (+likes), diff against the
// store, and run every new track through the pipeline and poster
// concurrently. Returns the number of tracks successfully announced.
func (s *Scheduler) runAccount(ctx context.Context, accountID string) (int, error) {
	maxUploads := s.cfg.MaxUploadsPerAccount
	if user, err := s.client.GetUser(ctx, accountID); err == nil && user.TrackCount != nil {
		withBuffer := int(*user.TrackCount) + uploadsBuffer
		if withBuffer < maxUploads {
			maxUploads = withBuffer
		}
	}

	uploads, err := s.client.GetUploads(ctx, accountID, maxUploads)
	if err != nil {
		return 0, err
	}

	tracks := uploads
	if s.cfg.EnableLikes {
		likes, err := s.client.GetLikes(ctx, accountID, s.cfg.MaxLikesPerAccount)
		if err != nil {
			slog.Warn("likes fetch failed", "account_id", accountID, "error", err)
		} else {
			for _, l := range likes {
				tracks = append(tracks, l.Track)
			}
		}
	}
	tracks = dedupeTracks(tracks)

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID.String()
	}

	newIDs := make(map[string]bool)
	for _, id := range s.trackStore.AddMany(ids) {
		newIDs[id] = true
	}

	if len(newIDs) == 0 {
		return 0, nil
	}

	var successCount int
	g, gctx := errgroup.WithContext(ctx)
	results := make(chan bool, len(newIDs))

	for _, t := range tracks {
		trackID := t.ID.String()
		if !newIDs[trackID] {
			continue
		}
		g.Go(func() error {
			ok := s.processTrack(gctx, accountID, trackID)
			results <- ok
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	for ok := range results {
		if ok {
			successCount++
		}
	}

	return successCount, nil
}

// processTrack runs one new track through the processing gate, media
// pipeline, webhook gate, and poster, linking the store on success.
func (s *Scheduler) processTrack(ctx context.Context, accountID, trackID string) bool {
	if err := s.gates.Processing.Acquire(ctx); err != nil {
		return false
	}

	track, err := s.client.GetTrack(ctx, trackID)
	if err != nil {
		s.gates.Processing.Release()
		slog.Warn("get_track failed", "track_id", trackID, "error", err)
		return false
	}

	out, err := s.pipeline.Run(ctx, track)
	s.gates.Processing.Release()
	if err != nil {
		slog.Warn("media pipeline failed", "track_id", trackID, "error", err)
		return false
	}
	defer cleanupWorkDir(out.WorkDir)

	if err := s.gates.Webhook.Acquire(ctx); err != nil {
		return false
	}
	defer s.gates.Webhook.Release()

	announce, err := s.poster.Post(ctx, track, out)
	if err != nil {
		slog.Warn("webhook post failed", "track_id", trackID, "error", err)
		return false
	}

	if announce == nil {
		slog.Warn("webhook accepted post but returned no linkage", "track_id", trackID)
		return true
	}

	link := store.AnnounceLink{MessageID: announce.MessageID}
	if announce.ChannelID != "" {
		link.ChannelID = &announce.ChannelID
	}
	userID := accountID
	link.UserID = &userID
	s.trackStore.Link(trackID, link)

	return true
}

// cleanupWorkDir removes a track's per-run staging directory regardless of
// pipeline/webhook outcome (§4.7 step 6).
func cleanupWorkDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove work dir", "dir", dir, "error", err)
	}
}

func dedupeTracks(tracks []soundcloud.Track) []soundcloud.Track {
	seen := make(map[soundcloud.IDString]bool, len(tracks))
	out := make([]soundcloud.Track, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
