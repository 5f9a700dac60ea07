package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// ForgettingReport summarizes one Forgetting Manager run.
type ForgettingReport struct {
	HardForgotten int
	Scheduled     int
	Scanned       int
}

// ForgettingManager runs the two-pass cleanup the scheduler invokes on
// ForgettingCheckInterval: a hard-forget pass over memories whose
// forget_after has already elapsed, and a soft-decay scan that schedules a
// grace-period forget_after for episodic memories whose access-weighted
// score has fallen below EPISODE_DECAY_THRESHOLD. The score is the same
// half-life exponential decay the Search Service applies at query time,
// computed on the fly rather than maintained as a stored column.
type ForgettingManager struct {
	cfg   Config
	store storage.Store
}

// NewForgettingManager builds a ForgettingManager.
func NewForgettingManager(cfg Config, store storage.Store) *ForgettingManager {
	return &ForgettingManager{cfg: cfg, store: store}
}

// Run executes both passes once and returns a report. Safe to call
// concurrently with ingestion/search; each pass only touches forget_after
// and is_forgotten.
func (f *ForgettingManager) Run(ctx context.Context) (ForgettingReport, error) {
	var report ForgettingReport

	now := time.Now()
	n, err := f.store.HardForgetDue(ctx, now)
	if err != nil {
		return report, fmt.Errorf("engine: hard forget pass: %w", err)
	}
	report.HardForgotten = n

	scheduled, scanned, err := f.scanEpisodeDecay(ctx, now)
	if err != nil {
		return report, fmt.Errorf("engine: episode decay scan: %w", err)
	}
	report.Scheduled = scheduled
	report.Scanned = scanned
	return report, nil
}

// scanEpisodeDecay pages through non-forgotten episodic memories, scoring
// each by the same access-weighted decay formula the Search Service applies
// at query time, and schedules a grace-period forget_after for any that fall
// below the threshold and aren't already scheduled.
func (f *ForgettingManager) scanEpisodeDecay(ctx context.Context, now time.Time) (scheduled, scanned int, err error) {
	cursor := ""
	for {
		page, err := f.store.ListMemories(ctx, storage.ListOptions{
			Cursor:            cursor,
			Limit:             100,
			Classification:    types.ClassificationEpisode,
			IncludeLatestOnly: true,
		})
		if err != nil {
			return scheduled, scanned, err
		}

		for i := range page.Items {
			mem := &page.Items[i]
			scanned++
			if mem.IsStatic || mem.IsForgotten || mem.ForgetAfter != nil {
				continue
			}
			score := episodeDecayMultiplier(mem, f.cfg.EpisodeDecayFactor, f.cfg.EpisodeDecayDays)
			if score >= f.cfg.EpisodeDecayThreshold {
				continue
			}
			forgetAfter := now.Add(time.Duration(f.cfg.EpisodeForgetGraceDays * float64(24*time.Hour)))
			if err := f.store.ScheduleForget(ctx, mem.ID, forgetAfter); err != nil {
				return scheduled, scanned, err
			}
			scheduled++
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return scheduled, scanned, nil
}
