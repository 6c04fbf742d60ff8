package retention

import (
	"context"
	"log/slog"
	"time"

	"parley/internal/blobstore"
	"parley/internal/config"
	"parley/internal/deadletter"
	"parley/internal/logging"
	"parley/internal/notifications"
)

// Summary reports the outcome of one sweep pass.
type Summary struct {
	Examined int
	Swept    int
	Failed   int
	Owners   int
	Duration time.Duration
}

// Sweeper removes dead-letter entries and their audio blobs once they age
// past the retention window.
type Sweeper struct {
	store         *deadletter.Store
	blobs         *blobstore.Store
	notifier      notifications.Service
	logger        *slog.Logger
	retentionDays int
	sweepHour     int
	location      *time.Location
	now           func() time.Time
}

// New builds a sweeper from the retention config section. The timezone must
// already be validated by config.Validate.
func New(cfg *config.Config, store *deadletter.Store, blobs *blobstore.Store, notifier notifications.Service, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	location, err := time.LoadLocation(cfg.Retention.Timezone)
	if err != nil {
		location = time.UTC
	}
	days := cfg.Retention.Days
	if days <= 0 {
		days = 7
	}
	return &Sweeper{
		store:         store,
		blobs:         blobs,
		notifier:      notifier,
		logger:        logging.NewComponentLogger(logger, "retention"),
		retentionDays: days,
		sweepHour:     cfg.Retention.SweepHour,
		location:      location,
		now:           time.Now,
	}
}

// WithClock overrides the sweeper's clock. Test hook.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Sweep runs one pass: every entry whose failure is older than the retention
// window loses its audio blob and then its entry. One owner's failures never
// abort another owner's batch.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	started := s.now()
	cutoff := started.Add(-time.Duration(s.retentionDays) * 24 * time.Hour)

	expired, err := s.store.ListOlderThan(ctx, cutoff)
	if err != nil {
		return Summary{}, err
	}

	byOwner := make(map[string][]*deadletter.Entry)
	for _, entry := range expired {
		byOwner[entry.OwnerID] = append(byOwner[entry.OwnerID], entry)
	}

	summary := Summary{Examined: len(expired), Owners: len(byOwner)}
	for ownerID, entries := range byOwner {
		swept, failed := s.sweepOwner(ctx, ownerID, entries)
		summary.Swept += swept
		summary.Failed += failed
	}
	summary.Duration = s.now().Sub(started)

	s.logger.Info("retention sweep complete",
		logging.Int("examined", summary.Examined),
		logging.Int("swept", summary.Swept),
		logging.Int("failed", summary.Failed),
		logging.Int("owners", summary.Owners),
		logging.Duration("duration", summary.Duration))

	if s.notifier != nil && summary.Examined > 0 {
		if err := s.notifier.NotifySweepCompleted(ctx, summary.Swept, summary.Failed, summary.Duration); err != nil {
			s.logger.Warn("sweep notification", logging.Error(err))
		}
	}
	return summary, nil
}

func (s *Sweeper) sweepOwner(ctx context.Context, ownerID string, entries []*deadletter.Entry) (swept, failed int) {
	for _, entry := range entries {
		if ctx.Err() != nil {
			failed += len(entries) - swept - failed
			return swept, failed
		}
		if err := s.blobs.Delete(entry.AudioKey); err != nil {
			s.logger.Warn("sweep blob delete",
				logging.String("owner_id", ownerID),
				logging.String("audio_key", entry.AudioKey),
				logging.Error(err))
		}
		if _, err := s.store.DeleteByID(ctx, entry.ID); err != nil {
			s.logger.Error("sweep entry delete",
				logging.String("owner_id", ownerID),
				logging.String("entry_id", entry.ID),
				logging.Error(err))
			failed++
			continue
		}
		swept++
	}
	return swept, failed
}

// Run sweeps once per day at the configured hour until the context is
// canceled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		wait := time.Until(s.nextRun())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("scheduled sweep", logging.Error(err))
			if s.notifier != nil {
				if notifyErr := s.notifier.NotifyError(ctx, err, "retention sweep"); notifyErr != nil {
					s.logger.Warn("sweep error notification", logging.Error(notifyErr))
				}
			}
		}
	}
}

// nextRun returns the next occurrence of the sweep hour in the configured
// timezone.
func (s *Sweeper) nextRun() time.Time {
	now := s.now().In(s.location)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.sweepHour, 0, 0, 0, s.location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
