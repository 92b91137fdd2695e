package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicedesk/backend/internal/models"
)

// SweeperStore is the store surface the retention sweeper needs.
type SweeperStore interface {
	ListExpiredCalls(ctx context.Context, cutoff time.Time) ([]models.Call, error)
	SoftDeleteCall(ctx context.Context, id string) error
	ClearAudioPath(ctx context.Context, id string) error
}

// AudioDeleter removes stored audio for a call id.
type AudioDeleter interface {
	DeleteFile(callID string) (bool, error)
}

// Sweeper is the two-phase retention job: soft-delete expired calls, then
// best-effort purge their audio. Per-call failures are logged and the batch
// continues; a failed purge is retried on the next sweep because the call
// still carries its audio path.
type Sweeper struct {
	Store         SweeperStore
	Files         AudioDeleter
	Logger        zerolog.Logger
	RetentionDays int
	Interval      time.Duration
}

func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.Logger.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}

// Sweep performs one retention pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)
	calls, err := s.Store.ListExpiredCalls(ctx, cutoff)
	if err != nil {
		return err
	}

	swept := 0
	for _, call := range calls {
		log := s.Logger.With().Str("call_id", call.ID).Logger()

		if !call.IsDeleted {
			if err := s.Store.SoftDeleteCall(ctx, call.ID); err != nil {
				log.Error().Err(err).Msg("soft delete failed")
				continue
			}
		}

		if call.AudioPath != "" {
			if _, err := s.Files.DeleteFile(call.ID); err != nil {
				// Retried on the next sweep; the audio path stays set.
				log.Error().Err(err).Msg("audio purge failed")
				continue
			}
			if err := s.Store.ClearAudioPath(ctx, call.ID); err != nil {
				log.Error().Err(err).Msg("clear audio path failed")
				continue
			}
		}
		swept++
	}

	s.Logger.Info().Int("expired", len(calls)).Int("swept", swept).Msg("retention sweep complete")
	return nil
}
