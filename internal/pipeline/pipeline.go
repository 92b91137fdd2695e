package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/voicedesk/backend/internal/analytics"
	"github.com/voicedesk/backend/internal/inference"
	"github.com/voicedesk/backend/internal/models"
)

// DefaultNumSpeakers is passed to the diarizer; call-center audio is assumed
// to be a two-party conversation.
const DefaultNumSpeakers = 2

const adapterMaxRetries = 3

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetCall(ctx context.Context, id string) (models.Call, error)
	MarkProcessing(ctx context.Context, id string) error
	SaveTranscript(ctx context.Context, id string, transcript string, duration float64) error
	CompleteCall(ctx context.Context, id string, holdTime, deadAirTime float64, overtalkCount int, segments []models.Segment) error
	FailCall(ctx context.Context, id string, message string) error
}

// SilenceDetector extracts silent intervals from an audio file.
type SilenceDetector interface {
	Detect(path string) ([]analytics.Interval, float64, error)
}

// Orchestrator drives one call through the processing stages. Dependencies
// are injected per instance; the orchestrator itself holds no mutable state
// and is safe to share across worker goroutines.
type Orchestrator struct {
	Store       Store
	Transcriber inference.Transcriber
	Diarizer    inference.Diarizer
	Sentiment   inference.SentimentClassifier
	Silence     SilenceDetector
	Logger      zerolog.Logger
}

// ProcessCall runs the full stage sequence for one call. Re-entry after a
// partial prior run restarts from stage 1; the persistence stage replaces any
// segments from earlier attempts, so redelivery never duplicates rows.
//
// On a stage failure the remaining stages are skipped, the call is committed
// as failed with the stage error text, and the error is returned so the
// worker's retry policy can act on it. Durable checkpoints committed before
// the failure (the transcript) are kept.
func (o *Orchestrator) ProcessCall(ctx context.Context, callID string) error {
	call, err := o.Store.GetCall(ctx, callID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCallNotFound
		}
		return &PersistenceError{Op: "get call", Err: err}
	}

	if err := o.Store.MarkProcessing(ctx, callID); err != nil {
		return &PersistenceError{Op: "mark processing", Err: err}
	}

	log := o.Logger.With().Str("call_id", callID).Logger()
	start := time.Now()

	segments, holdTime, deadAirTime, overtalkCount, err := o.runStages(ctx, call, log)
	if err != nil {
		o.commitFailure(ctx, callID, err, log)
		return err
	}

	if err := o.Store.CompleteCall(ctx, callID, holdTime, deadAirTime, overtalkCount, segments); err != nil {
		perr := &PersistenceError{Op: "complete call", Err: err}
		o.commitFailure(ctx, callID, perr, log)
		return perr
	}

	log.Info().
		Int("segments", len(segments)).
		Int("overtalk_count", overtalkCount).
		Float64("hold_time", holdTime).
		Float64("dead_air_time", deadAirTime).
		Dur("elapsed", time.Since(start)).
		Msg("call processed")
	return nil
}

func (o *Orchestrator) runStages(ctx context.Context, call models.Call, log zerolog.Logger) ([]models.Segment, float64, float64, int, error) {
	// Stage 1: transcribe, then checkpoint transcript and duration.
	var (
		transcript string
		duration   float64
	)
	err := o.withRetry(ctx, func() error {
		var err error
		transcript, duration, err = o.Transcriber.Transcribe(ctx, call.AudioPath, call.Language)
		return err
	})
	if err != nil {
		return nil, 0, 0, 0, stageErr(StageTranscribe, err)
	}
	if err := o.Store.SaveTranscript(ctx, call.ID, transcript, duration); err != nil {
		return nil, 0, 0, 0, &PersistenceError{Op: "save transcript", Err: err}
	}
	log.Debug().Float64("duration", duration).Msg("transcription complete")

	// Stage 2: diarize.
	var diarized []inference.DiarizedSegment
	err = o.withRetry(ctx, func() error {
		var err error
		diarized, err = o.Diarizer.Diarize(ctx, call.AudioPath, DefaultNumSpeakers)
		return err
	})
	if err != nil {
		return nil, 0, 0, 0, stageErr(StageDiarize, err)
	}

	segments := make([]models.Segment, 0, len(diarized))
	for _, d := range diarized {
		segments = append(segments, models.Segment{
			CallID:    call.ID,
			Speaker:   d.Speaker,
			StartTime: d.Start,
			EndTime:   d.End,
			Text:      d.Text,
		})
	}

	// Stage 3: speaker types.
	segments = analytics.AssignSpeakerTypes(segments, call.AgentID)

	// Stage 4: sentiment per segment. Empty text gets neutral/0 without a
	// classifier round trip.
	for i := range segments {
		if segments[i].Text == "" {
			label := "neutral"
			confidence := 0.0
			segments[i].Sentiment = &label
			segments[i].Confidence = &confidence
			continue
		}
		var verdict inference.Sentiment
		err := o.withRetry(ctx, func() error {
			var err error
			verdict, err = o.Sentiment.Classify(ctx, segments[i].Text)
			return err
		})
		if err != nil {
			return nil, 0, 0, 0, stageErr(StageSentiment, err)
		}
		label := strings.ToLower(verdict.Label)
		segments[i].Sentiment = &label
		segments[i].Confidence = &verdict.Confidence
	}

	// Stage 5: silence classification.
	silences, _, err := o.Silence.Detect(call.AudioPath)
	if err != nil {
		return nil, 0, 0, 0, stageErr(StageSilence, err)
	}
	holdTime, deadAirTime := analytics.ClassifySilence(silences, segments)

	// Stage 6: overtalk.
	overtalkCount := analytics.DetectOvertalk(segments)

	return segments, holdTime, deadAirTime, overtalkCount, nil
}

// withRetry retries transport-level adapter failures with bounded exponential
// backoff. Anything else fails the stage immediately.
func (o *Orchestrator) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), adapterMaxRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, inference.ErrUpstream) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// commitFailure writes the terminal failed state. The parent context may
// already be past its soft deadline, so the commit runs detached from it.
func (o *Orchestrator) commitFailure(ctx context.Context, callID string, cause error, log zerolog.Logger) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.Store.FailCall(commitCtx, callID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("failed to commit failed status")
		return
	}
	log.Error().Err(cause).Msg("call processing failed")
}

func stageErr(stage string, err error) *StageError {
	return &StageError{
		Stage:     stage,
		Err:       err,
		Retryable: errors.Is(err, inference.ErrUpstream) || errors.Is(err, context.DeadlineExceeded),
	}
}
