package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicedesk/backend/internal/pipeline"
	"github.com/voicedesk/backend/internal/queue"
)

const (
	idlePollDelay   = time.Second
	reclaimInterval = time.Minute
	contentionDelay = 5 * time.Second
)

// Processor runs the pipeline for one call.
type Processor interface {
	ProcessCall(ctx context.Context, callID string) error
}

// JobQueue is the queue surface the worker needs.
type JobQueue interface {
	Dequeue(ctx context.Context, visibility time.Duration) (queue.Message, bool, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, countAttempt bool) (int64, error)
	Defer(ctx context.Context, msg queue.Message, delay time.Duration) error
	Attempts(ctx context.Context, msg queue.Message) (int64, error)
	ReclaimExpired(ctx context.Context) (int64, error)
}

// CallLocker guards a call against concurrent processing.
type CallLocker interface {
	Acquire(ctx context.Context, callID string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, callID, token string) error
}

// Worker pulls jobs from the queue and runs them on a pool of goroutines.
// One job occupies one goroutine for its full duration; stages inside a job
// are sequential, jobs across calls run in parallel.
type Worker struct {
	Queue       JobQueue
	Locker      CallLocker
	Processor   Processor
	Logger      zerolog.Logger
	Count       int
	SoftLimit   time.Duration
	HardLimit   time.Duration
	MaxAttempts int
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	count := w.Count
	if count <= 0 {
		count = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reclaimLoop(ctx)
	}()

	wg.Wait()
}

func (w *Worker) consume(ctx context.Context, id int) {
	log := w.Logger.With().Int("worker", id).Logger()
	for {
		if ctx.Err() != nil {
			return
		}

		msg, ok, err := w.Queue.Dequeue(ctx, w.HardLimit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("dequeue failed")
			sleep(ctx, idlePollDelay)
			continue
		}
		if !ok {
			sleep(ctx, idlePollDelay)
			continue
		}

		w.handle(ctx, msg, log)
	}
}

func (w *Worker) handle(ctx context.Context, msg queue.Message, log zerolog.Logger) {
	log = log.With().Str("call_id", msg.CallID).Logger()

	token, locked, err := w.Locker.Acquire(ctx, msg.CallID, w.HardLimit)
	if err != nil {
		log.Error().Err(err).Msg("lock acquire failed")
		_, _ = w.Queue.Requeue(ctx, msg, false)
		return
	}
	if !locked {
		// Another worker owns this call; leave the job in flight with a
		// short deadline so it redelivers without spinning against Redis
		// and without counting an attempt.
		log.Warn().Msg("call locked by another worker, deferring")
		if err := w.Queue.Defer(ctx, msg, contentionDelay); err != nil {
			log.Error().Err(err).Msg("defer failed")
		}
		return
	}
	defer func() {
		if err := w.Locker.Release(context.WithoutCancel(ctx), msg.CallID, token); err != nil {
			log.Error().Err(err).Msg("lock release failed")
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.SoftLimit)
	err = w.Processor.ProcessCall(jobCtx, msg.CallID)
	cancel()

	ackCtx := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		if err := w.Queue.Ack(ackCtx, msg); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}
	case errors.Is(err, pipeline.ErrCallNotFound):
		log.Warn().Msg("job references unknown call, dropping")
		_ = w.Queue.Ack(ackCtx, msg)
	case pipeline.IsRetryable(err):
		prior, qerr := w.Queue.Attempts(ackCtx, msg)
		if qerr != nil {
			// Leave the job in flight; the reclaimer will redeliver it.
			log.Error().Err(qerr).Msg("attempt lookup failed")
			return
		}
		if int(prior)+1 >= w.MaxAttempts {
			// The call already carries its failed status; stop redelivering.
			log.Error().Err(err).Int64("attempts", prior+1).Msg("giving up after max attempts")
			_ = w.Queue.Ack(ackCtx, msg)
			return
		}
		attempts, qerr := w.Queue.Requeue(ackCtx, msg, true)
		if qerr != nil {
			log.Error().Err(qerr).Msg("requeue failed")
			return
		}
		log.Warn().Err(err).Int64("attempts", attempts).Msg("retryable failure, requeued")
	default:
		// Terminal state was committed by the orchestrator; the job is done.
		log.Error().Err(err).Msg("job failed")
		_ = w.Queue.Ack(ackCtx, msg)
	}
}

func (w *Worker) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Queue.ReclaimExpired(ctx)
			if err != nil {
				w.Logger.Error().Err(err).Msg("reclaim failed")
				continue
			}
			if n > 0 {
				w.Logger.Warn().Int64("count", n).Msg("reclaimed expired in-flight jobs")
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
