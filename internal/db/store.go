package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicedesk/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const callColumns = `id, agent_id, customer_id, language, created_at, updated_at, duration,
	hold_time, dead_air_time, overtalk_count, transcript, audio_path,
	processing_status, error_message, is_deleted, processing_started_at, attempts`

func (s *Store) CreateCall(ctx context.Context, call models.Call) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO calls (id, agent_id, customer_id, language, created_at, audio_path, processing_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, call.ID, call.AgentID, call.CustomerID, call.Language, call.CreatedAt, call.AudioPath, call.ProcessingStatus)
	return err
}

func (s *Store) GetCall(ctx context.Context, id string) (models.Call, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1 AND is_deleted = FALSE`, id)
	return scanCall(row)
}

func (s *Store) ListCalls(ctx context.Context, filter models.CallFilter) ([]models.Call, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	var args []any
	wheres := []string{"is_deleted = FALSE"}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		wheres = append(wheres, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		wheres = append(wheres, fmt.Sprintf("processing_status = $%d", len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		wheres = append(wheres, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		wheres = append(wheres, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	query += " WHERE " + strings.Join(wheres, " AND ")
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

func (s *Store) GetSegments(ctx context.Context, callID string) ([]models.Segment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, call_id, speaker, start_time, end_time, text, sentiment, confidence, speaker_type
		FROM segments WHERE call_id = $1 ORDER BY start_time ASC
	`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Segment
	for rows.Next() {
		var seg models.Segment
		if err := rows.Scan(&seg.ID, &seg.CallID, &seg.Speaker, &seg.StartTime, &seg.EndTime, &seg.Text, &seg.Sentiment, &seg.Confidence, &seg.SpeakerType); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// MarkProcessing moves a call into the processing state and stamps the
// attempt. Returns pgx.ErrNoRows for unknown or deleted calls.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE calls SET processing_status = $1, processing_started_at = NOW(),
			attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2 AND is_deleted = FALSE
	`, models.StatusProcessing, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SaveTranscript is the durable checkpoint after the transcription stage.
func (s *Store) SaveTranscript(ctx context.Context, id string, transcript string, duration float64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE calls SET transcript = $1, duration = $2, updated_at = NOW() WHERE id = $3
	`, transcript, duration, id)
	return err
}

// CompleteCall commits the terminal completed state together with the call's
// segments in one transaction. Prior segments for the call are removed first
// so a redelivered job replaces rather than appends.
func (s *Store) CompleteCall(ctx context.Context, id string, holdTime, deadAirTime float64, overtalkCount int, segments []models.Segment) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM segments WHERE call_id = $1`, id); err != nil {
			return err
		}

		rows := make([][]any, 0, len(segments))
		for _, seg := range segments {
			segID := seg.ID
			if segID == "" {
				segID = uuid.NewString()
			}
			rows = append(rows, []any{segID, id, seg.Speaker, seg.StartTime, seg.EndTime, seg.Text, seg.Sentiment, seg.Confidence, seg.SpeakerType})
		}
		if len(rows) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"segments"},
				[]string{"id", "call_id", "speaker", "start_time", "end_time", "text", "sentiment", "confidence", "speaker_type"},
				pgx.CopyFromRows(rows))
			if err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, `
			UPDATE calls SET processing_status = $1, hold_time = $2, dead_air_time = $3,
				overtalk_count = $4, error_message = NULL, updated_at = NOW()
			WHERE id = $5
		`, models.StatusCompleted, holdTime, deadAirTime, overtalkCount, id)
		return err
	})
}

// FailCall commits the terminal failed state. Segments from the failed attempt
// are never inserted, so none are removed here.
func (s *Store) FailCall(ctx context.Context, id string, message string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE calls SET processing_status = $1, error_message = $2, updated_at = NOW() WHERE id = $3
	`, models.StatusFailed, message, id)
	return err
}

// ResetForReprocess is the only transition back to pending.
func (s *Store) ResetForReprocess(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE calls SET processing_status = $1, error_message = NULL, attempts = 0,
			processing_started_at = NULL, updated_at = NOW()
		WHERE id = $2 AND is_deleted = FALSE
	`, models.StatusPending, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) SoftDeleteCall(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE calls SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListExpiredCalls returns retention candidates: live calls past the cutoff,
// plus already soft-deleted calls whose audio purge failed on a prior sweep.
func (s *Store) ListExpiredCalls(ctx context.Context, cutoff time.Time) ([]models.Call, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+callColumns+` FROM calls
		WHERE (is_deleted = FALSE AND created_at < $1)
		   OR (is_deleted = TRUE AND audio_path <> '')
		ORDER BY created_at ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

// ClearAudioPath records a successful audio purge.
func (s *Store) ClearAudioPath(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE calls SET audio_path = '', updated_at = NOW() WHERE id = $1`, id)
	return err
}

// FailStuckCalls terminally fails calls left in processing longer than the
// threshold and returns their ids. The visibility timeout handles worker
// crashes; this is the backstop for jobs that never come back.
func (s *Store) FailStuckCalls(ctx context.Context, threshold time.Duration) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		UPDATE calls SET processing_status = $1,
			error_message = 'processing exceeded the stuck-call threshold', updated_at = NOW()
		WHERE processing_status = $2 AND processing_started_at < NOW() - $3::interval
		RETURNING id
	`, models.StatusFailed, models.StatusProcessing, fmt.Sprintf("%d seconds", int(threshold.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (models.Call, error) {
	var call models.Call
	err := row.Scan(
		&call.ID, &call.AgentID, &call.CustomerID, &call.Language, &call.CreatedAt,
		&call.UpdatedAt, &call.Duration, &call.HoldTime, &call.DeadAirTime,
		&call.OvertalkCount, &call.Transcript, &call.AudioPath,
		&call.ProcessingStatus, &call.ErrorMessage, &call.IsDeleted,
		&call.ProcessingStartedAt, &call.Attempts,
	)
	return call, err
}
