package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/voicedesk/backend/internal/analytics"
	"github.com/voicedesk/backend/internal/inference"
	"github.com/voicedesk/backend/internal/models"
)

type fakeStore struct {
	calls        map[string]*models.Call
	segments     map[string][]models.Segment
	completeErr  error
	completeRuns int
}

func newFakeStore(call models.Call) *fakeStore {
	return &fakeStore{
		calls:    map[string]*models.Call{call.ID: &call},
		segments: map[string][]models.Segment{},
	}
}

func (f *fakeStore) GetCall(ctx context.Context, id string) (models.Call, error) {
	call, ok := f.calls[id]
	if !ok {
		return models.Call{}, pgx.ErrNoRows
	}
	return *call, nil
}

func (f *fakeStore) MarkProcessing(ctx context.Context, id string) error {
	f.calls[id].ProcessingStatus = models.StatusProcessing
	return nil
}

func (f *fakeStore) SaveTranscript(ctx context.Context, id string, transcript string, duration float64) error {
	f.calls[id].Transcript = &transcript
	f.calls[id].Duration = duration
	return nil
}

func (f *fakeStore) CompleteCall(ctx context.Context, id string, holdTime, deadAirTime float64, overtalkCount int, segments []models.Segment) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completeRuns++
	// Replace semantics: prior rows for the call are dropped.
	f.segments[id] = append([]models.Segment(nil), segments...)
	call := f.calls[id]
	call.ProcessingStatus = models.StatusCompleted
	call.HoldTime = holdTime
	call.DeadAirTime = deadAirTime
	call.OvertalkCount = overtalkCount
	call.ErrorMessage = nil
	return nil
}

func (f *fakeStore) FailCall(ctx context.Context, id string, message string) error {
	call := f.calls[id]
	call.ProcessingStatus = models.StatusFailed
	call.ErrorMessage = &message
	return nil
}

type fakeTranscriber struct {
	text     string
	duration float64
	errs     []error
	calls    int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, float64, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", 0, err
		}
	}
	return f.text, f.duration, nil
}

type fakeDiarizer struct {
	segments []inference.DiarizedSegment
	err      error
}

func (f *fakeDiarizer) Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]inference.DiarizedSegment, error) {
	return f.segments, f.err
}

type fakeClassifier struct {
	verdict inference.Sentiment
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (inference.Sentiment, error) {
	f.calls++
	if f.err != nil {
		return inference.Sentiment{}, f.err
	}
	return f.verdict, nil
}

type fakeSilence struct {
	intervals []analytics.Interval
	duration  float64
	err       error
}

func (f *fakeSilence) Detect(path string) ([]analytics.Interval, float64, error) {
	return f.intervals, f.duration, f.err
}

func testCall() models.Call {
	return models.Call{
		ID:               "call-1",
		AgentID:          "agent-1",
		Language:         "en",
		AudioPath:        "/tmp/call-1.wav",
		ProcessingStatus: models.StatusPending,
	}
}

func testOrchestrator(store Store) *Orchestrator {
	return &Orchestrator{
		Store:       store,
		Transcriber: &fakeTranscriber{text: "hello world", duration: 30},
		Diarizer: &fakeDiarizer{segments: []inference.DiarizedSegment{
			{Speaker: "SPEAKER_00", Start: 0, End: 10, Text: "hello"},
			{Speaker: "SPEAKER_01", Start: 9, End: 20, Text: "hi there"},
			{Speaker: "SPEAKER_00", Start: 20, End: 30, Text: ""},
		}},
		Sentiment: &fakeClassifier{verdict: inference.Sentiment{Label: "positive", Confidence: 0.9}},
		Silence: &fakeSilence{
			intervals: []analytics.Interval{{StartMs: 21000, EndMs: 23000}},
			duration:  30,
		},
		Logger: zerolog.Nop(),
	}
}

func TestProcessCall_Completed(t *testing.T) {
	store := newFakeStore(testCall())
	o := testOrchestrator(store)

	if err := o.ProcessCall(context.Background(), "call-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := store.calls["call-1"]
	if call.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", call.ProcessingStatus)
	}
	if call.ErrorMessage != nil {
		t.Fatalf("completed call must have nil error_message, got %q", *call.ErrorMessage)
	}
	if call.Transcript == nil || *call.Transcript != "hello world" {
		t.Fatalf("transcript checkpoint missing")
	}
	if call.Duration != 30 {
		t.Fatalf("expected duration 30, got %v", call.Duration)
	}
	if call.OvertalkCount != 1 {
		t.Fatalf("expected 1 overtalk (1s overlap, different speakers), got %d", call.OvertalkCount)
	}
	// Silence 21s-23s falls inside SPEAKER_00's 20-30 segment.
	if call.DeadAirTime != 2 || call.HoldTime != 0 {
		t.Fatalf("expected deadAir=2 hold=0, got deadAir=%v hold=%v", call.DeadAirTime, call.HoldTime)
	}

	segments := store.segments["call-1"]
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[0].SpeakerType != models.SpeakerAgent || segments[1].SpeakerType != models.SpeakerCustomer {
		t.Fatalf("speaker types not assigned: %s/%s", segments[0].SpeakerType, segments[1].SpeakerType)
	}
	if segments[0].Sentiment == nil || *segments[0].Sentiment != "positive" {
		t.Fatalf("sentiment not applied to non-empty segment")
	}
	if segments[2].Sentiment == nil || *segments[2].Sentiment != "neutral" || *segments[2].Confidence != 0 {
		t.Fatalf("empty-text segment should be neutral/0, got %+v", segments[2])
	}
}

func TestProcessCall_EmptyTextSkipsClassifier(t *testing.T) {
	store := newFakeStore(testCall())
	o := testOrchestrator(store)
	classifier := o.Sentiment.(*fakeClassifier)

	if err := o.ProcessCall(context.Background(), "call-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if classifier.calls != 2 {
		t.Fatalf("expected classifier called for 2 non-empty segments, got %d", classifier.calls)
	}
}

func TestProcessCall_NormalizesSentimentLabels(t *testing.T) {
	store := newFakeStore(testCall())
	o := testOrchestrator(store)
	o.Sentiment = &fakeClassifier{verdict: inference.Sentiment{Label: "POSITIVE", Confidence: 0.9}}

	if err := o.ProcessCall(context.Background(), "call-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, seg := range store.segments["call-1"] {
		if seg.Text == "" {
			continue
		}
		if *seg.Sentiment != "positive" {
			t.Fatalf("stored label %q, want lower-cased", *seg.Sentiment)
		}
	}
}

func TestProcessCall_ReentryReplacesSegments(t *testing.T) {
	store := newFakeStore(testCall())
	o := testOrchestrator(store)

	if err := o.ProcessCall(context.Background(), "call-1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := o.ProcessCall(context.Background(), "call-1"); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if store.completeRuns != 2 {
		t.Fatalf("expected 2 complete commits, got %d", store.completeRuns)
	}
	if len(store.segments["call-1"]) != 3 {
		t.Fatalf("redelivery duplicated segments: got %d", len(store.segments["call-1"]))
	}
}

func TestProcessCall_StageFailureIsTerminal(t *testing.T) {
	store := newFakeStore(testCall())
	o := testOrchestrator(store)
	o.Diarizer = &fakeDiarizer{err: errors.New("model exploded")}

	err := o.ProcessCall(context.Background(), "call-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageDiarize {
		t.Fatalf("expected diarization stage error, got %v", err)
	}
	if IsRetryable(err) {
		t.Fatalf("plain stage error should not be retryable")
	}

	call := store.calls["call-1"]
	if call.ProcessingStatus != models.StatusFailed {
		t.Fatalf("expected failed, got %s", call.ProcessingStatus)
	}
	if call.ErrorMessage == nil {
		t.Fatal("failed call must carry an error message")
	}
	if len(store.segments["call-1"]) != 0 {
		t.Fatalf("failed run must not insert segments")
	}
	// The transcript checkpoint from stage 1 survives the failure.
	if call.Transcript == nil {
		t.Fatal("transcript checkpoint should survive a later stage failure")
	}
}

func TestProcessCall_RetriesTransportErrors(t *testing.T) {
	store := newFakeStore(testCall())
	o := testOrchestrator(store)
	flaky := &fakeTranscriber{
		text:     "eventually",
		duration: 30,
		errs: []error{
			fmt.Errorf("%w: connection reset", inference.ErrUpstream),
			fmt.Errorf("%w: connection reset", inference.ErrUpstream),
		},
	}
	o.Transcriber = flaky

	if err := o.ProcessCall(context.Background(), "call-1"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 transcriber attempts, got %d", flaky.calls)
	}
	if store.calls["call-1"].ProcessingStatus != models.StatusCompleted {
		t.Fatalf("expected completed after retry")
	}
}

func TestProcessCall_PersistenceErrorIsRetryable(t *testing.T) {
	store := newFakeStore(testCall())
	store.completeErr = errors.New("connection lost")
	o := testOrchestrator(store)

	err := o.ProcessCall(context.Background(), "call-1")
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatal("persistence errors must be retryable")
	}
	if store.calls["call-1"].ProcessingStatus != models.StatusFailed {
		t.Fatalf("terminal failed state must still be committed")
	}
}

func TestProcessCall_UnknownCall(t *testing.T) {
	store := newFakeStore(testCall())
	o := testOrchestrator(store)

	err := o.ProcessCall(context.Background(), "missing")
	if !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("unknown call must not be retried")
	}
}
