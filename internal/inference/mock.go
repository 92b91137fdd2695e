package inference

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
)

// Mock adapters produce deterministic output from the audio path so local
// runs without the inference services still exercise the full pipeline.

type MockTranscriber struct{}

func (MockTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, float64, error) {
	h := hashString(audioPath)
	duration := 60 + float64(h%240)
	text := fmt.Sprintf("Mock transcript for %s", filepath.Base(audioPath))
	return text, duration, nil
}

type MockDiarizer struct{}

func (MockDiarizer) Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]DiarizedSegment, error) {
	h := hashString(audioPath)
	duration := 60 + float64(h%240)

	// Two speakers alternating in 10s turns.
	var segments []DiarizedSegment
	speakers := []string{"SPEAKER_00", "SPEAKER_01"}
	turn := 10.0
	for start := 0.0; start < duration; start += turn {
		end := start + turn
		if end > duration {
			end = duration
		}
		idx := int(start/turn) % len(speakers)
		segments = append(segments, DiarizedSegment{
			Speaker: speakers[idx],
			Start:   start,
			End:     end,
			Text:    fmt.Sprintf("mock utterance %d", int(start/turn)),
		})
	}
	return segments, nil
}

type MockSentimentClassifier struct{}

func (MockSentimentClassifier) Classify(ctx context.Context, text string) (Sentiment, error) {
	labels := []string{"positive", "neutral", "negative"}
	h := hashString(text)
	return Sentiment{
		Label:      labels[h%uint64(len(labels))],
		Confidence: 0.6 + float64(h%40)/100,
	}, nil
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
