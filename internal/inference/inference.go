package inference

import "context"

// DiarizedSegment is one speaker turn as emitted by the diarizer.
type DiarizedSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Sentiment is the classifier's verdict for one piece of text.
type Sentiment struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (text string, durationSeconds float64, err error)
}

type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]DiarizedSegment, error)
}

type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (Sentiment, error)
}
