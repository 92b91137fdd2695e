package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ErrUpstream marks a transport-level failure from an inference service; the
// pipeline treats these as retryable.
var ErrUpstream = errors.New("inference service error")

type HTTPTranscriber struct {
	BaseURL string
	Client  *http.Client
}

type transcribeRequest struct {
	AudioPath string `json:"audio_path"`
	Language  string `json:"language,omitempty"`
}

type transcribeResponse struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (t HTTPTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, float64, error) {
	var resp transcribeResponse
	err := postJSON(ctx, t.Client, t.BaseURL+"/transcribe", transcribeRequest{AudioPath: audioPath, Language: language}, &resp)
	if err != nil {
		return "", 0, err
	}
	return resp.Text, resp.DurationSeconds, nil
}

type HTTPDiarizer struct {
	BaseURL string
	Client  *http.Client
}

type diarizeRequest struct {
	AudioPath   string `json:"audio_path"`
	NumSpeakers int    `json:"num_speakers"`
}

type diarizeResponse struct {
	Segments []DiarizedSegment `json:"segments"`
}

func (d HTTPDiarizer) Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]DiarizedSegment, error) {
	var resp diarizeResponse
	err := postJSON(ctx, d.Client, d.BaseURL+"/diarize", diarizeRequest{AudioPath: audioPath, NumSpeakers: numSpeakers}, &resp)
	if err != nil {
		return nil, err
	}
	// Callers expect segments sorted by start time; ties keep emission order.
	sort.SliceStable(resp.Segments, func(i, j int) bool {
		return resp.Segments[i].Start < resp.Segments[j].Start
	})
	return resp.Segments, nil
}

type HTTPSentimentClassifier struct {
	BaseURL string
	Client  *http.Client
}

type classifyRequest struct {
	Text string `json:"text"`
}

func (s HTTPSentimentClassifier) Classify(ctx context.Context, text string) (Sentiment, error) {
	var resp Sentiment
	err := postJSON(ctx, s.Client, s.BaseURL+"/classify", classifyRequest{Text: text}, &resp)
	if err != nil {
		return Sentiment{}, err
	}
	return resp, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, out any) error {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d", ErrUpstream, url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
