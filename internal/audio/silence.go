package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/voicedesk/backend/internal/analytics"
)

// SilenceDetector finds silent intervals in an audio file by windowed RMS
// energy. Frames quieter than ThresholdDB (dBFS) merge into intervals;
// intervals shorter than MinSilenceMs are discarded.
type SilenceDetector struct {
	ThresholdDB  float64
	MinSilenceMs float64
	FrameLength  int
	HopLength    int
}

func DefaultSilenceDetector() SilenceDetector {
	return SilenceDetector{
		ThresholdDB:  -40,
		MinSilenceMs: 1000,
		FrameLength:  1024,
		HopLength:    512,
	}
}

// Detect returns the silent intervals and the total audio duration in
// seconds. Non-WAV inputs are transcoded to mono 16-bit PCM via ffmpeg first.
func (d SilenceDetector) Detect(path string) ([]analytics.Interval, float64, error) {
	wavPath := path
	if strings.ToLower(filepath.Ext(path)) != ".wav" {
		tmp, err := transcodeToWAV(path)
		if err != nil {
			return nil, 0, err
		}
		defer os.Remove(tmp)
		wavPath = tmp
	}

	samples, sampleRate, err := DecodeWAV(wavPath)
	if err != nil {
		return nil, 0, err
	}
	if len(samples) == 0 {
		return nil, 0, errors.New("audio contains no samples")
	}

	totalDuration := float64(len(samples)) / float64(sampleRate)
	intervals := d.silentIntervals(samples, sampleRate)
	return intervals, totalDuration, nil
}

func (d SilenceDetector) silentIntervals(samples []float64, sampleRate int) []analytics.Interval {
	frameLen := d.FrameLength
	hop := d.HopLength
	if frameLen <= 0 {
		frameLen = 1024
	}
	if hop <= 0 {
		hop = 512
	}

	var intervals []analytics.Interval
	inSilence := false
	silenceStart := 0

	flush := func(endSample int) {
		startMs := float64(silenceStart) * 1000 / float64(sampleRate)
		endMs := float64(endSample) * 1000 / float64(sampleRate)
		if endMs-startMs >= d.MinSilenceMs {
			intervals = append(intervals, analytics.Interval{StartMs: startMs, EndMs: endMs})
		}
	}

	for start := 0; start < len(samples); start += hop {
		end := start + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		if frameDB(samples[start:end]) < d.ThresholdDB {
			if !inSilence {
				inSilence = true
				silenceStart = start
			}
			continue
		}
		if inSilence {
			inSilence = false
			flush(start)
		}
	}
	if inSilence {
		flush(len(samples))
	}
	return intervals
}

func frameDB(frame []float64) float64 {
	if len(frame) == 0 {
		return math.Inf(-1)
	}
	sum := 0.0
	for _, s := range frame {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

func transcodeToWAV(path string) (string, error) {
	out, err := os.CreateTemp("", "voicedesk-*.wav")
	if err != nil {
		return "", err
	}
	out.Close()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-i", path,
		"-ac", "1",
		"-acodec", "pcm_s16le",
		out.Name(),
	)
	if err := cmd.Run(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("ffmpeg transcode %s: %w", filepath.Base(path), err)
	}
	return out.Name(), nil
}
