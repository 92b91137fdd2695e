package analytics

import "github.com/voicedesk/backend/internal/models"

// Interval is a silent span of audio in milliseconds.
type Interval struct {
	StartMs float64
	EndMs   float64
}

// ClassifySilence splits detected silent intervals into hold time and dead air
// time, both in seconds. A silent interval fully contained within one
// segment's span is dead air; every other silent interval is hold time.
func ClassifySilence(silences []Interval, segments []models.Segment) (holdTime, deadAirTime float64) {
	type span struct{ start, end float64 }
	ranges := make([]span, 0, len(segments))
	for _, seg := range segments {
		ranges = append(ranges, span{seg.StartTime * 1000, seg.EndTime * 1000})
	}

	for _, sil := range silences {
		durationSec := (sil.EndMs - sil.StartMs) / 1000

		withinSegment := false
		for _, r := range ranges {
			if sil.StartMs >= r.start && sil.EndMs <= r.end {
				withinSegment = true
				break
			}
		}

		if withinSegment {
			deadAirTime += durationSec
		} else {
			holdTime += durationSec
		}
	}
	return holdTime, deadAirTime
}
