package analytics

import (
	"sort"

	"github.com/voicedesk/backend/internal/models"
)

// MinOverlapDuration is the minimum overlap, in seconds, for an adjacent pair
// of segments to count as overtalk.
const MinOverlapDuration = 0.5

// DetectOvertalk counts overtalk instances over the given segments. Segments
// are sorted by start time and only adjacent pairs in that order are compared;
// a pair counts when it overlaps, the speakers differ, and the overlap lasts
// at least MinOverlapDuration.
func DetectOvertalk(segments []models.Segment) int {
	sorted := make([]models.Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	count := 0
	for i := 0; i+1 < len(sorted); i++ {
		cur, next := sorted[i], sorted[i+1]
		if cur.EndTime <= next.StartTime {
			continue
		}
		if cur.Speaker == next.Speaker {
			continue
		}
		if OverlapDuration(cur, next) >= MinOverlapDuration {
			count++
		}
	}
	return count
}

// OverlapDuration returns the length of the overlap between two segments in
// seconds, or 0 when they do not overlap.
func OverlapDuration(a, b models.Segment) float64 {
	start := a.StartTime
	if b.StartTime > start {
		start = b.StartTime
	}
	end := a.EndTime
	if b.EndTime < end {
		end = b.EndTime
	}
	if end <= start {
		return 0
	}
	return end - start
}

// SummarizeOvertalk derives the overtalk summary for a call. The percentage is
// an approximation based on the fixed minimum overlap duration rather than
// measured overlap time.
func SummarizeOvertalk(segments []models.Segment) models.OvertalkSummary {
	count := DetectOvertalk(segments)

	totalDuration := 0.0
	for _, seg := range segments {
		if seg.EndTime > totalDuration {
			totalDuration = seg.EndTime
		}
	}

	percentage := 0.0
	if totalDuration > 0 {
		percentage = float64(count) * MinOverlapDuration / totalDuration * 100
	}

	return models.OvertalkSummary{
		OvertalkCount:      count,
		TotalDuration:      totalDuration,
		OvertalkPercentage: percentage,
		MinOverlapDuration: MinOverlapDuration,
	}
}
