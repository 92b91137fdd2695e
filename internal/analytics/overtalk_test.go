package analytics

import (
	"math"
	"testing"

	"github.com/voicedesk/backend/internal/models"
)

func seg(speaker string, start, end float64) models.Segment {
	return models.Segment{Speaker: speaker, StartTime: start, EndTime: end}
}

func TestDetectOvertalk_AdjacentOverlapDifferentSpeakers(t *testing.T) {
	segments := []models.Segment{
		seg("A", 0, 5),
		seg("B", 3, 8),
	}
	if got := DetectOvertalk(segments); got != 1 {
		t.Fatalf("expected 1 overtalk, got %d", got)
	}
}

func TestDetectOvertalk_NoOverlap(t *testing.T) {
	segments := []models.Segment{
		seg("A", 0, 5),
		seg("B", 5, 10),
		seg("A", 10, 15),
	}
	if got := DetectOvertalk(segments); got != 0 {
		t.Fatalf("expected 0 overtalk, got %d", got)
	}
}

func TestDetectOvertalk_SameSpeakerOverlapIgnored(t *testing.T) {
	segments := []models.Segment{
		seg("A", 0, 5),
		seg("A", 3, 8),
	}
	if got := DetectOvertalk(segments); got != 0 {
		t.Fatalf("same-speaker overlap should not count, got %d", got)
	}
}

func TestDetectOvertalk_BelowThresholdIgnored(t *testing.T) {
	segments := []models.Segment{
		seg("A", 0, 5.2),
		seg("B", 5.0, 10),
	}
	if got := DetectOvertalk(segments); got != 0 {
		t.Fatalf("overlap below 0.5s should not count, got %d", got)
	}
}

func TestDetectOvertalk_UnsortedInput(t *testing.T) {
	segments := []models.Segment{
		seg("B", 3, 8),
		seg("A", 0, 5),
	}
	if got := DetectOvertalk(segments); got != 1 {
		t.Fatalf("expected 1 overtalk on unsorted input, got %d", got)
	}
}

func TestDetectOvertalk_OnlyAdjacentPairs(t *testing.T) {
	// The third segment overlaps the first by 1.5s but is not adjacent to it
	// in sorted order, so that overlap is never examined.
	segments := []models.Segment{
		seg("A", 0, 10),
		seg("B", 1, 2),
		seg("C", 8.5, 12),
	}
	got := DetectOvertalk(segments)
	if got != 1 {
		t.Fatalf("expected 1 adjacent-pair overtalk, got %d", got)
	}
}

func TestOverlapDuration_Symmetric(t *testing.T) {
	cases := []struct {
		a, b models.Segment
		want float64
	}{
		{seg("A", 0, 5), seg("B", 3, 8), 2},
		{seg("A", 0, 5), seg("B", 5, 10), 0},
		{seg("A", 0, 10), seg("B", 2, 4), 2},
		{seg("A", 1, 2), seg("B", 3, 4), 0},
	}
	for _, tc := range cases {
		ab := OverlapDuration(tc.a, tc.b)
		ba := OverlapDuration(tc.b, tc.a)
		if ab != ba {
			t.Fatalf("overlap not symmetric: %v vs %v", ab, ba)
		}
		if ab != tc.want {
			t.Fatalf("overlap(%v,%v) = %v, want %v", tc.a, tc.b, ab, tc.want)
		}
		maxAllowed := math.Min(tc.a.EndTime-tc.a.StartTime, tc.b.EndTime-tc.b.StartTime)
		if ab < 0 || ab > maxAllowed {
			t.Fatalf("overlap %v outside [0, %v]", ab, maxAllowed)
		}
	}
}

func TestSummarizeOvertalk(t *testing.T) {
	segments := []models.Segment{
		seg("A", 0, 5),
		seg("B", 3, 8),
		seg("A", 8, 20),
	}
	summary := SummarizeOvertalk(segments)
	if summary.OvertalkCount != 1 {
		t.Fatalf("expected count 1, got %d", summary.OvertalkCount)
	}
	if summary.TotalDuration != 20 {
		t.Fatalf("expected total duration 20, got %v", summary.TotalDuration)
	}
	want := 1 * 0.5 / 20 * 100
	if math.Abs(summary.OvertalkPercentage-want) > 1e-9 {
		t.Fatalf("expected percentage %v, got %v", want, summary.OvertalkPercentage)
	}
}

func TestSummarizeOvertalk_Empty(t *testing.T) {
	summary := SummarizeOvertalk(nil)
	if summary.TotalDuration != 0 || summary.OvertalkPercentage != 0 || summary.OvertalkCount != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}
