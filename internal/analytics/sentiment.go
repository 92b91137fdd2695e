package analytics

import (
	"strings"

	"github.com/voicedesk/backend/internal/models"
)

// SummarizeSentiment counts segments per recognized sentiment label and
// averages confidence over those segments. Segments without a sentiment or
// with an unrecognized label are excluded from both the counts and the
// average.
func SummarizeSentiment(segments []models.Segment) models.SentimentSummary {
	distribution := map[string]int{
		"positive": 0,
		"negative": 0,
		"neutral":  0,
	}

	totalConfidence := 0.0
	count := 0
	for _, seg := range segments {
		if seg.Sentiment == nil {
			continue
		}
		label := strings.ToLower(*seg.Sentiment)
		if _, ok := distribution[label]; !ok {
			continue
		}
		distribution[label]++
		if seg.Confidence != nil {
			totalConfidence += *seg.Confidence
		}
		count++
	}

	avg := 0.0
	if count > 0 {
		avg = totalConfidence / float64(count)
	}

	return models.SentimentSummary{
		Distribution:      distribution,
		AverageConfidence: avg,
		TotalSegments:     count,
	}
}
