package models

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	SpeakerAgent    = "agent"
	SpeakerCustomer = "customer"
	SpeakerUnknown  = "unknown"
)

type Call struct {
	ID                  string     `json:"id"`
	AgentID             string     `json:"agent_id"`
	CustomerID          *string    `json:"customer_id,omitempty"`
	Language            string     `json:"language"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
	Duration            float64    `json:"duration"`
	HoldTime            float64    `json:"hold_time"`
	DeadAirTime         float64    `json:"dead_air_time"`
	OvertalkCount       int        `json:"overtalk_count"`
	Transcript          *string    `json:"transcript,omitempty"`
	AudioPath           string     `json:"audio_path"`
	ProcessingStatus    string     `json:"processing_status"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	IsDeleted           bool       `json:"is_deleted"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	Attempts            int        `json:"attempts"`
}

type Segment struct {
	ID          string   `json:"id"`
	CallID      string   `json:"call_id"`
	Speaker     string   `json:"speaker"`
	StartTime   float64  `json:"start_time"`
	EndTime     float64  `json:"end_time"`
	Text        string   `json:"text"`
	Sentiment   *string  `json:"sentiment,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	SpeakerType string   `json:"speaker_type"`
}

// OvertalkSummary reports the adjacent-pair overtalk count together with the
// approximate share of the call it covers. The percentage is derived from the
// fixed minimum overlap duration, not from measured overlap time.
type OvertalkSummary struct {
	OvertalkCount      int     `json:"overtalk_count"`
	TotalDuration      float64 `json:"total_duration"`
	OvertalkPercentage float64 `json:"overtalk_percentage"`
	MinOverlapDuration float64 `json:"min_overlap_duration"`
}

type SentimentSummary struct {
	Distribution      map[string]int `json:"sentiment_distribution"`
	AverageConfidence float64        `json:"average_confidence"`
	TotalSegments     int            `json:"total_segments"`
}

// CallFilter narrows ListCalls. Zero values mean "no filter".
type CallFilter struct {
	AgentID   string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
