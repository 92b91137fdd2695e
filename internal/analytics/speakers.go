package analytics

import "github.com/voicedesk/backend/internal/models"

// AssignSpeakerTypes labels each segment's speaker as agent or customer when
// exactly two distinct speaker labels are present: the first label encountered
// becomes the agent, the second the customer. This is a positional heuristic;
// agentID is accepted for the adapter contract but not verified against the
// diarizer's labels. Any other number of distinct speakers labels every
// segment unknown.
func AssignSpeakerTypes(segments []models.Segment, agentID string) []models.Segment {
	var order []string
	seen := map[string]bool{}
	for _, seg := range segments {
		if !seen[seg.Speaker] {
			seen[seg.Speaker] = true
			order = append(order, seg.Speaker)
		}
	}

	types := map[string]string{}
	if len(order) == 2 {
		types[order[0]] = models.SpeakerAgent
		types[order[1]] = models.SpeakerCustomer
	} else {
		for _, sp := range order {
			types[sp] = models.SpeakerUnknown
		}
	}

	out := make([]models.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		out[i].SpeakerType = types[out[i].Speaker]
	}
	return out
}
