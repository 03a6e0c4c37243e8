package domain

import "encoding/json"

// ModelOutput is the structured response of the generation service.
// Any field may be missing or carry an unexpected type. Scalar and list values are
// kept raw and coerced by the reconciler, so one odd field never fails the batch.
type ModelOutput struct {
	Summary             json.RawMessage       `json:"summary"`
	SentimentScore      json.RawMessage       `json:"sentiment_score"`
	VideoIdeas          json.RawMessage       `json:"video_ideas"`
	HighlightedComments []HighlightEntry      `json:"highlighted_comments"`
	Classifications     []ClassificationEntry `json:"classifications"`
}

// HighlightEntry marks a comment the model considers valuable
type HighlightEntry struct {
	Index  json.RawMessage `json:"index"`
	Reason json.RawMessage `json:"reason"`
}

// ClassificationEntry is the model's category for the comment at index I
type ClassificationEntry struct {
	I json.RawMessage `json:"i"`
	C json.RawMessage `json:"c"`
}

// Analysis is the result returned to the caller
type Analysis struct {
	VideoID        string              `json:"videoId"`
	TotalComments  int                 `json:"totalComments"`
	Message        string              `json:"message,omitempty"`
	Summary        string              `json:"summary"`
	SentimentScore float64             `json:"sentimentScore"`
	VideoIdeas     []string            `json:"videoIdeas"`
	Highlights     []ClassifiedComment `json:"highlights"`
	Results        []ClassifiedComment `json:"results"`
	UserQuota      QuotaSnapshot       `json:"userQuota"`
}
