package domain

import "time"

// Comment is a single YouTube comment or reply as fetched from the API
type Comment struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Author      string    `json:"author"`
	AuthorImage string    `json:"authorImage,omitempty"`
	LikeCount   int64     `json:"likeCount"`
	ReplyCount  int64     `json:"replyCount"`
	PublishedAt time.Time `json:"publishedAt"`
	IsReply     bool      `json:"isReply"`
	ParentID    string    `json:"parentId,omitempty"`
}

// Category is the fixed classification scheme for comments
type Category int

const (
	CategoryConstructive Category = 1 // suggestions, ideas, topic requests
	CategoryQuestion     Category = 2 // genuine information-seeking questions
	CategoryPositive     Category = 3 // praise, support
	CategoryNeutral      Category = 4 // personal stories, jokes, anything else
	CategoryNegative     Category = 5 // criticism, complaints, hate
)

// DefaultCategory is assigned when the model gave no usable classification
const DefaultCategory = CategoryNeutral

// Valid reports whether c belongs to the classification scheme
func (c Category) Valid() bool {
	return c >= CategoryConstructive && c <= CategoryNegative
}

func (c Category) String() string {
	switch c {
	case CategoryConstructive:
		return "constructive"
	case CategoryQuestion:
		return "question"
	case CategoryPositive:
		return "positive"
	case CategoryNeutral:
		return "neutral"
	case CategoryNegative:
		return "negative"
	default:
		return "unknown"
	}
}

// ClassifiedComment is a comment with the category assigned by the model
type ClassifiedComment struct {
	Comment
	Category        Category `json:"category"`
	HighlightReason string   `json:"highlightReason,omitempty"`
}

// FetchRequest describes which comments to pull for analysis
type FetchRequest struct {
	VideoID     string
	AccessToken string
	MaxCount    int
}
