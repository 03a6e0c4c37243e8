// Package reconcile maps the loosely typed model output back onto the fetched comments.
// Every comment gets exactly one category, in input order, whatever the model returned.
package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/commentscope/pkg/domain"
)

const (
	// NoSummary is used when the model gave no summary
	NoSummary = "No summary available"
	// NeutralScore is used when the model gave no sentiment score
	NeutralScore = 50.0
)

// Aggregates holds the video-level parts of the model output with fallbacks applied
type Aggregates struct {
	Summary        string
	SentimentScore float64
	VideoIdeas     []string
}

// Classify returns one classified comment per input comment, in input order.
// The first classification entry whose index matches a comment wins. Comments with no
// usable entry get domain.DefaultCategory.
func Classify(comments []domain.Comment, out *domain.ModelOutput) []domain.ClassifiedComment {
	categories := map[int]domain.Category{}
	if out != nil {
		for _, entry := range out.Classifications {
			idx, ok := toInt(entry.I)
			if !ok || idx < 0 || idx >= len(comments) {
				continue
			}
			if _, seen := categories[idx]; seen {
				continue
			}
			categories[idx] = toCategory(entry.C)
		}
	}

	res := make([]domain.ClassifiedComment, len(comments))
	for i, c := range comments {
		cat, ok := categories[i]
		if !ok {
			cat = domain.DefaultCategory
		}
		res[i] = domain.ClassifiedComment{Comment: c, Category: cat}
	}
	lgr.Printf("[DEBUG] classified %d of %d comments from model output, %s", len(categories), len(comments), breakdown(res))
	return res
}

// breakdown formats category counts as "positive:3 neutral:1"
func breakdown(classified []domain.ClassifiedComment) string {
	counts := map[domain.Category]int{}
	for _, c := range classified {
		counts[c.Category]++
	}
	parts := []string{}
	for cat := domain.CategoryConstructive; cat <= domain.CategoryNegative; cat++ {
		if counts[cat] > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", cat, counts[cat]))
		}
	}
	return strings.Join(parts, " ")
}

// Highlights returns the highlighted comments in model order. Entries pointing outside
// of classified are dropped. Each highlight carries the model's reason and the comment's
// reconciled category.
func Highlights(classified []domain.ClassifiedComment, out *domain.ModelOutput) []domain.ClassifiedComment {
	res := []domain.ClassifiedComment{}
	if out == nil {
		return res
	}
	for _, h := range out.HighlightedComments {
		idx, ok := toInt(h.Index)
		if !ok || idx < 0 || idx >= len(classified) {
			lgr.Printf("[DEBUG] dropped highlight with index %s", string(h.Index))
			continue
		}
		hc := classified[idx]
		hc.HighlightReason, _ = toString(h.Reason)
		res = append(res, hc)
	}
	return res
}

// Aggregate extracts summary, sentiment and ideas with fallbacks for missing values
func Aggregate(out *domain.ModelOutput) Aggregates {
	res := Aggregates{Summary: NoSummary, SentimentScore: NeutralScore, VideoIdeas: []string{}}
	if out == nil {
		return res
	}
	if summary, ok := toString(out.Summary); ok && strings.TrimSpace(summary) != "" {
		res.Summary = summary
	}
	if score, ok := toFloat(out.SentimentScore); ok {
		res.SentimentScore = math.Max(0, math.Min(100, score))
	}
	for _, idea := range toStrings(out.VideoIdeas) {
		if strings.TrimSpace(idea) == "" {
			continue
		}
		res.VideoIdeas = append(res.VideoIdeas, idea)
	}
	return res
}

// toString reads a json string, any other value is rejected
func toString(raw json.RawMessage) (string, bool) {
	var s string
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

// toStrings reads a list of strings. Non-string elements are skipped and a single
// string is taken as a one-element list.
func toStrings(raw json.RawMessage) []string {
	if s, ok := toString(raw); ok {
		return []string{s}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	res := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := toString(item); ok {
			res = append(res, s)
		}
	}
	return res
}

// toCategory coerces a raw category value, anything outside of the scheme is the default
func toCategory(raw json.RawMessage) domain.Category {
	v, ok := toInt(raw)
	if !ok {
		return domain.DefaultCategory
	}
	if cat := domain.Category(v); cat.Valid() {
		return cat
	}
	return domain.DefaultCategory
}

// toInt accepts 3, 3.0, "3", " 3 " and "3.0". Fractional values are rejected.
func toInt(raw json.RawMessage) (int, bool) {
	f, ok := toFloat(raw)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// toFloat reads a json number or a string holding a number
func toFloat(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	return num, true
}
