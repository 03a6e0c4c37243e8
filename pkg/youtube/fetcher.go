// Package youtube pulls comments of a video from the YouTube Data API on behalf of the caller
package youtube

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/umputun/commentscope/pkg/config"
	"github.com/umputun/commentscope/pkg/domain"
)

// maxPageSize is the largest page commentThreads.list returns
const maxPageSize = 100

// Fetcher reads comment threads with the caller's OAuth access token
type Fetcher struct {
	endpoint string
	timeout  time.Duration
	policy   *bluemonday.Policy
}

// NewFetcher makes a fetcher for the given settings
func NewFetcher(cfg config.YouTubeConfig) *Fetcher {
	return &Fetcher{endpoint: cfg.Endpoint, timeout: cfg.Timeout, policy: bluemonday.StrictPolicy()}
}

// Fetch returns up to req.MaxCount comments of the video. Each top-level comment is followed by
// its inline replies. Paging stops when the count is reached or there are no more pages.
// Errors are reported as domain.ErrUpstreamFetch.
func (f *Fetcher) Fetch(ctx context.Context, req domain.FetchRequest) ([]domain.Comment, error) {
	if req.MaxCount <= 0 {
		return []domain.Comment{}, nil
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: req.AccessToken}))}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: make youtube service: %w", domain.ErrUpstreamFetch, err)
	}

	res := make([]domain.Comment, 0, req.MaxCount)
	seen := map[string]bool{}
	add := func(c domain.Comment) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		res = append(res, c)
	}

	pageToken := ""
	for pages := 0; len(res) < req.MaxCount; pages++ {
		resp, err := f.page(ctx, svc, req, pageToken, min(maxPageSize, req.MaxCount-len(res)))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrUpstreamFetch, apiMessage(err))
		}

		for _, thread := range resp.Items {
			if thread.Snippet == nil || thread.Snippet.TopLevelComment == nil {
				continue
			}
			top := f.convert(thread.Snippet.TopLevelComment)
			top.ReplyCount = thread.Snippet.TotalReplyCount
			add(top)
			if thread.Replies == nil {
				continue
			}
			for _, r := range thread.Replies.Comments {
				reply := f.convert(r)
				reply.IsReply = true
				reply.ParentID = top.ID
				add(reply)
			}
		}

		lgr.Printf("[DEBUG] fetched page %d of %s, %d threads, %d comments so far", pages+1, req.VideoID,
			len(resp.Items), len(res))
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(res) > req.MaxCount {
		res = res[:req.MaxCount]
	}
	return res, nil
}

func (f *Fetcher) page(ctx context.Context, svc *yt.Service, req domain.FetchRequest, token string,
	size int) (*yt.CommentThreadListResponse, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	call := svc.CommentThreads.List([]string{"snippet", "replies"}).VideoId(req.VideoID).MaxResults(int64(size))
	if token != "" {
		call = call.PageToken(token)
	}
	return call.Context(ctx).Do()
}

// convert maps api comment to domain comment, text is kept as the author wrote it
func (f *Fetcher) convert(c *yt.Comment) domain.Comment {
	res := domain.Comment{ID: c.Id}
	if c.Snippet == nil {
		return res
	}
	s := c.Snippet
	res.Author = s.AuthorDisplayName
	res.AuthorImage = s.AuthorProfileImageUrl
	res.LikeCount = s.LikeCount
	res.Text = s.TextOriginal
	if res.Text == "" {
		res.Text = f.plainText(s.TextDisplay)
	}
	if ts, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
		res.PublishedAt = ts
	}
	return res
}

// plainText strips markup from textDisplay
func (f *Fetcher) plainText(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	return strings.TrimSpace(html.UnescapeString(f.policy.Sanitize(s)))
}

// apiMessage extracts the human readable message of a google api error
func apiMessage(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	return err.Error()
}
