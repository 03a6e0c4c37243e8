package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/commentscope/pkg/analyzer"
	"github.com/umputun/commentscope/pkg/domain"
	"github.com/umputun/commentscope/server/mocks"
)

func postAnalyze(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+validToken)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestServer_analyzeHandler(t *testing.T) {
	analysis := &domain.Analysis{
		VideoID:        "vid1",
		TotalComments:  1,
		Summary:        "viewers are happy",
		SentimentScore: 90,
		VideoIdeas:     []string{"part 2"},
		Highlights:     []domain.ClassifiedComment{},
		Results:        []domain.ClassifiedComment{{Comment: domain.Comment{ID: "c1", Text: "great"}, Category: domain.CategoryPositive}},
		UserQuota:      domain.QuotaSnapshot{SubscriptionStatus: "free", UsageCount: 1, QuotaLimit: 5, Remaining: 4},
	}
	an := &mocks.AnalyzerMock{RunFunc: func(ctx context.Context, req analyzer.Request) (*domain.Analysis, error) {
		return analysis, nil
	}}
	srv := testServer(an, &mocks.QuotaReporterMock{})

	w := postAnalyze(t, srv, `{"videoId":"vid1","accessToken":"yt-token","count":50,"language":"English"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "vid1", resp["videoId"])
	assert.InDelta(t, 1, resp["totalComments"], 0.001)
	assert.Equal(t, "viewers are happy", resp["summary"])
	assert.InDelta(t, 90, resp["sentimentScore"], 0.001)
	assert.NotContains(t, resp, "message")
	results := resp["results"].([]interface{})
	require.Len(t, results, 1)
	assert.InDelta(t, 3, results[0].(map[string]interface{})["category"], 0.001)
	quota := resp["userQuota"].(map[string]interface{})
	assert.InDelta(t, 4, quota["remaining"], 0.001)

	require.Len(t, an.RunCalls(), 1)
	call := an.RunCalls()[0].Req
	assert.Equal(t, testCaller, call.Caller)
	assert.Equal(t, "vid1", call.VideoID)
	assert.Equal(t, "yt-token", call.AccessToken)
	assert.Equal(t, 50, call.MaxComments)
	assert.Equal(t, "English", call.Language)
	assert.Equal(t, w.Header().Get("X-Request-ID"), call.ID)
}

func TestServer_analyzeHandlerDefaults(t *testing.T) {
	an := &mocks.AnalyzerMock{RunFunc: func(ctx context.Context, req analyzer.Request) (*domain.Analysis, error) {
		return &domain.Analysis{VideoID: req.VideoID}, nil
	}}
	srv := testServer(an, &mocks.QuotaReporterMock{})

	tests := []struct {
		body      string
		wantCount int
		wantLang  string
	}{
		{body: `{"videoId":"v","accessToken":"t"}`, wantCount: 100, wantLang: "Traditional Chinese"},
		{body: `{"videoId":"v","accessToken":"t","count":0}`, wantCount: 100, wantLang: "Traditional Chinese"},
		{body: `{"videoId":"v","accessToken":"t","count":-5}`, wantCount: 100, wantLang: "Traditional Chinese"},
		{body: `{"videoId":"v","accessToken":"t","count":10000,"language":"German"}`, wantCount: 500, wantLang: "German"},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
			w := postAnalyze(t, srv, tt.body)
			require.Equal(t, http.StatusOK, w.Code)
			calls := an.RunCalls()
			last := calls[len(calls)-1].Req
			assert.Equal(t, tt.wantCount, last.MaxComments)
			assert.Equal(t, tt.wantLang, last.Language)
		})
	}
}

func TestServer_analyzeHandlerValidation(t *testing.T) {
	an := &mocks.AnalyzerMock{}
	srv := testServer(an, &mocks.QuotaReporterMock{})

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "missing video", body: `{"accessToken":"t"}`, wantErr: "videoId is required"},
		{name: "missing token", body: `{"videoId":"v"}`, wantErr: "accessToken is required"},
		{name: "broken json", body: `{"videoId":`, wantErr: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postAnalyze(t, srv, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp["error"])
		})
	}
	assert.Empty(t, an.RunCalls(), "nothing charged for invalid requests")
}

func TestServer_analyzeHandlerErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantError   string
		wantDetails string
	}{
		{name: "quota", err: &analyzer.PhaseError{Phase: analyzer.PhaseCharging, Err: domain.ErrQuotaExceeded},
			wantCode: http.StatusForbidden, wantError: "Quota Exceeded"},
		{name: "persistence", err: &analyzer.PhaseError{Phase: analyzer.PhaseCharging,
			Err: fmt.Errorf("%w: charge u1: %w", domain.ErrPersistence, errors.New("disk full"))},
			wantCode: http.StatusInternalServerError, wantError: "Database Error", wantDetails: "quota storage failed: charge u1: disk full"},
		{name: "fetch", err: &analyzer.PhaseError{Phase: analyzer.PhaseFetching,
			Err: fmt.Errorf("%w: %s", domain.ErrUpstreamFetch, "The video has disabled comments.")},
			wantCode: http.StatusUnauthorized, wantError: "YouTube API Error",
			wantDetails: "comment fetch failed: The video has disabled comments."},
		{name: "generation", err: &analyzer.PhaseError{Phase: analyzer.PhaseClassifying,
			Err: fmt.Errorf("%w: openai: %w", domain.ErrUpstreamGeneration, errors.New("timeout"))},
			wantCode: http.StatusInternalServerError, wantError: "Analysis failed",
			wantDetails: "generation service failed: openai: timeout"},
		{name: "malformed", err: &analyzer.PhaseError{Phase: analyzer.PhaseReconciling,
			Err: fmt.Errorf("%w: %w", domain.ErrMalformedOutput, errors.New("unexpected end of JSON input"))},
			wantCode: http.StatusInternalServerError, wantError: "Analysis failed",
			wantDetails: "malformed model output: unexpected end of JSON input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &mocks.AnalyzerMock{RunFunc: func(ctx context.Context, req analyzer.Request) (*domain.Analysis, error) {
				return nil, tt.err
			}}
			srv := testServer(an, &mocks.QuotaReporterMock{})
			w := postAnalyze(t, srv, `{"videoId":"v","accessToken":"t"}`)

			assert.Equal(t, tt.wantCode, w.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp["error"])
			if tt.wantDetails != "" {
				assert.Equal(t, tt.wantDetails, resp["details"])
			}
			if tt.wantCode == http.StatusForbidden {
				assert.Equal(t, true, resp["isQuotaError"])
				assert.NotEmpty(t, resp["message"])
			}
		})
	}
}

func TestServer_quotaStatusHandler(t *testing.T) {
	quota := &mocks.QuotaReporterMock{StatusFunc: func(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error) {
		return domain.QuotaSnapshot{SubscriptionStatus: "free", UsageCount: 5, QuotaLimit: 5, Remaining: 0}, nil
	}}
	srv := testServer(&mocks.AnalyzerMock{}, quota)

	req := httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+validToken)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscriptionStatus":"free","usageCount":5,"quotaLimit":5,"remaining":0}`, w.Body.String())
	require.Len(t, quota.StatusCalls(), 1)
	assert.Equal(t, testCaller, quota.StatusCalls()[0].Caller)
}

func TestServer_quotaStatusHandlerError(t *testing.T) {
	quota := &mocks.QuotaReporterMock{StatusFunc: func(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error) {
		return domain.QuotaSnapshot{}, fmt.Errorf("%w: status uid-1: connection refused", domain.ErrPersistence)
	}}
	srv := testServer(&mocks.AnalyzerMock{}, quota)

	req := httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+validToken)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Database Error", resp["error"])
	assert.Contains(t, resp["details"], "connection refused")
}

func TestServer_count(t *testing.T) {
	srv := &Server{limits: Limits{DefaultCount: 100, MaxComments: 300}}
	assert.Equal(t, 100, srv.count(0))
	assert.Equal(t, 1, srv.count(1))
	assert.Equal(t, 300, srv.count(300))
	assert.Equal(t, 300, srv.count(301))
}
