package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/commentscope/pkg/analyzer/mocks"
	"github.com/umputun/commentscope/pkg/domain"
)

var testCaller = domain.Caller{ID: "uid-1", Email: "alice@example.com"}

func chargedLedger() *mocks.LedgerMock {
	return &mocks.LedgerMock{ChargeFunc: func(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error) {
		return domain.QuotaSnapshot{SubscriptionStatus: "free", UsageCount: 3, QuotaLimit: 5, Remaining: 2}, nil
	}}
}

func fetcherOf(comments []domain.Comment) *mocks.FetcherMock {
	return &mocks.FetcherMock{FetchFunc: func(ctx context.Context, req domain.FetchRequest) ([]domain.Comment, error) {
		return comments, nil
	}}
}

func generatorOf(raw string, err error) *mocks.GeneratorMock {
	return &mocks.GeneratorMock{GenerateFunc: func(ctx context.Context, comments []domain.Comment, language string) (string, error) {
		return raw, err
	}}
}

func testRequest() Request {
	return Request{ID: "req-1", Caller: testCaller, VideoID: "vid1", AccessToken: "yt-token", MaxComments: 50,
		Language: "English"}
}

func TestAnalyzer_Run(t *testing.T) {
	comments := []domain.Comment{{ID: "c0", Text: "do a video on channels"}, {ID: "c1", Text: "how?"},
		{ID: "c2", Text: "love it"}}
	ledger := chargedLedger()
	fetcher := fetcherOf(comments)
	gen := generatorOf("```json\n"+`{"summary":"fans want more","sentiment_score":"81",
		"video_ideas":["channels deep dive"],
		"highlighted_comments":[{"index":"0","reason":"clear request"},{"index":7,"reason":"ghost"}],
		"classifications":[{"i":0,"c":1},{"i":"1","c":2},],}`+"\n```", nil)

	a := New(Params{Ledger: ledger, Fetcher: fetcher, Generator: gen, MaxConcurrent: 2})
	res, err := a.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "vid1", res.VideoID)
	assert.Equal(t, 3, res.TotalComments)
	assert.Empty(t, res.Message)
	assert.Equal(t, "fans want more", res.Summary)
	assert.InDelta(t, 81.0, res.SentimentScore, 0.001)
	assert.Equal(t, []string{"channels deep dive"}, res.VideoIdeas)

	require.Len(t, res.Results, 3)
	assert.Equal(t, domain.CategoryConstructive, res.Results[0].Category)
	assert.Equal(t, domain.CategoryQuestion, res.Results[1].Category)
	assert.Equal(t, domain.CategoryNeutral, res.Results[2].Category)

	require.Len(t, res.Highlights, 1)
	assert.Equal(t, "c0", res.Highlights[0].ID)
	assert.Equal(t, "clear request", res.Highlights[0].HighlightReason)
	assert.Equal(t, 2, res.UserQuota.Remaining)

	require.Len(t, ledger.ChargeCalls(), 1)
	assert.Equal(t, testCaller, ledger.ChargeCalls()[0].Caller)
	require.Len(t, fetcher.FetchCalls(), 1)
	assert.Equal(t, domain.FetchRequest{VideoID: "vid1", AccessToken: "yt-token", MaxCount: 50}, fetcher.FetchCalls()[0].Req)
	require.Len(t, gen.GenerateCalls(), 1)
	assert.Equal(t, comments, gen.GenerateCalls()[0].Comments)
	assert.Equal(t, "English", gen.GenerateCalls()[0].Language)
}

func TestAnalyzer_RunQuotaDenied(t *testing.T) {
	ledger := &mocks.LedgerMock{ChargeFunc: func(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error) {
		return domain.QuotaSnapshot{}, domain.ErrQuotaExceeded
	}}
	fetcher := fetcherOf(nil)
	gen := generatorOf("", nil)

	a := New(Params{Ledger: ledger, Fetcher: fetcher, Generator: gen})
	_, err := a.Run(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseCharging, perr.Phase)
	assert.Empty(t, fetcher.FetchCalls(), "no fetch after denial")
	assert.Empty(t, gen.GenerateCalls())
}

func TestAnalyzer_RunPersistenceError(t *testing.T) {
	ledger := &mocks.LedgerMock{ChargeFunc: func(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error) {
		return domain.QuotaSnapshot{}, errors.Join(domain.ErrPersistence, errors.New("db down"))
	}}
	fetcher := fetcherOf(nil)
	a := New(Params{Ledger: ledger, Fetcher: fetcher, Generator: generatorOf("", nil)})
	_, err := a.Run(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Empty(t, fetcher.FetchCalls())
}

func TestAnalyzer_RunEmptyFetch(t *testing.T) {
	gen := generatorOf("", nil)
	a := New(Params{Ledger: chargedLedger(), Fetcher: fetcherOf([]domain.Comment{}), Generator: gen})

	res, err := a.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, NoComments, res.Message)
	assert.Equal(t, NoComments, res.Summary)
	assert.Equal(t, 0, res.TotalComments)
	assert.NotNil(t, res.Results)
	assert.NotNil(t, res.Highlights)
	assert.NotNil(t, res.VideoIdeas)
	assert.Equal(t, domain.QuotaSnapshot{SubscriptionStatus: "free", UsageCount: 3, QuotaLimit: 5, Remaining: 2}, res.UserQuota)
	assert.Empty(t, gen.GenerateCalls(), "generator not called for empty fetch")
}

func TestAnalyzer_RunFetchError(t *testing.T) {
	ledger := chargedLedger()
	fetcher := &mocks.FetcherMock{FetchFunc: func(ctx context.Context, req domain.FetchRequest) ([]domain.Comment, error) {
		return nil, errors.Join(domain.ErrUpstreamFetch, errors.New("video not found"))
	}}
	gen := generatorOf("", nil)

	a := New(Params{Ledger: ledger, Fetcher: fetcher, Generator: gen})
	_, err := a.Run(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrUpstreamFetch)
	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseFetching, perr.Phase)
	assert.Len(t, ledger.ChargeCalls(), 1, "charge happened before fetch")
	assert.Empty(t, gen.GenerateCalls())
}

func TestAnalyzer_RunGenerationError(t *testing.T) {
	ledger := chargedLedger()
	gen := generatorOf("", errors.Join(domain.ErrUpstreamGeneration, errors.New("429 rate limited")))
	a := New(Params{Ledger: ledger, Fetcher: fetcherOf([]domain.Comment{{ID: "c0", Text: "hi"}}), Generator: gen})

	_, err := a.Run(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrUpstreamGeneration)
	assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseClassifying, perr.Phase)
	assert.Len(t, ledger.ChargeCalls(), 1)
	assert.Len(t, gen.GenerateCalls(), 1, "no retry")
}

func TestAnalyzer_RunMalformedOutput(t *testing.T) {
	gen := generatorOf("I'm sorry, I can't help with that.", nil)
	a := New(Params{Ledger: chargedLedger(), Fetcher: fetcherOf([]domain.Comment{{ID: "c0", Text: "hi"}}), Generator: gen})

	_, err := a.Run(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrMalformedOutput)
	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseReconciling, perr.Phase)
	assert.Contains(t, err.Error(), "reconciling failed")
}

func TestAnalyzer_RunEmptyClassifications(t *testing.T) {
	comments := []domain.Comment{{ID: "c0"}, {ID: "c1"}}
	a := New(Params{Ledger: chargedLedger(), Fetcher: fetcherOf(comments), Generator: generatorOf(`{"classifications":[]}`, nil)})

	res, err := a.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.Equal(t, domain.DefaultCategory, r.Category)
	}
	assert.Equal(t, "No summary available", res.Summary)
	assert.InDelta(t, 50.0, res.SentimentScore, 0.001)
	assert.Empty(t, res.VideoIdeas)
	assert.Empty(t, res.Highlights)
}

func TestAnalyzer_RunLimitsConcurrentGeneration(t *testing.T) {
	var active, peak int32
	gen := &mocks.GeneratorMock{GenerateFunc: func(ctx context.Context, comments []domain.Comment, language string) (string, error) {
		cur := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return `{"summary":"ok"}`, nil
	}}
	a := New(Params{Ledger: chargedLedger(), Fetcher: fetcherOf([]domain.Comment{{ID: "c0"}}), Generator: gen,
		MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Run(context.Background(), testRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Len(t, gen.GenerateCalls(), 8)
}

func TestAnalyzer_RunCanceledWhileWaitingForSlot(t *testing.T) {
	release := make(chan struct{})
	gen := &mocks.GeneratorMock{GenerateFunc: func(ctx context.Context, comments []domain.Comment, language string) (string, error) {
		<-release
		return `{}`, nil
	}}
	a := New(Params{Ledger: chargedLedger(), Fetcher: fetcherOf([]domain.Comment{{ID: "c0"}}), Generator: gen,
		MaxConcurrent: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := a.Run(context.Background(), testRequest())
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return len(gen.GenerateCalls()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Run(ctx, testRequest())
	require.ErrorIs(t, err, domain.ErrUpstreamGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestAnalyzer_RunGenTimeoutCoversSlotWait(t *testing.T) {
	release := make(chan struct{})
	gen := &mocks.GeneratorMock{GenerateFunc: func(ctx context.Context, comments []domain.Comment, language string) (string, error) {
		select {
		case <-release:
			return `{}`, nil
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", domain.ErrUpstreamGeneration, ctx.Err())
		}
	}}
	a := New(Params{Ledger: chargedLedger(), Fetcher: fetcherOf([]domain.Comment{{ID: "c0"}}), Generator: gen,
		MaxConcurrent: 1, GenTimeout: 300 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := a.Run(context.Background(), testRequest())
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return len(gen.GenerateCalls()) == 1 }, time.Second, 5*time.Millisecond)

	// no deadline from the caller, the generation timeout alone ends the wait
	st := time.Now()
	_, err := a.Run(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrUpstreamGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(st), 2*time.Second)
	assert.Len(t, gen.GenerateCalls(), 1, "second run never reached the generator")

	close(release)
	<-done

	// the call itself gets the deadline
	_, err = a.Run(context.Background(), testRequest())
	require.NoError(t, err)
	deadlineSet := false
	gen.GenerateFunc = func(ctx context.Context, comments []domain.Comment, language string) (string, error) {
		_, deadlineSet = ctx.Deadline()
		return `{}`, nil
	}
	_, err = a.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, deadlineSet)
}

func TestPhaseError(t *testing.T) {
	err := &PhaseError{Phase: PhaseFetching, Err: domain.ErrUpstreamFetch}
	assert.Equal(t, "fetching failed: comment fetch failed", err.Error())
	assert.ErrorIs(t, err, domain.ErrUpstreamFetch)
}
