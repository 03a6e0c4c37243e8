// Package analyzer runs a single comment analysis: it charges the caller's quota, fetches
// the comments, asks the generation service to classify them and reconciles the output.
// A committed charge is never refunded, whatever happens after it.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/semaphore"

	"github.com/umputun/commentscope/pkg/domain"
	"github.com/umputun/commentscope/pkg/llm"
	"github.com/umputun/commentscope/pkg/reconcile"
)

//go:generate moq -out mocks/ledger.go -pkg mocks -skip-ensure -fmt goimports . Ledger
//go:generate moq -out mocks/fetcher.go -pkg mocks -skip-ensure -fmt goimports . Fetcher
//go:generate moq -out mocks/generator.go -pkg mocks -skip-ensure -fmt goimports . Generator

// NoComments is the message and summary of an analysis with nothing to analyze
const NoComments = "No comments found"

// Ledger charges caller quotas
type Ledger interface {
	Charge(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error)
}

// Fetcher pulls comments of a video
type Fetcher interface {
	Fetch(ctx context.Context, req domain.FetchRequest) ([]domain.Comment, error)
}

// Generator sends comments to the generation service and returns its raw output
type Generator interface {
	Generate(ctx context.Context, comments []domain.Comment, language string) (string, error)
}

// Phase is a step of the analysis
type Phase string

// analysis phases in execution order
const (
	PhaseCharging    Phase = "charging"
	PhaseFetching    Phase = "fetching"
	PhaseClassifying Phase = "classifying"
	PhaseReconciling Phase = "reconciling"
	PhaseDone        Phase = "done"
)

// PhaseError is a failure of the analysis in the given phase
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Request is a single analysis request
type Request struct {
	ID          string // request id, used in logs
	Caller      domain.Caller
	VideoID     string
	AccessToken string
	MaxComments int
	Language    string
}

// Params defines analyzer dependencies and limits
type Params struct {
	Ledger        Ledger
	Fetcher       Fetcher
	Generator     Generator
	MaxConcurrent int           // concurrent generation calls across all requests
	GenTimeout    time.Duration // bounds waiting for a generation slot plus the call itself, none if zero
}

// Analyzer runs analysis requests. It is safe for concurrent use.
type Analyzer struct {
	ledger    Ledger
	fetcher   Fetcher
	generator Generator
	sem       *semaphore.Weighted
	timeout   time.Duration
}

// New makes an analyzer
func New(p Params) *Analyzer {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 4
	}
	return &Analyzer{
		ledger:    p.Ledger,
		fetcher:   p.Fetcher,
		generator: p.Generator,
		sem:       semaphore.NewWeighted(int64(p.MaxConcurrent)),
		timeout:   p.GenTimeout,
	}
}

// Run executes the analysis phases in order. Failures are returned as *PhaseError wrapping
// a domain error, domain.ErrQuotaExceeded means nothing was charged and nothing was called.
func (a *Analyzer) Run(ctx context.Context, req Request) (*domain.Analysis, error) {
	st := time.Now()

	snap, err := a.ledger.Charge(ctx, req.Caller)
	if err != nil {
		return nil, a.fail(req, PhaseCharging, err)
	}

	comments, err := a.fetcher.Fetch(ctx, domain.FetchRequest{VideoID: req.VideoID, AccessToken: req.AccessToken,
		MaxCount: req.MaxComments})
	if err != nil {
		return nil, a.fail(req, PhaseFetching, err)
	}
	if len(comments) == 0 {
		lgr.Printf("[INFO] [%s] no comments for video %s, caller %s", req.ID, req.VideoID, req.Caller.ID)
		return &domain.Analysis{
			VideoID:        req.VideoID,
			Message:        NoComments,
			Summary:        NoComments,
			SentimentScore: reconcile.NeutralScore,
			VideoIdeas:     []string{},
			Highlights:     []domain.ClassifiedComment{},
			Results:        []domain.ClassifiedComment{},
			UserQuota:      snap,
		}, nil
	}

	raw, err := a.generate(ctx, comments, req.Language)
	if err != nil {
		return nil, a.fail(req, PhaseClassifying, err)
	}

	out, err := llm.ParseOutput(raw)
	if err != nil {
		return nil, a.fail(req, PhaseReconciling, err)
	}
	results := reconcile.Classify(comments, out)
	agg := reconcile.Aggregate(out)

	lgr.Printf("[INFO] [%s] analysis %s, %d comments of %s for %s in %v", req.ID, PhaseDone, len(comments), req.VideoID,
		req.Caller.ID, time.Since(st).Round(time.Millisecond))
	return &domain.Analysis{
		VideoID:        req.VideoID,
		TotalComments:  len(comments),
		Summary:        agg.Summary,
		SentimentScore: agg.SentimentScore,
		VideoIdeas:     agg.VideoIdeas,
		Highlights:     reconcile.Highlights(results, out),
		Results:        results,
		UserQuota:      snap,
	}, nil
}

// generate calls the generator once a concurrency slot is free. The wait and the call
// share one timeout.
func (a *Analyzer) generate(ctx context.Context, comments []domain.Comment, language string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: wait for generation slot: %w", domain.ErrUpstreamGeneration, err)
	}
	defer a.sem.Release(1)
	return a.generator.Generate(ctx, comments, language)
}

func (a *Analyzer) fail(req Request, phase Phase, err error) error {
	if phase == PhaseCharging {
		lgr.Printf("[INFO] [%s] analysis of %s for %s (%s) rejected: %v", req.ID, req.VideoID, req.Caller.ID,
			req.Caller.Email, err)
		return &PhaseError{Phase: phase, Err: err}
	}
	lgr.Printf("[WARN] [%s] analysis of %s for %s (%s) failed in %s phase, quota already charged: %v", req.ID,
		req.VideoID, req.Caller.ID, req.Caller.Email, phase, err)
	return &PhaseError{Phase: phase, Err: err}
}
