package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/normalize"
)

const tracerName = "linkpipe/resolver"

// Enhancer produces an optional marketing description for a resolved
// product. Failures degrade to no description, never to a failed link.
type Enhancer interface {
	Describe(ctx context.Context, title string, meta domain.ResolvedMetadata, contextText string) (string, error)
}

// OutcomeKind is the terminal result of one resolution pass for a link.
type OutcomeKind int

const (
	// OutcomeSuccess carries an affiliate URL and merged metadata.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTemporary leaves the link eligible for a later pass.
	OutcomeTemporary
	// OutcomePermanent removes the link from further processing.
	OutcomePermanent
)

// Outcome is what the engine decided for one link.
type Outcome struct {
	Kind         OutcomeKind
	AffiliateURL string
	Metadata     domain.ResolvedMetadata
	Reason       string
	// AuthFailure trips the scheduler's resolution pause latch.
	AuthFailure bool
}

// Config holds the engine's retry and polling budget.
type Config struct {
	MaxAttempts  int
	SettleDelay  time.Duration // pause between submit and first poll
	PollInterval time.Duration
	MaxChecks    int
	BackoffStep  time.Duration // inter-attempt delay grows by this per attempt
}

// Engine resolves pending links against the asynchronous job API.
type Engine struct {
	client   Client
	enhancer Enhancer
	cfg      Config
	logger   logger.Logger
	tracer   trace.Tracer
}

// NewEngine creates an engine. The enhancer may be nil.
func NewEngine(client Client, enhancer Enhancer, cfg Config, log logger.Logger) *Engine {
	if cfg.BackoffStep == 0 {
		cfg.BackoffStep = 2 * time.Second
	}
	return &Engine{
		client:   client,
		enhancer: enhancer,
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
}

// Resolve runs the full submit/poll protocol for one link.
//
// A poll response classified permanent ends the pass as failed; one
// classified temporary (explicit transient status, poll transport error,
// or the polling ceiling) ends the pass as failed_temporary. The attempt
// budget covers submission failures only: a URL the API will not even
// accept after MaxAttempts tries is treated as permanently broken.
func (e *Engine) Resolve(ctx context.Context, link *domain.Link) Outcome {
	ctx, span := e.tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(
			attribute.String("link.id", link.ID.String()),
			attribute.String("link.domain", link.Domain),
		))
	defer span.End()

	var lastSubmitErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if !sleep(ctx, time.Duration(attempt-1)*e.cfg.BackoffStep) {
				return Outcome{Kind: OutcomeTemporary, Reason: "canceled"}
			}
		}

		jobID, submitErr := e.client.Submit(ctx, link.OriginalURL)
		if submitErr != nil {
			lastSubmitErr = submitErr
			e.logger.Warn("Resolution submit failed",
				logger.String("link_id", link.ID.String()),
				logger.Int("attempt", attempt),
				logger.Error(submitErr),
			)
			continue
		}

		span.SetAttributes(attribute.String("resolver.job_id", jobID))

		if !sleep(ctx, e.cfg.SettleDelay) {
			return Outcome{Kind: OutcomeTemporary, Reason: "canceled"}
		}

		return e.awaitCompletion(ctx, link, jobID)
	}

	return Outcome{
		Kind:   OutcomePermanent,
		Reason: fmt.Sprintf("submission attempts exhausted: %v", lastSubmitErr),
	}
}

// awaitCompletion polls one job until a terminal classification or the
// check ceiling.
func (e *Engine) awaitCompletion(ctx context.Context, link *domain.Link, jobID string) Outcome {
	ctx, span := e.tracer.Start(ctx, "resolver.awaitCompletion",
		trace.WithAttributes(attribute.String("resolver.job_id", jobID)))
	defer span.End()

	for check := 1; check <= e.cfg.MaxChecks; check++ {
		result, pollErr := e.client.Poll(ctx, jobID)
		if pollErr != nil {
			e.logger.Warn("Resolution poll failed",
				logger.String("link_id", link.ID.String()),
				logger.Int("check", check),
				logger.Error(pollErr),
			)
			return Outcome{Kind: OutcomeTemporary, Reason: fmt.Sprintf("poll failed: %v", pollErr)}
		}

		class, known := Classify(result.Status)
		if !known {
			e.logger.Warn("Unknown resolution status",
				logger.String("link_id", link.ID.String()),
				logger.String("status", result.Status),
			)
		}

		switch class {
		case ClassSuccess:
			if result.AffiliateURL != "" {
				return e.buildSuccess(ctx, link, result)
			}
			// Completed with no link yet: the API settles result
			// fields slightly after the status flips.
		case ClassPermanent:
			return Outcome{
				Kind:        OutcomePermanent,
				Reason:      reasonFrom(result),
				AuthFailure: IsAuthFailure(result.Status),
			}
		case ClassTemporary:
			return Outcome{Kind: OutcomeTemporary, Reason: reasonFrom(result)}
		case ClassContinue:
		}

		if !sleep(ctx, e.cfg.PollInterval) {
			return Outcome{Kind: OutcomeTemporary, Reason: "canceled"}
		}
	}

	return Outcome{
		Kind:   OutcomeTemporary,
		Reason: fmt.Sprintf("no terminal status after %d checks", e.cfg.MaxChecks),
	}
}

// buildSuccess merges the API result with the captured chat context.
// API fields win on direct conflict; the context supplies what the API
// never carries: the coupon, from/to price hints, the group's thumbnail.
func (e *Engine) buildSuccess(ctx context.Context, link *domain.Link, result *PollResult) Outcome {
	captured := domain.ParseCapturedContext(link.ContextRaw)
	mined := normalize.MineContext(captured)

	meta := domain.ResolvedMetadata{
		Title:         strings.TrimSpace(result.Title),
		PriceCurrent:  result.PriceCurrent,
		PriceOriginal: result.PriceOriginal,
		Discount:      result.Discount,
		Image:         result.Image,
		Coupon:        mined.Coupon,
		Description:   captured.Description,
	}
	if meta.PriceCurrent == "" {
		meta.PriceCurrent = mined.PriceTo
	}
	if meta.PriceOriginal == "" {
		meta.PriceOriginal = mined.PriceFrom
	}
	if meta.Discount == "" {
		meta.Discount = mined.Discount
	}
	if meta.Image == "" {
		meta.Image = mined.Image
	}

	if e.enhancer != nil && (meta.Title != "" || captured.Description != "") {
		description, enhanceErr := e.enhancer.Describe(ctx, meta.Title, meta, captured.Text)
		if enhanceErr != nil {
			e.logger.Warn("Description enhancement failed",
				logger.String("link_id", link.ID.String()),
				logger.Error(enhanceErr),
			)
		} else {
			meta.AIDescription = description
		}
	}

	return Outcome{
		Kind:         OutcomeSuccess,
		AffiliateURL: result.AffiliateURL,
		Metadata:     meta,
	}
}

func reasonFrom(result *PollResult) string {
	if result.Message != "" {
		return fmt.Sprintf("%s: %s", result.Status, result.Message)
	}
	return result.Status
}

// sleep waits for d or until the context is canceled. Returns false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
