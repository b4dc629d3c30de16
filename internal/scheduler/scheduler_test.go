package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/resolver"
)

type fakeLinkStore struct {
	pending []domain.Link

	ready     map[uuid.UUID]string
	failed    map[uuid.UUID]string
	temporary map[uuid.UUID]string

	staleReleased int64
	promoted      int64
	expired       int64
	housekeeping  []string
}

func newFakeLinkStore(pending ...domain.Link) *fakeLinkStore {
	return &fakeLinkStore{
		pending:   pending,
		ready:     map[uuid.UUID]string{},
		failed:    map[uuid.UUID]string{},
		temporary: map[uuid.UUID]string{},
	}
}

func (f *fakeLinkStore) FetchPending(_ context.Context, _ int) ([]domain.Link, error) {
	return f.pending, nil
}

func (f *fakeLinkStore) MarkReady(_ context.Context, id uuid.UUID, affiliateURL string, _ []byte) error {
	f.ready[id] = affiliateURL
	return nil
}

func (f *fakeLinkStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	f.failed[id] = reason
	return nil
}

func (f *fakeLinkStore) MarkTemporaryFailure(_ context.Context, id uuid.UUID, reason string) error {
	f.temporary[id] = reason
	return nil
}

func (f *fakeLinkStore) PromoteTemporary(_ context.Context, _ time.Duration, _ int) (int64, error) {
	f.housekeeping = append(f.housekeeping, "promote")
	return f.promoted, nil
}

func (f *fakeLinkStore) ExpireTemporary(_ context.Context, _ time.Duration) (int64, error) {
	f.housekeeping = append(f.housekeeping, "expire")
	return f.expired, nil
}

func (f *fakeLinkStore) ReleaseStaleClaims(_ context.Context, _ time.Duration) (int64, error) {
	f.housekeeping = append(f.housekeeping, "stale")
	return f.staleReleased, nil
}

func (f *fakeLinkStore) CountByStatus(_ context.Context) (*domain.StatusCounts, error) {
	return &domain.StatusCounts{}, nil
}

type fakeResolver struct {
	outcomes map[string]resolver.Outcome // keyed by original URL
	resolved []string
}

func (f *fakeResolver) Resolve(_ context.Context, link *domain.Link) resolver.Outcome {
	f.resolved = append(f.resolved, link.OriginalURL)
	return f.outcomes[link.OriginalURL]
}

type fakeDistributor struct {
	calls     int
	delivered int
}

func (f *fakeDistributor) Distribute(_ context.Context) (int, error) {
	f.calls++
	return f.delivered, nil
}

type fakeQuota struct {
	resets int
}

func (f *fakeQuota) ResetAll(_ context.Context) (int64, error) {
	f.resets++
	return 2, nil
}

func pendingLink(t *testing.T, url string) domain.Link {
	t.Helper()

	link, err := domain.NewLink(url, "shop.example.com", "src@g.us", "Ana", nil)
	if err != nil {
		t.Fatalf("NewLink() error = %v", err)
	}
	return *link
}

func testScheduler(links *fakeLinkStore, res *fakeResolver, dist *fakeDistributor, quota *fakeQuota) *Scheduler {
	cfg := Config{
		ProcessInterval:   time.Minute,
		SendInterval:      time.Minute,
		PendingBatchSize:  10,
		TemporaryCooldown: time.Hour,
		TemporaryMaxAge:   24 * time.Hour,
		PromoteBatchSize:  1,
		StaleClaimAge:     5 * time.Minute,
	}
	return NewScheduler(links, res, dist, quota, nil, cfg, logger.NewNopLogger())
}

func TestScheduler_ResolutionOutcomes(t *testing.T) {
	success := pendingLink(t, "https://shop.example.com/p/1")
	permanent := pendingLink(t, "https://shop.example.com/p/2")
	temporary := pendingLink(t, "https://shop.example.com/p/3")

	links := newFakeLinkStore(success, permanent, temporary)
	res := &fakeResolver{outcomes: map[string]resolver.Outcome{
		success.OriginalURL: {
			Kind:         resolver.OutcomeSuccess,
			AffiliateURL: "https://aff.example.com/1",
			Metadata:     domain.ResolvedMetadata{Title: "Produto"},
		},
		permanent.OriginalURL: {Kind: resolver.OutcomePermanent, Reason: "not_found: gone"},
		temporary.OriginalURL: {Kind: resolver.OutcomeTemporary, Reason: "no terminal status after 30 checks"},
	}}
	s := testScheduler(links, res, &fakeDistributor{}, &fakeQuota{})

	s.RunResolutionSweep(context.Background())

	if got := links.ready[success.ID]; got != "https://aff.example.com/1" {
		t.Errorf("ready[%s] = %q", success.ID, got)
	}
	if got := links.failed[permanent.ID]; got != "not_found: gone" {
		t.Errorf("failed[%s] = %q", permanent.ID, got)
	}
	if got := links.temporary[temporary.ID]; got != "no terminal status after 30 checks" {
		t.Errorf("temporary[%s] = %q", temporary.ID, got)
	}
	if len(res.resolved) != 3 {
		t.Errorf("resolved %d links, want 3", len(res.resolved))
	}
}

func TestScheduler_HousekeepingRunsBeforeResolution(t *testing.T) {
	links := newFakeLinkStore()
	links.staleReleased = 2
	links.promoted = 1
	s := testScheduler(links, &fakeResolver{}, &fakeDistributor{}, &fakeQuota{})

	s.RunResolutionSweep(context.Background())

	want := []string{"stale", "promote", "expire"}
	if len(links.housekeeping) != len(want) {
		t.Fatalf("housekeeping = %v, want %v", links.housekeeping, want)
	}
	for i, op := range want {
		if links.housekeeping[i] != op {
			t.Errorf("housekeeping[%d] = %q, want %q", i, links.housekeeping[i], op)
		}
	}
}

func TestScheduler_AuthFailurePausesResolution(t *testing.T) {
	first := pendingLink(t, "https://shop.example.com/p/1")
	second := pendingLink(t, "https://shop.example.com/p/2")

	links := newFakeLinkStore(first, second)
	res := &fakeResolver{outcomes: map[string]resolver.Outcome{
		first.OriginalURL: {
			Kind:        resolver.OutcomePermanent,
			Reason:      "failed_auth: token expired",
			AuthFailure: true,
		},
	}}
	s := testScheduler(links, res, &fakeDistributor{}, &fakeQuota{})

	s.RunResolutionSweep(context.Background())

	if len(res.resolved) != 1 {
		t.Fatalf("resolved %d links, want 1 (batch stops on auth failure)", len(res.resolved))
	}
	if _, marked := links.temporary[second.ID]; marked {
		t.Error("second link must stay pending, not failed_temporary")
	}

	// The next sweep still housekeeps but resolves nothing.
	s.RunResolutionSweep(context.Background())
	if len(res.resolved) != 1 {
		t.Errorf("resolved %d links after pause, want still 1", len(res.resolved))
	}
}

func TestScheduler_MidnightResetLiftsAuthPause(t *testing.T) {
	link := pendingLink(t, "https://shop.example.com/p/1")
	links := newFakeLinkStore(link)
	res := &fakeResolver{outcomes: map[string]resolver.Outcome{
		link.OriginalURL: {Kind: resolver.OutcomePermanent, Reason: "failed_auth", AuthFailure: true},
	}}
	quota := &fakeQuota{}
	s := testScheduler(links, res, &fakeDistributor{}, quota)

	s.RunResolutionSweep(context.Background())
	if !s.authPaused.Load() {
		t.Fatal("auth pause latch not set")
	}

	s.runMidnightReset(context.Background())
	if quota.resets != 1 {
		t.Errorf("quota resets = %d, want 1", quota.resets)
	}
	if s.authPaused.Load() {
		t.Error("auth pause latch must clear at the daily reset")
	}
}

func TestScheduler_DistributionSweep(t *testing.T) {
	dist := &fakeDistributor{delivered: 3}
	s := testScheduler(newFakeLinkStore(), &fakeResolver{}, dist, &fakeQuota{})

	s.runDistributionSweep(context.Background())
	if dist.calls != 1 {
		t.Errorf("Distribute() calls = %d, want 1", dist.calls)
	}
}

func TestScheduler_SweepIsSingleFlight(t *testing.T) {
	links := newFakeLinkStore()
	s := testScheduler(links, &fakeResolver{}, &fakeDistributor{}, &fakeQuota{})

	if !s.resolveGate.TryAcquire(1) {
		t.Fatal("gate unexpectedly held")
	}
	defer s.resolveGate.Release(1)

	// A sweep landing while another runs must skip without touching the
	// store.
	s.RunResolutionSweep(context.Background())
	if len(links.housekeeping) != 0 {
		t.Errorf("housekeeping ran during an overlapping sweep: %v", links.housekeeping)
	}
}
