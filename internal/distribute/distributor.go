// Package distribute fans resolved links out to destination groups under
// quota control.
package distribute

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/metrics"
	"github.com/linkpipe/linkpipe/internal/normalize"
	"github.com/linkpipe/linkpipe/internal/transport"
)

const tracerName = "linkpipe/distribute"

// LinkStore is the link persistence the distributor needs.
type LinkStore interface {
	ClaimReadyBatch(ctx context.Context, limit int) ([]domain.Link, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkTemporaryFailure(ctx context.Context, id uuid.UUID, reason string) error
}

// SendLog is the delivery audit.
type SendLog interface {
	Record(ctx context.Context, rec *domain.SendRecord) error
	HasDelivery(ctx context.Context, linkID uuid.UUID, destinationAddress string) (bool, error)
}

// DestinationLister supplies active destinations in send order.
type DestinationLister interface {
	ListActive(ctx context.Context) ([]domain.Destination, error)
}

// Quota gates and accounts sends per destination.
type Quota interface {
	CanSend(ctx context.Context, dest *domain.Destination) (bool, error)
	RecordSend(ctx context.Context, dest *domain.Destination) error
}

// Config holds distribution pacing.
type Config struct {
	ClaimBatchSize int
	InterSendPause time.Duration // pause between successive destination sends
}

// Distributor claims ready links and delivers them.
type Distributor struct {
	links        LinkStore
	sendLog      SendLog
	destinations DestinationLister
	quota        Quota
	sender       transport.Sender
	composer     *normalize.Composer
	metrics      metrics.Tracker
	cfg          Config
	logger       logger.Logger
	tracer       trace.Tracer
}

// NewDistributor creates a distributor.
func NewDistributor(
	links LinkStore,
	sendLog SendLog,
	destinations DestinationLister,
	quotaMgr Quota,
	sender transport.Sender,
	composer *normalize.Composer,
	tracker metrics.Tracker,
	cfg Config,
	log logger.Logger,
) *Distributor {
	return &Distributor{
		links:        links,
		sendLog:      sendLog,
		destinations: destinations,
		quota:        quotaMgr,
		sender:       sender,
		composer:     composer,
		metrics:      tracker,
		cfg:          cfg,
		logger:       log,
		tracer:       otel.Tracer(tracerName),
	}
}

// Distribute runs one distribution sweep: claim a batch, deliver each
// link to every eligible destination. No failure of one link or one
// destination aborts the sweep.
func (d *Distributor) Distribute(ctx context.Context) (int, error) {
	ctx, span := d.tracer.Start(ctx, "distribute.Distribute")
	defer span.End()

	links, err := d.links.ClaimReadyBatch(ctx, d.cfg.ClaimBatchSize)
	if err != nil {
		return 0, err
	}
	if len(links) == 0 {
		return 0, nil
	}

	dests, err := d.destinations.ListActive(ctx)
	if err != nil {
		// Nothing was delivered; put the whole claim back.
		for i := range links {
			d.releaseClaim(ctx, links[i].ID)
		}
		return 0, err
	}

	span.SetAttributes(
		attribute.Int("claimed", len(links)),
		attribute.Int("destinations", len(dests)),
	)

	delivered := 0
	for i := range links {
		if ctx.Err() != nil {
			// Recovery resets the remaining sending claims later.
			break
		}
		delivered += d.distributeLink(ctx, &links[i], dests)
	}
	return delivered, nil
}

// distributeLink delivers one claimed link and returns the number of
// successful sends.
func (d *Distributor) distributeLink(ctx context.Context, link *domain.Link, dests []domain.Destination) int {
	ctx, span := d.tracer.Start(ctx, "distribute.distributeLink",
		trace.WithAttributes(attribute.String("link.id", link.ID.String())))
	defer span.End()

	payload, product, ok := d.composePayload(link)
	if !ok {
		// Structural defect: nothing a retry could fix.
		if err := d.links.MarkFailed(ctx, link.ID, "nothing to compose"); err != nil {
			d.logger.Error("Failed to mark structurally invalid link",
				logger.String("link_id", link.ID.String()),
				logger.Error(err),
			)
		}
		return 0
	}

	sent := 0
	transportFailed := false
	for i := range dests {
		dest := &dests[i]

		already, checkErr := d.sendLog.HasDelivery(ctx, link.ID, dest.Address)
		if checkErr != nil {
			d.logger.Error("Failed to check delivery audit",
				logger.String("link_id", link.ID.String()),
				logger.String("destination", dest.Address),
				logger.Error(checkErr),
			)
			continue
		}
		if already {
			continue
		}

		allowed, quotaErr := d.quota.CanSend(ctx, dest)
		if quotaErr != nil {
			d.logger.Error("Quota check failed",
				logger.String("destination", dest.Address),
				logger.Error(quotaErr),
			)
			continue
		}
		if !allowed {
			continue
		}

		if sendErr := d.sender.Send(ctx, dest.Address, payload); sendErr != nil {
			transportFailed = true
			d.logger.Warn("Transport send failed",
				logger.String("link_id", link.ID.String()),
				logger.String("destination", dest.Address),
				logger.Error(sendErr),
			)
			continue
		}

		sent++
		d.recordDelivery(ctx, link, dest, payload, product)

		if d.cfg.InterSendPause > 0 {
			if !sleep(ctx, d.cfg.InterSendPause) {
				break
			}
		}
	}

	switch {
	case transportFailed:
		if err := d.links.MarkTemporaryFailure(ctx, link.ID, "transport send failed"); err != nil {
			d.logger.Error("Failed to mark transport failure",
				logger.String("link_id", link.ID.String()),
				logger.Error(err),
			)
		}
	default:
		d.releaseClaim(ctx, link.ID)
	}

	return sent
}

// composePayload renders the link. ok is false when the link cannot
// produce a sendable message.
func (d *Distributor) composePayload(link *domain.Link) (normalize.Payload, normalize.Product, bool) {
	if !link.Distributable() {
		return normalize.Payload{}, normalize.Product{}, false
	}

	meta := domain.ParseResolvedMetadata(link.MetadataRaw)
	captured := domain.ParseCapturedContext(link.ContextRaw)
	product := normalize.Normalize(meta, captured, *link.AffiliateURL)

	payload := d.composer.ComposePayload(product)
	if payload.Text == "" && payload.Caption == "" {
		return normalize.Payload{}, normalize.Product{}, false
	}
	return payload, product, true
}

func (d *Distributor) recordDelivery(ctx context.Context, link *domain.Link, dest *domain.Destination, payload normalize.Payload, product normalize.Product) {
	message := payload.Text
	if message == "" {
		message = payload.Caption
	}

	rec := &domain.SendRecord{
		ID:                 uuid.New(),
		LinkID:             link.ID,
		DestinationAddress: dest.Address,
		Message:            message,
	}
	if err := d.sendLog.Record(ctx, rec); err != nil {
		d.logger.Error("Failed to append send log",
			logger.String("link_id", link.ID.String()),
			logger.String("destination", dest.Address),
			logger.Error(err),
		)
	}

	if err := d.quota.RecordSend(ctx, dest); err != nil {
		d.logger.Error("Failed to record quota send",
			logger.String("destination", dest.Address),
			logger.Error(err),
		)
	}

	if d.metrics != nil {
		_ = d.metrics.IncrementSent(ctx, dest.Address)
		_ = d.metrics.AddRecentSend(ctx, metrics.RecentSend{
			LinkID:      link.ID.String(),
			Title:       product.Title,
			Domain:      link.Domain,
			Destination: dest.Address,
			SentAt:      time.Now(),
		})
	}

	d.logger.Info("Link delivered",
		logger.String("link_id", link.ID.String()),
		logger.String("destination", dest.Address),
	)
}

func (d *Distributor) releaseClaim(ctx context.Context, id uuid.UUID) {
	if err := d.links.ReleaseClaim(ctx, id); err != nil {
		d.logger.Error("Failed to release claim",
			logger.String("link_id", id.String()),
			logger.Error(err),
		)
	}
}

// sleep waits for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
