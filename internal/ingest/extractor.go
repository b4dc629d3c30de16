package ingest

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/metrics"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Message is one captured group-chat message offered for extraction.
type Message struct {
	SourceAddress string
	SourceName    string
	SenderName    string
	Text          string
	Context       domain.CapturedContext
}

// LinkStore is the subset of the link repository the extractor needs.
type LinkStore interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	ExistsBySimilarPath(ctx context.Context, path string) (bool, error)
	Create(ctx context.Context, link *domain.Link) error
}

// Registry supplies the domain allow list and records source groups.
type Registry interface {
	ActiveDomains(ctx context.Context) ([]domain.RegisteredDomain, error)
	TouchSourceGroup(ctx context.Context, address, name string) error
}

// DestinationChecker reports whether an address is one of our own
// redistribution targets.
type DestinationChecker interface {
	IsDestination(ctx context.Context, address string) (bool, error)
}

// Extractor finds registered-domain product links in messages and
// persists them as pending work.
type Extractor struct {
	store        LinkStore
	registry     Registry
	destinations DestinationChecker
	seen         *SeenCache
	metrics      metrics.Tracker
	noiseDomains []string
	logger       logger.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(
	store LinkStore,
	registry Registry,
	destinations DestinationChecker,
	seen *SeenCache,
	tracker metrics.Tracker,
	noiseDomains []string,
	log logger.Logger,
) *Extractor {
	return &Extractor{
		store:        store,
		registry:     registry,
		destinations: destinations,
		seen:         seen,
		metrics:      tracker,
		noiseDomains: noiseDomains,
		logger:       log,
	}
}

// Candidate is one URL pulled out of the message text.
type Candidate struct {
	URL    string
	Domain string
	Path   string
}

// ExtractLinks finds candidate URLs in free text. Malformed URLs and
// noise domains are dropped silently.
func (e *Extractor) ExtractLinks(text string) []Candidate {
	if !strings.Contains(text, "http") {
		return nil
	}

	var out []Candidate
	for _, raw := range urlPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;:)]}>\"'")

		parsed, err := url.Parse(raw)
		if err != nil || parsed.Hostname() == "" {
			continue
		}

		host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
		if e.isNoise(host) {
			continue
		}

		out = append(out, Candidate{URL: raw, Domain: host, Path: parsed.Path})
	}
	return out
}

func (e *Extractor) isNoise(host string) bool {
	for _, noise := range e.noiseDomains {
		if host == noise || strings.HasSuffix(host, "."+noise) {
			return true
		}
	}
	return false
}

// Process runs the full ingest path for one message and returns how many
// links were persisted. Per-link errors are logged and skipped; they are
// never persisted as failures.
func (e *Extractor) Process(ctx context.Context, msg Message) (int, error) {
	// Messages in our own destination groups are our output; tracking
	// them would loop the pipeline back into itself.
	isDest, err := e.destinations.IsDestination(ctx, msg.SourceAddress)
	if err != nil {
		return 0, err
	}
	if isDest {
		return 0, nil
	}

	candidates := e.ExtractLinks(msg.Text)
	if len(candidates) == 0 {
		return 0, nil
	}

	registered, err := e.registry.ActiveDomains(ctx)
	if err != nil {
		return 0, err
	}
	allowed := make(map[string]bool, len(registered))
	for _, d := range registered {
		allowed[strings.ToLower(d.Domain)] = true
	}

	saved := 0
	for _, c := range candidates {
		if !allowed[c.Domain] {
			continue
		}
		if e.seen != nil && e.seen.Seen(ctx, c.URL) {
			continue
		}

		exists, existsErr := e.store.ExistsByURL(ctx, c.URL)
		if existsErr != nil {
			e.logger.Error("Failed to check link existence",
				logger.String("url", c.URL),
				logger.Error(existsErr),
			)
			continue
		}
		if exists {
			if e.seen != nil {
				e.seen.MarkSeen(ctx, c.URL)
			}
			continue
		}

		// Differently shortened shares of the same product keep the
		// product path; a trivial "/" path would match everything.
		if len(c.Path) > 1 {
			similar, similarErr := e.store.ExistsBySimilarPath(ctx, c.Path)
			if similarErr != nil {
				e.logger.Error("Failed to check link path similarity",
					logger.String("url", c.URL),
					logger.Error(similarErr),
				)
				continue
			}
			if similar {
				if e.seen != nil {
					e.seen.MarkSeen(ctx, c.URL)
				}
				continue
			}
		}

		link, newErr := domain.NewLink(c.URL, c.Domain, msg.SourceAddress, msg.SenderName, msg.Context.Encode())
		if newErr != nil {
			e.logger.Error("Invalid link candidate",
				logger.String("url", c.URL),
				logger.Error(newErr),
			)
			continue
		}

		if createErr := e.store.Create(ctx, link); createErr != nil {
			if errors.Is(createErr, domain.ErrAlreadyExists) {
				// Raced with another ingest; the unique index won.
				if e.seen != nil {
					e.seen.MarkSeen(ctx, c.URL)
				}
				continue
			}
			e.logger.Error("Failed to persist link",
				logger.String("url", c.URL),
				logger.Error(createErr),
			)
			continue
		}

		if e.seen != nil {
			e.seen.MarkSeen(ctx, c.URL)
		}
		if e.metrics != nil {
			_ = e.metrics.IncrementTracked(ctx, c.Domain)
		}

		saved++
		e.logger.Info("Link tracked",
			logger.String("domain", c.Domain),
			logger.String("source", msg.SourceAddress),
		)
	}

	if saved > 0 {
		if touchErr := e.registry.TouchSourceGroup(ctx, msg.SourceAddress, msg.SourceName); touchErr != nil {
			e.logger.Warn("Failed to record source group",
				logger.String("source", msg.SourceAddress),
				logger.Error(touchErr),
			)
		}
	}

	return saved, nil
}
