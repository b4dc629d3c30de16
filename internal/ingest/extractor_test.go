package ingest_test

import (
	"context"
	"strings"
	"testing"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/ingest"
	"github.com/linkpipe/linkpipe/internal/logger"
)

type fakeLinkStore struct {
	existing   map[string]bool
	knownPaths []string
	created    []*domain.Link
}

func (f *fakeLinkStore) ExistsByURL(_ context.Context, url string) (bool, error) {
	return f.existing[url], nil
}

func (f *fakeLinkStore) ExistsBySimilarPath(_ context.Context, path string) (bool, error) {
	for _, known := range f.knownPaths {
		if strings.Contains(known, path) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLinkStore) Create(_ context.Context, link *domain.Link) error {
	if f.existing[link.OriginalURL] {
		return domain.ErrAlreadyExists
	}
	f.created = append(f.created, link)
	return nil
}

type fakeRegistry struct {
	domains []string
	touched []string
}

func (f *fakeRegistry) ActiveDomains(_ context.Context) ([]domain.RegisteredDomain, error) {
	out := make([]domain.RegisteredDomain, 0, len(f.domains))
	for _, d := range f.domains {
		out = append(out, domain.RegisteredDomain{Domain: d, Active: true})
	}
	return out, nil
}

func (f *fakeRegistry) TouchSourceGroup(_ context.Context, address, _ string) error {
	f.touched = append(f.touched, address)
	return nil
}

type fakeDestinations struct {
	addresses map[string]bool
}

func (f *fakeDestinations) IsDestination(_ context.Context, address string) (bool, error) {
	return f.addresses[address], nil
}

func newTestExtractor(store *fakeLinkStore, registry *fakeRegistry, dests *fakeDestinations) *ingest.Extractor {
	noise := []string{"youtube.com", "chat.whatsapp.com"}
	return ingest.NewExtractor(store, registry, dests, nil, nil, noise, logger.NewNopLogger())
}

func TestExtractor_ExtractLinks(t *testing.T) {
	e := newTestExtractor(&fakeLinkStore{}, &fakeRegistry{}, &fakeDestinations{})

	testCases := []struct {
		name string
		text string
		want []string // expected domains in order
	}{
		{
			name: "single product link",
			text: "Olha essa oferta https://www.shop.example.com/p/123 imperdível",
			want: []string{"shop.example.com"},
		},
		{
			name: "multiple links",
			text: "https://a.example.com/1 e https://b.example.com/2",
			want: []string{"a.example.com", "b.example.com"},
		},
		{
			name: "noise domains dropped",
			text: "https://youtube.com/watch?v=x https://shop.example.com/p/9",
			want: []string{"shop.example.com"},
		},
		{
			name: "trailing punctuation stripped",
			text: "veja: https://shop.example.com/p/7.",
			want: []string{"shop.example.com"},
		},
		{
			name: "no links",
			text: "bom dia grupo",
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.ExtractLinks(tc.text)
			if len(got) != len(tc.want) {
				t.Fatalf("ExtractLinks() returned %d candidates, want %d", len(got), len(tc.want))
			}
			for i, want := range tc.want {
				if got[i].Domain != want {
					t.Errorf("candidate[%d].Domain = %q, want %q", i, got[i].Domain, want)
				}
			}
		})
	}
}

func TestExtractor_Process(t *testing.T) {
	store := &fakeLinkStore{existing: map[string]bool{}}
	registry := &fakeRegistry{domains: []string{"shop.example.com"}}
	dests := &fakeDestinations{addresses: map[string]bool{}}
	e := newTestExtractor(store, registry, dests)

	msg := ingest.Message{
		SourceAddress: "deals-group@g.us",
		SourceName:    "Grupo de Ofertas",
		SenderName:    "Maria",
		Text:          "Promoção https://shop.example.com/p/1 e https://other.example.com/p/2",
		Context:       domain.CapturedContext{Text: "Promoção"},
	}

	saved, err := e.Process(context.Background(), msg)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if saved != 1 {
		t.Fatalf("Process() saved %d links, want 1 (unregistered domain filtered)", saved)
	}

	link := store.created[0]
	if link.Domain != "shop.example.com" {
		t.Errorf("link.Domain = %q", link.Domain)
	}
	if link.Status != domain.StatusPending {
		t.Errorf("link.Status = %q, want pending", link.Status)
	}
	if link.SourceAddress != msg.SourceAddress {
		t.Errorf("link.SourceAddress = %q", link.SourceAddress)
	}

	if len(registry.touched) != 1 || registry.touched[0] != msg.SourceAddress {
		t.Errorf("source group touched = %v, want [%s]", registry.touched, msg.SourceAddress)
	}
}

func TestExtractor_Process_SkipsDestinationGroups(t *testing.T) {
	store := &fakeLinkStore{existing: map[string]bool{}}
	registry := &fakeRegistry{domains: []string{"shop.example.com"}}
	dests := &fakeDestinations{addresses: map[string]bool{"our-deals@g.us": true}}
	e := newTestExtractor(store, registry, dests)

	saved, err := e.Process(context.Background(), ingest.Message{
		SourceAddress: "our-deals@g.us",
		Text:          "https://shop.example.com/p/1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if saved != 0 || len(store.created) != 0 {
		t.Error("links from destination groups must not be tracked")
	}
}

func TestExtractor_Process_SkipsRehostedDuplicates(t *testing.T) {
	// The same product path already tracked through another short link.
	store := &fakeLinkStore{
		existing:   map[string]bool{},
		knownPaths: []string{"https://s.shop.example/p/abc123"},
	}
	registry := &fakeRegistry{domains: []string{"shop.example.com"}}
	e := newTestExtractor(store, registry, &fakeDestinations{})

	saved, err := e.Process(context.Background(), ingest.Message{
		SourceAddress: "deals-group@g.us",
		Text:          "https://shop.example.com/p/abc123",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if saved != 0 || len(store.created) != 0 {
		t.Errorf("Process() saved %d, want 0 for a rehosted duplicate path", saved)
	}
}

func TestExtractor_Process_SkipsKnownURLs(t *testing.T) {
	store := &fakeLinkStore{existing: map[string]bool{
		"https://shop.example.com/p/1": true,
	}}
	registry := &fakeRegistry{domains: []string{"shop.example.com"}}
	e := newTestExtractor(store, registry, &fakeDestinations{})

	saved, err := e.Process(context.Background(), ingest.Message{
		SourceAddress: "deals-group@g.us",
		Text:          "https://shop.example.com/p/1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if saved != 0 {
		t.Errorf("Process() saved %d, want 0 for already tracked URL", saved)
	}
	if len(registry.touched) != 0 {
		t.Error("source group must not be touched when nothing was saved")
	}
}
