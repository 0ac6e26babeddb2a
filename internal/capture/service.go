package capture

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/webstash/webstash/internal/outbox"
)

// DuplicateChecker answers whether a URL is already saved or pending.
type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, url string) bool
}

// Kicker requests a drain pass without waiting for it.
type Kicker interface {
	Kick()
}

type ServiceOptions struct {
	Outbox    *outbox.Outbox
	Gateways  outbox.GatewayProvider
	Guard     DuplicateChecker
	Extractor *Extractor
	Engine    Kicker
	Notifier  outbox.Notifier
}

// Service is the front door for saving pages: it extracts, dedupes,
// enqueues, and nudges the drain engine. Persisting the intent is the
// success condition; the remote write happens later.
type Service struct {
	outbox    *outbox.Outbox
	gateways  outbox.GatewayProvider
	guard     DuplicateChecker
	extractor *Extractor
	engine    Kicker
	notifier  outbox.Notifier
}

// Receipt acknowledges a queued intent.
type Receipt struct {
	CorrelationID string `json:"correlationId"`
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Outbox == nil || opts.Gateways == nil || opts.Guard == nil || opts.Extractor == nil {
		return nil, outbox.ErrInvalidInput
	}
	return &Service{
		outbox:    opts.Outbox,
		gateways:  opts.Gateways,
		guard:     opts.Guard,
		extractor: opts.Extractor,
		engine:    opts.Engine,
		notifier:  opts.Notifier,
	}, nil
}

// Capture extracts the page behind url and queues a save intent.
// Credentials are checked up front so a misconfigured install fails
// fast instead of queueing work that can never drain.
func (s *Service) Capture(ctx context.Context, url string) (Receipt, error) {
	if url == "" {
		return Receipt{}, fmt.Errorf("%w: url is required", outbox.ErrInvalidInput)
	}
	if _, ok := s.gateways.Gateway(); !ok {
		return Receipt{}, outbox.ErrConfigurationMissing
	}
	extracted, err := s.extractor.Extract(ctx, url)
	if err != nil {
		return Receipt{}, err
	}
	return s.enqueue(ctx, outbox.Intent{
		Title:   extracted.Title,
		URL:     url,
		Summary: extracted.Summary,
	})
}

// Enqueue accepts a pre-extracted intent from clients that fetched the
// page themselves.
func (s *Service) Enqueue(ctx context.Context, intent outbox.Intent) (Receipt, error) {
	if intent.URL == "" {
		return Receipt{}, fmt.Errorf("%w: url is required", outbox.ErrInvalidInput)
	}
	if intent.Title == "" {
		intent.Title = intent.URL
	}
	return s.enqueue(ctx, intent)
}

func (s *Service) enqueue(ctx context.Context, intent outbox.Intent) (Receipt, error) {
	if s.guard.IsDuplicate(ctx, intent.URL) {
		return Receipt{}, fmt.Errorf("%w: %s", outbox.ErrDuplicate, intent.URL)
	}
	if _, err := s.outbox.Enqueue(intent); err != nil {
		return Receipt{}, err
	}
	correlationID := uuid.NewString()
	log.Printf("capture queued url=%s correlation=%s", intent.URL, correlationID)
	if s.engine != nil {
		s.engine.Kick()
	}
	return Receipt{CorrelationID: correlationID}, nil
}

// CancelPending withdraws a not-yet-drained intent. Removing an intent
// the engine is mid-way through committing is safe: the engine only
// pops the head it read, so a cancelled intent is never re-removed.
func (s *Service) CancelPending(url string) (bool, error) {
	if url == "" {
		return false, fmt.Errorf("%w: url is required", outbox.ErrInvalidInput)
	}
	removed, err := s.outbox.RemoveByURL(url)
	if err != nil {
		return false, err
	}
	if removed && s.notifier != nil {
		s.notifier.Refresh()
	}
	return removed, nil
}

// Pending lists queued intents in commit order.
func (s *Service) Pending() ([]outbox.Intent, error) {
	return s.outbox.Snapshot()
}
