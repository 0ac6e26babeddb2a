package outbox

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/webstash/webstash/internal/remote"
)

const (
	defaultDrainInterval = time.Minute

	// Fixed reference rows every drained bookmark is attached to.
	bookmarkWorkspace = "web-bookmark"
	pendingTagName    = "待处理"
	pendingTagColor   = "#f59e0b"
	workspaceTagColor = "#3b82f6"
)

// Notifier receives the payload-free refresh signal after every
// successful commit; recipients re-query.
type Notifier interface {
	Refresh()
}

type EngineOptions struct {
	Outbox        *Outbox
	Gateways      GatewayProvider
	Notifier      Notifier
	DrainInterval time.Duration
	WorkspaceName string
	DisableTicker bool
}

// Engine is the reconciliation state machine over the outbox. Exactly
// one drain pass runs at a time: triggers race on an atomic busy flag
// and losers are dropped, relying on the winning pass to drain the
// queue to exhaustion before going idle.
type Engine struct {
	outbox    *Outbox
	gateways  GatewayProvider
	notifier  Notifier
	interval  time.Duration
	workspace string

	draining  int32
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Outbox == nil || opts.Gateways == nil {
		return nil, ErrInvalidInput
	}
	interval := opts.DrainInterval
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	workspace := opts.WorkspaceName
	if workspace == "" {
		workspace = bookmarkWorkspace
	}
	e := &Engine{
		outbox:    opts.Outbox,
		gateways:  opts.Gateways,
		notifier:  opts.Notifier,
		interval:  interval,
		workspace: workspace,
		closed:    make(chan struct{}),
	}
	if !opts.DisableTicker {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.tickLoop()
		}()
	}
	return e, nil
}

// Kick requests a drain. If a pass is already in flight the trigger is
// a no-op; the in-flight pass will pick up new work on its next head
// read.
func (e *Engine) Kick() {
	if e == nil {
		return
	}
	select {
	case <-e.closed:
		return
	default:
	}
	if !atomic.CompareAndSwapInt32(&e.draining, 0, 1) {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		clean := e.drainToIdle()
		atomic.StoreInt32(&e.draining, 0)
		// An enqueue that lost its trigger while the flag was still
		// set must not wait a full period: drain again if non-empty.
		if clean {
			if depth, err := e.outbox.Len(); err == nil && depth > 0 {
				e.Kick()
			}
		}
	}()
}

// Draining reports whether a pass is in flight.
func (e *Engine) Draining() bool {
	return atomic.LoadInt32(&e.draining) == 1
}

// Status summarizes the engine for the status endpoint.
type Status struct {
	QueueDepth        int  `json:"queueDepth"`
	Draining          bool `json:"draining"`
	GatewayConfigured bool `json:"gatewayConfigured"`
}

func (e *Engine) Status() Status {
	depth, err := e.outbox.Len()
	if err != nil {
		log.Printf("status could not read outbox: %v", err)
	}
	_, configured := e.gateways.Gateway()
	return Status{
		QueueDepth:        depth,
		Draining:          e.Draining(),
		GatewayConfigured: configured,
	}
}

func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	e.wg.Wait()
}

func (e *Engine) tickLoop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.Kick()
		}
	}
}

// drainToIdle processes heads until the queue is empty or a step
// fails. Returns true when it stopped because the queue was empty; a
// failed step leaves the head in place (Requeued) and waits for the
// next periodic trigger rather than hot-looping against an unreachable
// remote.
func (e *Engine) drainToIdle() bool {
	for {
		select {
		case <-e.closed:
			return false
		default:
		}
		head, ok, err := e.outbox.PeekHead()
		if err != nil {
			log.Printf("drain could not read outbox head: %v", err)
			return false
		}
		if !ok {
			return true
		}
		if err := e.drainStep(head); err != nil {
			log.Printf("drain requeued url=%s: %v", head.URL, err)
			return false
		}
	}
}

// drainStep materializes one intent remotely and removes it from the
// queue only after the remote write is confirmed. The reference
// lookups run sequentially: all three identifiers are needed before
// the item insert can proceed. There is no cross-step transaction; a
// failure after the item insert but before the tag batch leaves an
// orphan item invisible to tag-scoped queries, which the next
// successful pass recreates rather than repairs.
func (e *Engine) drainStep(head Intent) error {
	gw, ok := e.gateways.Gateway()
	if !ok {
		return ErrConfigurationMissing
	}
	ctx := context.Background()
	correlationID := uuid.NewString()

	resolver := remote.NewResolver(gw)
	workspaceID, err := resolver.EnsureWorkspace(ctx, e.workspace)
	if err != nil {
		return err
	}
	pendingTagID, err := resolver.EnsureTag(ctx, pendingTagName, pendingTagColor)
	if err != nil {
		return err
	}
	workspaceTagID, err := resolver.EnsureTag(ctx, e.workspace, workspaceTagColor)
	if err != nil {
		return err
	}
	itemID, err := remote.InsertItem(ctx, gw, remote.NewItem{
		Title:       head.Title,
		URL:         head.URL,
		Summary:     head.Summary,
		WorkspaceID: workspaceID,
		CreatedAt:   head.CreatedAt,
	})
	if err != nil {
		return err
	}
	if err := remote.LinkTags(ctx, gw, itemID, []int64{pendingTagID, workspaceTagID}); err != nil {
		return err
	}

	removed, err := e.outbox.RemoveHead(head)
	if err != nil {
		return err
	}
	log.Printf("drain committed url=%s item=%d correlation=%s", head.URL, itemID, correlationID)
	if removed && e.notifier != nil {
		e.notifier.Refresh()
	}
	return nil
}
