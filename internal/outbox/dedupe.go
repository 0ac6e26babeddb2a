package outbox

import (
	"context"
	"errors"
	"log"

	"github.com/webstash/webstash/internal/remote"
)

// Guard checks a candidate URL against the pending queue and the
// remote store before anything is enqueued. The remote check fails
// open: a transient outage must never block new captures, it only
// risks the drain discovering the duplicate later.
type Guard struct {
	outbox   *Outbox
	gateways GatewayProvider
}

func NewGuard(outbox *Outbox, gateways GatewayProvider) *Guard {
	return &Guard{outbox: outbox, gateways: gateways}
}

// IsDuplicate reports whether the URL is already pending locally or
// already saved remotely. No side effects.
func (g *Guard) IsDuplicate(ctx context.Context, url string) bool {
	if g == nil || url == "" {
		return false
	}
	pending, err := g.outbox.ContainsURL(url)
	if err != nil {
		log.Printf("duplicate check could not read outbox: %v", err)
		return false
	}
	if pending {
		return true
	}
	if g.gateways == nil {
		return false
	}
	gw, ok := g.gateways.Gateway()
	if !ok {
		return false
	}
	_, err = remote.FindItemIDByURL(ctx, gw, url)
	if err == nil {
		return true
	}
	if !errors.Is(err, remote.ErrNoRows) {
		log.Printf("remote duplicate check failed, failing open: %v", err)
	}
	return false
}
