package outbox

import (
	"log"
	"sync"

	"github.com/webstash/webstash/internal/remote"
)

// GatewayProvider hands the live Remote Gateway to whoever needs one.
// The second return is false while the daemon is unconfigured.
type GatewayProvider interface {
	Gateway() (remote.Gateway, bool)
}

// GatewayBuildFunc turns credentials into a gateway. The default is
// remote.BuildGatewayFromDSN plus a best-effort schema migration;
// tests substitute fakes.
type GatewayBuildFunc func(creds Credentials) (remote.Gateway, error)

// LiveGatewayProvider builds the gateway lazily from the current
// credentials and rebuilds it when they change.
type LiveGatewayProvider struct {
	creds *CredentialStore
	build GatewayBuildFunc

	mu sync.Mutex
	gw remote.Gateway
}

func NewLiveGatewayProvider(creds *CredentialStore, build GatewayBuildFunc) *LiveGatewayProvider {
	p := &LiveGatewayProvider{creds: creds, build: build}
	return p
}

// Reset drops the cached gateway; the next Gateway call rebuilds it
// from fresh credentials. Wired as the credential store's onChange.
func (p *LiveGatewayProvider) Reset() {
	p.mu.Lock()
	gw := p.gw
	p.gw = nil
	p.mu.Unlock()
	if gw != nil {
		if err := gw.Close(); err != nil {
			log.Printf("closing stale gateway: %v", err)
		}
	}
}

func (p *LiveGatewayProvider) Gateway() (remote.Gateway, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gw != nil {
		return p.gw, true
	}
	creds, ok := p.creds.Current()
	if !ok {
		return nil, false
	}
	gw, err := p.build(creds)
	if err != nil {
		log.Printf("gateway build failed: %v", err)
		return nil, false
	}
	p.gw = gw
	return gw, true
}

func (p *LiveGatewayProvider) Close() error {
	p.mu.Lock()
	gw := p.gw
	p.gw = nil
	p.mu.Unlock()
	if gw != nil {
		return gw.Close()
	}
	return nil
}
