package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/webstash/webstash/internal/capture"
	"github.com/webstash/webstash/internal/httpapi"
	"github.com/webstash/webstash/internal/outbox"
	"github.com/webstash/webstash/internal/remote"
)

func main() {
	if configFile := strings.TrimSpace(os.Getenv("WEBSTASH_CONFIG_FILE")); configFile != "" {
		if err := applyConfigFile(configFile); err != nil {
			log.Fatalf("failed to load config file: %v", err)
		}
	}

	addr := os.Getenv("WEBSTASH_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8090"
	}
	dataDir := strings.TrimSpace(os.Getenv("WEBSTASH_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".webstash"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory %s: %v", dataDir, err)
	}

	queueDSN := strings.TrimSpace(os.Getenv("WEBSTASH_QUEUE_DSN"))
	if queueDSN == "" {
		queueDSN = "file://" + filepath.Join(dataDir, "outbox.json")
	}
	store, err := outbox.BuildQueueStoreFromDSN(queueDSN)
	if err != nil {
		log.Fatalf("failed to initialize outbox store: %v", err)
	}
	ob, err := outbox.NewOutbox(store)
	if err != nil {
		log.Fatalf("failed to open outbox: %v", err)
	}

	credentialsFile := strings.TrimSpace(os.Getenv("WEBSTASH_CREDENTIALS_FILE"))
	if credentialsFile == "" {
		credentialsFile = filepath.Join(dataDir, "credentials.json")
	}
	creds, err := outbox.NewCredentialStore(credentialsFile)
	if err != nil {
		log.Fatalf("failed to load credentials: %v", err)
	}
	provider := outbox.NewLiveGatewayProvider(creds, buildGateway)
	if err := creds.Watch(func(outbox.Credentials, bool) {
		provider.Reset()
	}); err != nil {
		log.Printf("credential watch unavailable, edits require a restart: %v", err)
	}

	hub := httpapi.NewHub()
	engine, err := outbox.NewEngine(outbox.EngineOptions{
		Outbox:        ob,
		Gateways:      provider,
		Notifier:      hub,
		DrainInterval: durationEnv("WEBSTASH_DRAIN_INTERVAL", time.Minute),
	})
	if err != nil {
		log.Fatalf("failed to start drain engine: %v", err)
	}
	guard := outbox.NewGuard(ob, provider)
	svc, err := capture.NewService(capture.ServiceOptions{
		Outbox:    ob,
		Gateways:  provider,
		Guard:     guard,
		Extractor: capture.NewExtractor(strings.TrimSpace(os.Getenv("WEBSTASH_EXTRACTOR_URL"))),
		Engine:    engine,
		Notifier:  hub,
	})
	if err != nil {
		log.Fatalf("failed to build capture service: %v", err)
	}
	server := httpapi.NewServerWithConfig(svc, engine, hub, httpapi.ServerConfig{
		APIToken:     strings.TrimSpace(os.Getenv("WEBSTASH_API_TOKEN")),
		StoreKind:    storeKind(queueDSN),
		MaxBodyBytes: int64Env("WEBSTASH_MAX_BODY_BYTES", 0),
	})

	// Intents that survived a restart should not wait for the first tick.
	engine.Kick()

	log.Printf("webstash listening on %s (queue=%s)", addr, storeKind(queueDSN))
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// buildGateway turns a credential pair into a live gateway and makes
// sure the remote schema exists before the first drain uses it.
func buildGateway(c outbox.Credentials) (remote.Gateway, error) {
	gw, err := remote.BuildGatewayFromDSN(c.GatewayURL, c.AuthToken)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := remote.EnsureSchema(ctx, gw); err != nil {
		gw.Close()
		return nil, err
	}
	return gw, nil
}

func storeKind(dsn string) string {
	scheme, _, found := strings.Cut(dsn, "://")
	if !found {
		return "file"
	}
	return strings.ToLower(scheme)
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
