package outbox

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildQueueStoreFromDSN selects a queue store by scheme. Bare paths
// and file:// DSNs map to the JSON file store, memory:// to the
// in-memory store, postgres:// to the snapshot-row store.
func BuildQueueStoreFromDSN(dsn string) (QueueStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileQueueStore(path)
	case "memory", "mem", "inmem":
		return NewMemoryQueueStore(), nil
	case "postgres", "postgresql":
		return NewPostgresQueueStore(dsn)
	case "mysql", "sqlite":
		return nil, fmt.Errorf("%w: queue store %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported queue store scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed.Scheme == "" {
		return raw, nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = parsed.Host + path
	}
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
