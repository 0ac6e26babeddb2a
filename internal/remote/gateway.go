package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNoRows         = errors.New("no rows")
	ErrNotImplemented = errors.New("not implemented")
)

// Dialect identifies the SQL flavor a gateway speaks. The outbox was
// designed against the sqlite dialect, so sqlite is also what the HTTP
// pipeline gateway reports.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Statement is one parameterized SQL statement. Placeholders are
// written as "?" regardless of backend; the postgres path rebinds.
type Statement struct {
	SQL  string
	Args []any
}

// Result holds the rows a statement produced. A statement with a
// RETURNING clause yields the generated identifier in the first row.
type Result struct {
	Rows [][]any
}

// Gateway executes single statements and atomic multi-statement
// batches against the remote store.
type Gateway interface {
	Execute(ctx context.Context, stmt Statement) (Result, error)
	Batch(ctx context.Context, stmts []Statement) error
	Dialect() Dialect
	Close() error
}

// FirstID extracts an integer identifier from the first cell of the
// first row. The HTTP gateway decodes JSON numbers, so float64 and
// decimal strings are accepted alongside int64.
func (r Result) FirstID() (int64, bool) {
	if len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return 0, false
	}
	return toInt64(r.Rows[0][0])
}

func toInt64(v any) (int64, bool) {
	switch value := v.(type) {
	case int64:
		return value, true
	case int:
		return int64(value), true
	case float64:
		return int64(value), true
	case []byte:
		parsed, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// BuildGatewayFromDSN selects a gateway implementation by DSN scheme:
// postgres:// uses lib/pq, file: and sqlite: use the embedded sqlite
// driver, and http(s):// or libsql:// speak the pipeline protocol with
// the given bearer token.
func BuildGatewayFromDSN(dsn, authToken string) (Gateway, error) {
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
	case "postgres", "postgresql":
		return NewSQLGateway("postgres", dsn, DialectPostgres)
	case "", "file", "sqlite":
		path := dsn
		if scheme != "" {
			path = strings.TrimPrefix(dsn, scheme+":")
			path = strings.TrimPrefix(path, "//")
		}
		if strings.TrimSpace(path) == "" {
			return nil, ErrInvalidInput
		}
		return NewSQLGateway("sqlite", path, DialectSQLite)
	case "http", "https":
		return NewHTTPGateway(HTTPGatewayOptions{BaseURL: dsn, AuthToken: authToken}), nil
	case "libsql":
		base := "https://" + strings.TrimPrefix(dsn, "libsql://")
		return NewHTTPGateway(HTTPGatewayOptions{BaseURL: base, AuthToken: authToken}), nil
	default:
		return nil, fmt.Errorf("unsupported gateway scheme: %s", scheme)
	}
}

// rebind rewrites "?" placeholders to "$1..$n" for postgres. Question
// marks inside quoted literals are left alone.
func rebind(query string, dialect Dialect) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
