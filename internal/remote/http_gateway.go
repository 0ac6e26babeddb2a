package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPGatewayOptions struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// HTTPGateway speaks the libsql-style "/v2/pipeline" request/response
// protocol: each request carries a list of statements, each response a
// result or error per statement. The remote speaks the sqlite dialect.
type HTTPGateway struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPGateway(opts HTTPGatewayOptions) *HTTPGateway {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HTTPGateway{
		baseURL:    baseURL,
		authToken:  strings.TrimSpace(opts.AuthToken),
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (g *HTTPGateway) Dialect() Dialect {
	return DialectSQLite
}

func (g *HTTPGateway) Execute(ctx context.Context, stmt Statement) (Result, error) {
	results, err := g.pipeline(ctx, []Statement{stmt})
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("pipeline returned no results")
	}
	return results[0], nil
}

// Batch wraps the statements in BEGIN/COMMIT pipeline steps. The
// server rolls an uncommitted transaction back when the connection
// state is dropped, which gives the batch all-or-nothing semantics.
func (g *HTTPGateway) Batch(ctx context.Context, stmts []Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	wrapped := make([]Statement, 0, len(stmts)+2)
	wrapped = append(wrapped, Statement{SQL: "BEGIN"})
	wrapped = append(wrapped, stmts...)
	wrapped = append(wrapped, Statement{SQL: "COMMIT"})
	_, err := g.pipeline(ctx, wrapped)
	return err
}

func (g *HTTPGateway) Close() error {
	return nil
}

type pipelineRequest struct {
	Requests []pipelineStep `json:"requests"`
}

type pipelineStep struct {
	Type string        `json:"type"`
	Stmt *pipelineStmt `json:"stmt,omitempty"`
}

type pipelineStmt struct {
	SQL  string         `json:"sql"`
	Args []pipelineCell `json:"args,omitempty"`
}

type pipelineCell struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

type pipelineResponse struct {
	Results []pipelineResult `json:"results"`
}

type pipelineResult struct {
	Type     string `json:"type"`
	Response *struct {
		Result *struct {
			Rows [][]pipelineCell `json:"rows"`
		} `json:"result"`
	} `json:"response,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *HTTPGateway) pipeline(ctx context.Context, stmts []Statement) ([]Result, error) {
	if g == nil || g.baseURL == "" {
		return nil, ErrInvalidInput
	}
	steps := make([]pipelineStep, 0, len(stmts)+1)
	for _, stmt := range stmts {
		encoded, err := encodeStmt(stmt)
		if err != nil {
			return nil, err
		}
		steps = append(steps, pipelineStep{Type: "execute", Stmt: encoded})
	}
	steps = append(steps, pipelineStep{Type: "close"})
	bodyBytes, err := json.Marshal(pipelineRequest{Requests: steps})
	if err != nil {
		return nil, err
	}
	url := g.baseURL + "/v2/pipeline"

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if g.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+g.authToken)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			if attempt < g.maxRetries {
				if waitErr := sleepContext(ctx, g.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < g.maxRetries {
			if waitErr := sleepContext(ctx, g.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("pipeline request failed: status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		var parsed pipelineResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("malformed pipeline response: %w", err)
		}
		results := make([]Result, 0, len(stmts))
		for _, item := range parsed.Results {
			if item.Error != nil {
				return nil, fmt.Errorf("statement failed: %s", item.Error.Message)
			}
			if item.Response == nil || item.Response.Result == nil {
				continue
			}
			result := Result{}
			for _, row := range item.Response.Result.Rows {
				decoded := make([]any, 0, len(row))
				for _, cell := range row {
					decoded = append(decoded, decodeCell(cell))
				}
				result.Rows = append(result.Rows, decoded)
			}
			results = append(results, result)
		}
		return results, nil
	}
}

func encodeStmt(stmt Statement) (*pipelineStmt, error) {
	encoded := &pipelineStmt{SQL: stmt.SQL}
	for _, arg := range stmt.Args {
		switch value := arg.(type) {
		case nil:
			encoded.Args = append(encoded.Args, pipelineCell{Type: "null"})
		case int:
			encoded.Args = append(encoded.Args, pipelineCell{Type: "integer", Value: strconv.FormatInt(int64(value), 10)})
		case int64:
			encoded.Args = append(encoded.Args, pipelineCell{Type: "integer", Value: strconv.FormatInt(value, 10)})
		case float64:
			encoded.Args = append(encoded.Args, pipelineCell{Type: "float", Value: strconv.FormatFloat(value, 'g', -1, 64)})
		case bool:
			n := int64(0)
			if value {
				n = 1
			}
			encoded.Args = append(encoded.Args, pipelineCell{Type: "integer", Value: strconv.FormatInt(n, 10)})
		case string:
			encoded.Args = append(encoded.Args, pipelineCell{Type: "text", Value: value})
		default:
			return nil, fmt.Errorf("unsupported statement argument type %T", arg)
		}
	}
	return encoded, nil
}

func decodeCell(cell pipelineCell) any {
	switch cell.Type {
	case "null":
		return nil
	case "integer":
		parsed, err := strconv.ParseInt(cell.Value, 10, 64)
		if err != nil {
			return cell.Value
		}
		return parsed
	case "float":
		parsed, err := strconv.ParseFloat(cell.Value, 64)
		if err != nil {
			return cell.Value
		}
		return parsed
	default:
		return cell.Value
	}
}

func (g *HTTPGateway) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > g.maxDelay {
			return g.maxDelay
		}
		return retryAfter
	}
	delay := g.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= g.maxDelay {
			return g.maxDelay
		}
	}
	if delay > g.maxDelay {
		return g.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
