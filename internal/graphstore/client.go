// Package graphstore wraps the graph engine connection the orchestrator,
// retriever, and temporal layer all read and write through: one exported
// method per operation, errors wrapped with %w, and connection lifecycle
// handled transparently so callers never see a raw driver type.
package graphstore

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	graphcodeerrors "github.com/graphcode-dev/graphcode-server/internal/errors"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Client wraps a neo4j-go-driver session factory with retry and
// host-fallback policy.
type Client struct {
	mu                    sync.Mutex
	boltURI               string
	username              string
	password              string
	timeout               time.Duration
	driver                neo4j.DriverWithContext
	connected             bool
	bm25IndexKnownToExist bool
}

func NewClient(boltURI, username, password string, timeout time.Duration) *Client {
	return &Client{
		boltURI:  boltURI,
		username: username,
		password: password,
		timeout:  timeout,
	}
}

// Connect verifies connectivity by running a trivial query. On a
// host-unresolvable error against a configured non-localhost host, it falls
// back once to localhost on the same port and retries — the declared
// hostname sometimes only resolves inside a container network.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	driver, err := c.dial(ctx, c.boltURI)
	if err != nil {
		if isHostUnresolvable(err) {
			if fallbackURI, ok := localhostFallback(c.boltURI); ok {
				driver, err = c.dial(ctx, fallbackURI)
				if err == nil {
					c.boltURI = fallbackURI
				}
			}
		}
	}
	if err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeBackendNonTransient, "failed to connect to graph store").
			WithUnderlying(err).
			WithHint("check store.bolt_uri and that the graph engine is reachable")
	}

	c.driver = driver
	c.connected = true
	return nil
}

func (c *Client) dial(ctx context.Context, uri string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(c.username, c.password, ""))
	if err != nil {
		return nil, err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return driver, nil
}

// IsConnected reports whether Connect has already succeeded, without
// attempting a new connection — callers that can run in a degraded,
// store-offline mode use this to decide whether to skip store writes
// instead of paying for (and surfacing) a failed autoConnect.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close releases the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.driver.Close(ctx)
}

// autoConnect attempts to connect before any operation that arrives while
// disconnected, returning an error-valued result instead of panicking.
func (c *Client) autoConnect(ctx context.Context) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.Connect(ctx)
}

// QueryResult is the outcome of one executed statement.
type QueryResult struct {
	Rows  []map[string]any
	Error error
}

// ExecuteQuery sanitizes params (undefined/nil passthrough -> null), runs
// the statement, and retries exactly once with a fresh session on a
// transient error. Non-transient errors (syntax, constraint violations) are
// returned immediately without retry.
func (c *Client) ExecuteQuery(ctx context.Context, stmt types.Statement) QueryResult {
	if err := c.autoConnect(ctx); err != nil {
		return QueryResult{Error: err}
	}

	params := sanitizeParams(stmt.Params)

	rows, err := c.runOnce(ctx, stmt.Query, params)
	if err != nil && graphcodeerrors.IsTransient(err) {
		rows, err = c.runOnce(ctx, stmt.Query, params)
	}
	if err != nil {
		code := graphcodeerrors.CodeBackendNonTransient
		if graphcodeerrors.IsTransient(err) {
			code = graphcodeerrors.CodeBackendTransient
		}
		return QueryResult{Error: graphcodeerrors.NewByCode(code, "graph store query failed").WithUnderlying(err)}
	}
	return QueryResult{Rows: rows}
}

func (c *Client) runOnce(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	c.mu.Lock()
	driver := c.driver
	c.mu.Unlock()

	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecuteBatch runs statements sequentially; a failing statement is
// recorded in its own result but does not abort the remaining statements,
// and results are returned in input order.
func (c *Client) ExecuteBatch(ctx context.Context, stmts []types.Statement) []QueryResult {
	results := make([]QueryResult, len(stmts))
	for i, stmt := range stmts {
		results[i] = c.ExecuteQuery(ctx, stmt)
	}
	return results
}

func sanitizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return out
}

func isHostUnresolvable(err error) bool {
	var dnsErr *net.DNSError
	if ok := asDNSError(err, &dnsErr); ok {
		return dnsErr.IsNotFound || !dnsErr.IsTemporary
	}
	msg := err.Error()
	return strings.Contains(msg, "no such host") || strings.Contains(msg, "server misbehaving")
}

func asDNSError(err error, target **net.DNSError) bool {
	for err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok {
			*target = dnsErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// localhostFallback rewrites a bolt URI's host to localhost, keeping the
// scheme and port, and reports whether the host was actually non-local
// (falling back from localhost to itself would be pointless).
func localhostFallback(boltURI string) (string, bool) {
	schemeSep := strings.Index(boltURI, "://")
	if schemeSep < 0 {
		return "", false
	}
	scheme := boltURI[:schemeSep]
	rest := boltURI[schemeSep+3:]

	host := rest
	port := ""
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		host = rest[:i]
		port = rest[i:]
	}

	if host == "localhost" || host == "127.0.0.1" {
		return "", false
	}

	return fmt.Sprintf("%s://localhost%s", scheme, port), true
}
