// Package substrate implements the chain provider against a Substrate
// node's JSON-RPC over HTTP.
package substrate

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

	"github.com/deweblabs/txrelay/internal/infra/chain"
)

const defaultTimeout = 10 * time.Second

// Provider talks to one Substrate node endpoint.
type Provider struct {
	endpoint   string
	httpClient *http.Client
}

// Dial connects a provider to endpoint and verifies the node responds.
func Dial(ctx context.Context, endpoint string) (chain.Provider, error) {
	p := &Provider{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	// system_chain is cheap and proves the endpoint is a live node.
	if _, err := p.call(ctx, "system_chain", []any{}); err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrUnavailable, err)
	}
	return p, nil
}

// Submit pushes a signed extrinsic. A JSON-RPC error means the node
// inspected and refused it; transport errors stay retryable.
func (p *Provider) Submit(ctx context.Context, rawTransaction string) error {
	_, err := p.call(ctx, "author_submitExtrinsic", []any{ensureHexPrefix(rawTransaction)})
	if err != nil {
		var rpcErr *rpcError
		if asRPCError(err, &rpcErr) {
			return fmt.Errorf("%w: %s", chain.ErrRejected, rpcErr.Message)
		}
		return fmt.Errorf("%w: %v", chain.ErrUnavailable, err)
	}
	return nil
}

// AccountNonce returns the next expected nonce for address.
func (p *Provider) AccountNonce(ctx context.Context, address string) (uint64, error) {
	result, err := p.call(ctx, "system_accountNextIndex", []any{address})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", chain.ErrUnavailable, err)
	}

	n, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected accountNextIndex result %T", result)
	}
	return uint64(n), nil
}

// Head returns the current chain head.
func (p *Provider) Head(ctx context.Context) (chain.Header, error) {
	hashResult, err := p.call(ctx, "chain_getBlockHash", []any{})
	if err != nil {
		return chain.Header{}, fmt.Errorf("%w: %v", chain.ErrUnavailable, err)
	}
	hash, ok := hashResult.(string)
	if !ok {
		return chain.Header{}, fmt.Errorf("unexpected getBlockHash result %T", hashResult)
	}

	headerResult, err := p.call(ctx, "chain_getHeader", []any{hash})
	if err != nil {
		return chain.Header{}, fmt.Errorf("%w: %v", chain.ErrUnavailable, err)
	}
	header, ok := headerResult.(map[string]any)
	if !ok {
		return chain.Header{}, fmt.Errorf("unexpected getHeader result %T", headerResult)
	}
	numberHex, ok := header["number"].(string)
	if !ok {
		return chain.Header{}, fmt.Errorf("header missing number field")
	}

	number, err := strconv.ParseUint(strings.TrimPrefix(numberHex, "0x"), 16, 64)
	if err != nil {
		return chain.Header{}, fmt.Errorf("failed to parse header number %q: %w", numberHex, err)
	}

	return chain.Header{Number: number, Hash: hash}, nil
}

// Close releases idle connections.
func (p *Provider) Close() {
	p.httpClient.CloseIdleConnections()
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func asRPCError(err error, target **rpcError) bool {
	e, ok := err.(*rpcError)
	if ok {
		*target = e
	}
	return ok
}

// call makes a single JSON-RPC call.
func (p *Provider) call(ctx context.Context, method string, params []any) (any, error) {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result any       `json:"result"`
		Error  *rpcError `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}
