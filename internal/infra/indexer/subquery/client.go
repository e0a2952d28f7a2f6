// Package subquery implements the indexer client against a SubQuery-style
// GraphQL endpoint.
package subquery

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/machinebox/graphql"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/indexer"
)

const defaultTimeout = 15 * time.Second

// Client queries one chain deployment's SubQuery project.
type Client struct {
	gql   *graphql.Client
	chain domain.Chain
}

// NewClient creates a client for the given chain family. The chain picks
// which domain-event entity the project exposes.
func NewClient(chain domain.Chain, url string) *Client {
	httpClient := &http.Client{Timeout: defaultTimeout}
	return &Client{
		gql:   graphql.NewClient(url, graphql.WithHTTPClient(httpClient)),
		chain: chain,
	}
}

// bigUint decodes SubQuery's BigFloat scalars, which arrive as either JSON
// numbers or quoted strings.
type bigUint uint64

func (b *bigUint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("cannot parse %q as block number: %w", s, err)
		}
		v = uint64(f)
	}
	*b = bigUint(v)
	return nil
}

func parseStatus(s string) domain.OnChainStatus {
	if strings.EqualFold(s, "success") || s == "true" {
		return domain.OnChainSuccess
	}
	return domain.OnChainFailed
}

type transferNode struct {
	Amount        string  `json:"amount"`
	BlockNumber   bigUint `json:"blockNumber"`
	ExtrinsicHash string  `json:"extrinsicHash"`
	Fee           string  `json:"fee"`
	Timestamp     bigUint `json:"timestamp"`
	Status        string  `json:"status"`
	From          string  `json:"from"`
	To            string  `json:"to"`
}

func (n transferNode) toDomain() domain.Transfer {
	return domain.Transfer{
		Amount:        n.Amount,
		BlockNumber:   uint64(n.BlockNumber),
		ExtrinsicHash: n.ExtrinsicHash,
		Fee:           n.Fee,
		Timestamp:     uint64(n.Timestamp),
		Status:        parseStatus(n.Status),
		From:          n.From,
		To:            n.To,
	}
}

const depositsQuery = `
query ($address: String!, $from: BigFloat!, $to: BigFloat!) {
	transfers(filter: {
		to: {equalTo: $address},
		blockNumber: {greaterThan: $from, lessThanOrEqualTo: $to}
	}) {
		nodes { amount blockNumber extrinsicHash fee timestamp status from to }
	}
}`

const withdrawalsQuery = `
query ($address: String!, $from: BigFloat!, $to: BigFloat!) {
	transfers(filter: {
		from: {equalTo: $address},
		blockNumber: {greaterThan: $from, lessThanOrEqualTo: $to}
	}) {
		nodes { amount blockNumber extrinsicHash fee timestamp status from to }
	}
}`

// Domain-event queries alias the family-specific entity and attribute onto
// one shared node shape.
const crustEventsQuery = `
query ($address: String!, $from: BigFloat!, $to: BigFloat!) {
	events: storageOrders(filter: {
		account: {equalTo: $address},
		blockNumber: {greaterThan: $from, lessThanOrEqualTo: $to}
	}) {
		nodes { extrinsicHash blockNumber account status attribute: fileCid }
	}
}`

const peaqEventsQuery = `
query ($address: String!, $from: BigFloat!, $to: BigFloat!) {
	events: didAnchors(filter: {
		account: {equalTo: $address},
		blockNumber: {greaterThan: $from, lessThanOrEqualTo: $to}
	}) {
		nodes { extrinsicHash blockNumber account status attribute: didUri }
	}
}`

const heightQuery = `
query {
	_metadata { lastProcessedHeight }
}`

const extrinsicQuery = `
query ($hash: String!) {
	extrinsics(filter: {hash: {equalTo: $hash}}) {
		nodes { hash success blockNumber }
	}
}`

func (c *Client) rangeRequest(query, address string, fromBlock, toBlock uint64) *graphql.Request {
	req := graphql.NewRequest(query)
	req.Var("address", address)
	req.Var("from", fromBlock)
	req.Var("to", toBlock)
	return req
}

// GetDeposits returns transfers into address in (fromBlock, toBlock].
func (c *Client) GetDeposits(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transfer, error) {
	return c.transfers(ctx, c.rangeRequest(depositsQuery, address, fromBlock, toBlock))
}

// GetWithdrawals returns transfers out of address in (fromBlock, toBlock].
func (c *Client) GetWithdrawals(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transfer, error) {
	return c.transfers(ctx, c.rangeRequest(withdrawalsQuery, address, fromBlock, toBlock))
}

func (c *Client) transfers(ctx context.Context, req *graphql.Request) ([]domain.Transfer, error) {
	var resp struct {
		Transfers struct {
			Nodes []transferNode `json:"nodes"`
		} `json:"transfers"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", indexer.ErrUnavailable, err)
	}

	transfers := make([]domain.Transfer, 0, len(resp.Transfers.Nodes))
	for _, n := range resp.Transfers.Nodes {
		transfers = append(transfers, n.toDomain())
	}
	return transfers, nil
}

// GetDomainEvents returns the family-specific events for address.
func (c *Client) GetDomainEvents(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.DomainEvent, error) {
	query := crustEventsQuery
	kind := domain.EventStorageOrder
	attrName := "file_cid"
	if c.chain == domain.ChainPeaq {
		query = peaqEventsQuery
		kind = domain.EventDIDRegistry
		attrName = "did_uri"
	}

	var resp struct {
		Events struct {
			Nodes []struct {
				ExtrinsicHash string  `json:"extrinsicHash"`
				BlockNumber   bigUint `json:"blockNumber"`
				Account       string  `json:"account"`
				Status        string  `json:"status"`
				Attribute     string  `json:"attribute"`
			} `json:"nodes"`
		} `json:"events"`
	}
	if err := c.gql.Run(ctx, c.rangeRequest(query, address, fromBlock, toBlock), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", indexer.ErrUnavailable, err)
	}

	events := make([]domain.DomainEvent, 0, len(resp.Events.Nodes))
	for _, n := range resp.Events.Nodes {
		events = append(events, domain.DomainEvent{
			Kind:          kind,
			ExtrinsicHash: n.ExtrinsicHash,
			BlockNumber:   uint64(n.BlockNumber),
			Account:       n.Account,
			Status:        parseStatus(n.Status),
			Attributes:    map[string]string{attrName: n.Attribute},
		})
	}
	return events, nil
}

// GetBlockHeight returns the highest block the project has indexed.
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	var resp struct {
		Metadata struct {
			LastProcessedHeight bigUint `json:"lastProcessedHeight"`
		} `json:"_metadata"`
	}
	if err := c.gql.Run(ctx, graphql.NewRequest(heightQuery), &resp); err != nil {
		return 0, fmt.Errorf("%w: %v", indexer.ErrUnavailable, err)
	}
	return uint64(resp.Metadata.LastProcessedHeight), nil
}

// FindExtrinsic looks a single extrinsic up by hash.
func (c *Client) FindExtrinsic(ctx context.Context, hash string) (indexer.ExtrinsicStatus, error) {
	req := graphql.NewRequest(extrinsicQuery)
	req.Var("hash", hash)

	var resp struct {
		Extrinsics struct {
			Nodes []struct {
				Hash        string  `json:"hash"`
				Success     bool    `json:"success"`
				BlockNumber bigUint `json:"blockNumber"`
			} `json:"nodes"`
		} `json:"extrinsics"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return indexer.ExtrinsicStatus{}, fmt.Errorf("%w: %v", indexer.ErrUnavailable, err)
	}

	if len(resp.Extrinsics.Nodes) == 0 {
		return indexer.ExtrinsicStatus{}, nil
	}
	node := resp.Extrinsics.Nodes[0]
	return indexer.ExtrinsicStatus{
		Found:       true,
		Success:     node.Success,
		BlockNumber: uint64(node.BlockNumber),
	}, nil
}
