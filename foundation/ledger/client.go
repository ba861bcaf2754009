// Package ledger provides read access to the external block ledger and
// the transaction verification process built on top of it. The ledger is
// treated strictly as an oracle: blocks in, verdicts out.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// defaultRequestTimeout bounds any single call to a ledger endpoint.
const defaultRequestTimeout = 10 * time.Second

// ErrNoEndpoints is returned when a client is constructed without any
// ledger API endpoint to talk to.
var ErrNoEndpoints = errors.New("no ledger endpoints configured")

// Client provides access to the ledger REST API. Every request walks the
// configured endpoints in order until one succeeds, so a single flaky
// public node doesn't stall verification.
type Client struct {
	log       *zap.SugaredLogger
	endpoints []string
	http      *http.Client
}

// NewClient constructs a client for the specified set of ledger API
// endpoints. The first endpoint is the primary, the rest are fallbacks.
func NewClient(log *zap.SugaredLogger, endpoints []string) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	client := Client{
		log:       log,
		endpoints: endpoints,
		http: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}

	return &client, nil
}

// Tip returns the current tip marker of the ledger's block sequence.
func (c *Client) Tip(ctx context.Context) (string, error) {
	var resp struct {
		TipHashes []string `json:"tipHashes"`
	}

	if err := c.get(ctx, "/info/blockdag", nil, &resp); err != nil {
		return "", fmt.Errorf("query tip: %w", err)
	}

	if len(resp.TipHashes) == 0 {
		return "", errors.New("query tip: empty tipHashes")
	}

	return resp.TipHashes[0], nil
}

// BlockSet is the portion of a /blocks response the verifier needs: the
// ordered hash list for cursor advancement and the decoded blocks.
type BlockSet struct {
	BlockHashes []string
	Blocks      []Block
}

// BlocksSince returns the blocks reachable forward from the specified
// low hash.
func (c *Client) BlocksSince(ctx context.Context, lowHash string) (BlockSet, error) {
	var resp struct {
		BlockHashes []string          `json:"blockHashes"`
		Blocks      []json.RawMessage `json:"blocks"`
	}

	query := url.Values{
		"lowHash":       []string{lowHash},
		"includeBlocks": []string{"true"},
	}

	if err := c.get(ctx, "/blocks", query, &resp); err != nil {
		return BlockSet{}, fmt.Errorf("query blocks: %w", err)
	}

	set := BlockSet{
		BlockHashes: resp.BlockHashes,
		Blocks:      make([]Block, 0, len(resp.Blocks)),
	}

	for _, raw := range resp.Blocks {
		set.Blocks = append(set.Blocks, parseBlock(raw))
	}

	return set, nil
}

// get performs a GET against each endpoint in order and decodes the first
// successful response into v.
func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	var errs error

	for _, endpoint := range c.endpoints {
		u := endpoint + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Infow("ledger: endpoint failed", "endpoint", endpoint, "path", path, "ERROR", err)
			errs = errors.Join(errs, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			err := fmt.Errorf("endpoint %s: status %d", endpoint, resp.StatusCode)
			c.log.Infow("ledger: endpoint failed", "endpoint", endpoint, "path", path, "ERROR", err)
			errs = errors.Join(errs, err)
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		return nil
	}

	return fmt.Errorf("all endpoints failed: %w", errs)
}
