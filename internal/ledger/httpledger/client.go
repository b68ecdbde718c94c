// Package httpledger is the client side of the ledger daemon. Requests are
// signed with Epistula headers, bounded by a per-attempt timeout and retried
// with exponential backoff on transport failures and 5xx responses.
package httpledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/ledger"
	"fedauction/internal/scoring"

	"github.com/cenkalti/backoff/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/shopspring/decimal"
	"github.com/subtrahend-labs/gobt/boilerplate"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL string
	Keypair signature.KeyringPair
	// Receiver is the daemon's address. Empty means ask the daemon.
	Receiver string

	Timeout         time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	HTTPClient      *http.Client
	Log             *zap.SugaredLogger
}

type Client struct {
	baseURL    string
	kp         signature.KeyringPair
	timeout    time.Duration
	maxRetries uint64
	initial    time.Duration
	http       *http.Client
	log        *zap.SugaredLogger

	// shared between copies made by WithKeypair
	recv *receiver
}

type receiver struct {
	mu      sync.Mutex
	address string
}

var _ ledger.Ledger = (*Client)(nil)

func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		kp:         cfg.Keypair,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		initial:    cfg.InitialInterval,
		http:       cfg.HTTPClient,
		log:        cfg.Log,
		recv:       &receiver{address: cfg.Receiver},
	}
	if c.timeout == 0 {
		c.timeout = 30 * time.Second
	}
	if c.initial == 0 {
		c.initial = 200 * time.Millisecond
	}
	if c.http == nil {
		c.http = &http.Client{Transport: &http.Transport{
			TLSHandshakeTimeout: 5 * time.Second,
			MaxConnsPerHost:     10,
		}}
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	return c
}

// WithKeypair returns a client that signs as kp, for calls a worker has to
// make under its own key.
func (c *Client) WithKeypair(kp signature.KeyringPair) ledger.Ledger {
	cp := *c
	cp.kp = kp
	return &cp
}

func (c *Client) receiver(ctx context.Context) (string, error) {
	c.recv.mu.Lock()
	defer c.recv.mu.Unlock()
	if c.recv.address != "" {
		return c.recv.address, nil
	}
	var info ledger.InfoResponse
	if err := c.retry(ctx, func(ctx context.Context) error {
		return c.send(ctx, http.MethodGet, ledger.RouteInfo, nil, nil, &info)
	}); err != nil {
		return "", fmt.Errorf("failed resolving ledger address: %w", err)
	}
	c.recv.address = info.Address
	return info.Address, nil
}

func (c *Client) do(ctx context.Context, method, route string, in, out any) error {
	body := []byte{}
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", route, err)
		}
	}
	recv, err := c.receiver(ctx)
	if err != nil {
		return err
	}
	return c.retry(ctx, func(ctx context.Context) error {
		// fresh headers per attempt, the daemon rejects reused uuids
		headers, err := boilerplate.GetEpistulaHeaders(c.kp, recv, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed generating epistula headers: %w", err))
		}
		return c.send(ctx, method, route, headers, body, out)
	})
}

func (c *Client) retry(ctx context.Context, op func(context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initial
	var b backoff.BackOff = eb
	b = backoff.WithMaxRetries(b, c.maxRetries)
	b = backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (c *Client) send(ctx context.Context, method, route string, headers map[string]string, body []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnw("Ledger request failed", "route", route, "error", err)
		return fmt.Errorf("failed sending request to ledger: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed reading ledger response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.log.Warnw("Ledger returned server error", "route", route, "status", resp.StatusCode)
		return decodeError(resp.StatusCode, data)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return backoff.Permanent(decodeError(resp.StatusCode, data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed decoding %s response: %w", route, err))
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var e ledger.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Code == "" {
		return fmt.Errorf("%w: status %d", ledger.ErrInternal, status)
	}
	return ledger.FromCode(e.Code, e.Error)
}

func (c *Client) Deploy(ctx context.Context) (string, error) {
	var resp ledger.DeployResponse
	if err := c.do(ctx, http.MethodPost, ledger.RouteDeploy, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) InitializeTask(ctx context.Context, p ledger.TaskParams) error {
	return c.do(ctx, http.MethodPost, ledger.RouteInit, p, nil)
}

func (c *Client) Join(ctx context.Context, address string) error {
	return c.do(ctx, http.MethodPost, ledger.RouteJoin, ledger.JoinRequest{Address: address}, nil)
}

func (c *Client) StartTask(ctx context.Context) (int, error) {
	var resp ledger.StartResponse
	if err := c.do(ctx, http.MethodPost, ledger.RouteStart, struct{}{}, &resp); err != nil {
		return 0, err
	}
	return resp.Workers, nil
}

func (c *Client) SubmitScores(ctx context.Context, round uint64, evaluator int, v scoring.ScoreVector) error {
	req := ledger.ScoresRequest{Round: round, Evaluator: evaluator, Scores: v}
	return c.do(ctx, http.MethodPost, ledger.RouteScores, req, nil)
}

func (c *Client) ScoreMatrix(ctx context.Context, round uint64) ([]scoring.ScoreVector, error) {
	var resp ledger.ScoreMatrixResponse
	route := fmt.Sprintf("%s/%d", ledger.RouteScores, round)
	if err := c.do(ctx, http.MethodGet, route, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *Client) ReverseAuction(ctx context.Context, req auction.Request) error {
	return c.do(ctx, http.MethodPost, ledger.RouteAuction, req, nil)
}

func (c *Client) WorkerScores(ctx context.Context) ([]auction.Entry, error) {
	var resp ledger.EntriesResponse
	if err := c.do(ctx, http.MethodGet, ledger.RouteWorkers, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) Committee(ctx context.Context) ([]auction.Entry, error) {
	var resp ledger.EntriesResponse
	if err := c.do(ctx, http.MethodGet, ledger.RouteCommittee, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) DistributeRewards(ctx context.Context) ([]auction.Allocation, error) {
	var resp ledger.DistributeResponse
	if err := c.do(ctx, http.MethodPost, ledger.RouteDistribute, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Allocations, nil
}

func (c *Client) VerifyRound(ctx context.Context, h commitment.Hash) (bool, error) {
	var resp ledger.VerifyResponse
	if err := c.do(ctx, http.MethodPost, ledger.RouteVerify, ledger.VerifyRequest{Hash: h}, &resp); err != nil {
		return false, err
	}
	return resp.Match, nil
}

func (c *Client) NextRound(ctx context.Context) (uint64, error) {
	var resp ledger.RoundResponse
	if err := c.do(ctx, http.MethodPost, ledger.RouteNext, struct{}{}, &resp); err != nil {
		return 0, err
	}
	return resp.Round, nil
}

func (c *Client) Round(ctx context.Context) (uint64, error) {
	var resp ledger.RoundResponse
	if err := c.do(ctx, http.MethodGet, ledger.RouteRound, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Round, nil
}

func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var resp ledger.BalancesResponse
	if err := c.do(ctx, http.MethodGet, ledger.RouteBalances, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Balances == nil {
		resp.Balances = map[string]decimal.Decimal{}
	}
	return resp.Balances, nil
}
