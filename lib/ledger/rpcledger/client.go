// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpcledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/netutil"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// Config holds configuration for creating a Client.
type Config struct {
	// Endpoint is the node's JSON-RPC URL.
	Endpoint string

	// HTTPClient is used for all requests. If nil, a client with a
	// dedicated pooled transport is created.
	HTTPClient *http.Client

	// PollInterval is the first delay between finality polls. Later
	// delays grow exponentially up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	Logger *slog.Logger
}

// Client is a JSON-RPC ledger client. Safe for concurrent use.
type Client struct {
	endpoint        string
	httpClient      *http.Client
	pollInterval    time.Duration
	maxPollInterval time.Duration
	logger          *slog.Logger
	nextID          atomic.Uint64
}

var _ ledger.Client = (*Client)(nil)

// errPending marks a transaction the node has not finalized yet.
var errPending = errors.New("rpcledger: transaction pending")

// New creates a Client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("rpcledger: Endpoint is required")
	}
	if _, err := url.Parse(config.Endpoint); err != nil {
		return nil, fmt.Errorf("rpcledger: invalid Endpoint %q: %w", config.Endpoint, err)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		}}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	if config.MaxPollInterval < config.PollInterval {
		config.MaxPollInterval = 8 * config.PollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		endpoint:        strings.TrimRight(config.Endpoint, "/"),
		httpClient:      httpClient,
		pollInterval:    config.PollInterval,
		maxPollInterval: config.MaxPollInterval,
		logger:          logger,
	}, nil
}

// CloseIdleConnections closes idle pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Submit implements ledger.Client.
func (c *Client) Submit(ctx context.Context, tx *ledger.SignedTransaction) (ref.Digest, error) {
	var digest ref.Digest
	if err := c.call(ctx, methodSubmit, &digest, tx); err != nil {
		return ref.Digest{}, err
	}
	return digest, nil
}

// WaitForFinality implements ledger.Client. Pending transactions and
// transient failures are polled again with exponential backoff until
// ctx ends.
func (c *Client) WaitForFinality(ctx context.Context, digest ref.Digest, options ledger.WaitOptions) (*ledger.TransactionResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = c.maxPollInterval
	policy.MaxElapsedTime = 0

	var result ledger.TransactionResult
	polls := 0
	err := backoff.Retry(func() error {
		polls++
		err := c.call(ctx, methodGetTransaction, &result, digest, options)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errPending):
			return err
		case transient(err):
			c.logger.Warn("finality poll failed, retrying",
				"digest", digest.String(),
				"poll", polls,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return nil, fmt.Errorf("waiting for %s after %d polls: %w", digest, polls, ctxErr)
	}
	if err != nil {
		return nil, err
	}
	c.logger.Debug("transaction final", "digest", digest.String(), "polls", polls)
	return &result, nil
}

// GetObject implements ledger.Client.
func (c *Client) GetObject(ctx context.Context, id ref.ObjectID) (*ledger.ObjectState, error) {
	var state ledger.ObjectState
	if err := c.call(ctx, methodGetObject, &state, id); err != nil {
		return nil, err
	}
	return &state, nil
}

// DryRun implements ledger.Client.
func (c *Client) DryRun(ctx context.Context, txBytes []byte, sender ref.Address) (*ledger.DryRunResult, error) {
	var result ledger.DryRunResult
	if err := c.call(ctx, methodDryRun, &result, txBytes, sender); err != nil {
		return nil, err
	}
	return &result, nil
}

// transient reports whether a failed poll may succeed if repeated.
// Transport failures and server-side HTTP errors qualify. Node errors
// and client-side HTTP errors do not.
func transient(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= http.StatusInternalServerError || status.Code == http.StatusTooManyRequests
	}
	var transport *url.Error
	return errors.As(err, &transport)
}

// call performs one JSON-RPC round trip and decodes the result into
// out. Node error codes are mapped onto the ledger package sentinels.
func (c *Client) call(ctx context.Context, method string, out any, params ...any) error {
	request := rpcRequest{
		Version: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
	}
	for _, param := range params {
		encoded, err := json.Marshal(param)
		if err != nil {
			return fmt.Errorf("rpcledger: encoding %s params: %w", method, err)
		}
		request.Params = append(request.Params, encoded)
	}
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("rpcledger: encoding %s request: %w", method, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpcledger: creating %s request: %w", method, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("rpcledger: %s: %w", method, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return &StatusError{
			Method: method,
			Code:   httpResponse.StatusCode,
			Body:   netutil.ErrorBody(httpResponse.Body),
		}
	}

	var response rpcResponse
	if err := netutil.DecodeResponse(httpResponse.Body, &response); err != nil {
		return fmt.Errorf("rpcledger: %s: decoding response: %w", method, err)
	}
	if response.ID != request.ID {
		return fmt.Errorf("rpcledger: %s: response id %d does not match request id %d", method, response.ID, request.ID)
	}
	if response.Error != nil {
		switch response.Error.Code {
		case codeRejected:
			return fmt.Errorf("%w: %s", ledger.ErrRejected, response.Error.Message)
		case codeObjectNotFound:
			return fmt.Errorf("%w: %s", ledger.ErrObjectNotFound, response.Error.Message)
		case codePending:
			return errPending
		}
		return response.Error
	}
	if err := json.Unmarshal(response.Result, out); err != nil {
		return fmt.Errorf("rpcledger: %s: decoding result: %w", method, err)
	}
	return nil
}
