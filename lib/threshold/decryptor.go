// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package threshold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/handoff/lib/codec"
	"github.com/bureau-foundation/handoff/lib/sealed"
	"github.com/bureau-foundation/handoff/lib/secret"
)

// ErrDenied is returned by a [ShareServer] when the server evaluated
// the request and refused it. Transport failures must not wrap it.
var ErrDenied = errors.New("threshold: server denied share request")

// ShareRequest asks one server to release its shares of a ciphertext.
type ShareRequest struct {
	AccessID string `cbor:"1,keyasint"`

	// Grant is the session grant the server issued to the requester.
	Grant []byte `cbor:"2,keyasint"`

	// PolicyTx is the unsigned policy-proof transaction the server
	// dry-runs against the ledger.
	PolicyTx []byte `cbor:"3,keyasint"`

	// Sealed is the server's own slice of the ciphertext shares.
	Sealed []byte `cbor:"4,keyasint"`

	// ReplyRecipient is an age recipient generated for this request.
	// The server seals its opened shares to it.
	ReplyRecipient string `cbor:"5,keyasint"`
}

// ShareServer is a client for one decryption server.
type ShareServer interface {
	ID() string

	// FetchShare returns the server's shares sealed to
	// request.ReplyRecipient, or an error wrapping ErrDenied.
	FetchShare(ctx context.Context, request *ShareRequest) ([]byte, error)
}

// Grants supplies the per-server session grants.
type Grants interface {
	GrantFor(serverID string) ([]byte, bool)
}

// DecryptorConfig configures a Decryptor.
type DecryptorConfig struct {
	Servers []ShareServer

	// ServerTimeout bounds each individual server call. Zero means
	// only the caller's context applies.
	ServerTimeout time.Duration

	Logger *slog.Logger
}

// Decryptor recovers plaintext from a quorum of share servers.
type Decryptor struct {
	servers       map[string]ShareServer
	serverTimeout time.Duration
	logger        *slog.Logger
}

// NewDecryptor creates a Decryptor over the configured servers.
func NewDecryptor(config DecryptorConfig) *Decryptor {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	servers := make(map[string]ShareServer, len(config.Servers))
	for _, server := range config.Servers {
		servers[server.ID()] = server
	}
	return &Decryptor{servers: servers, serverTimeout: config.ServerTimeout, logger: logger}
}

type fetchResult struct {
	server string
	shares []Share
	denied bool
	err    error
}

// Decrypt asks every server holding shares of ciphertext for them in
// parallel and combines the first Threshold distinct share units to
// arrive. A ctx deadline that ends collection short of quorum is
// ErrQuorumUnreachable; cancellation is returned as such. The caller
// must close the returned buffer.
func (d *Decryptor) Decrypt(ctx context.Context, ciphertext *Ciphertext, grants Grants, policyTx []byte) (*secret.Buffer, error) {
	reply, err := sealed.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("threshold: generating reply key: %w", err)
	}
	defer reply.Close()
	replyIdentity, err := sealed.LoadIdentity(reply.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("threshold: loading reply key: %w", err)
	}

	fanoutCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	threshold := int(ciphertext.Threshold)
	results := make(chan fetchResult, len(ciphertext.Shares))
	launched := 0
	missing := 0
	for _, entry := range ciphertext.Shares {
		server, ok := d.servers[entry.Server]
		if !ok {
			d.logger.Warn("no client configured for share server", "server", entry.Server)
			missing++
			continue
		}
		grant, ok := grants.GrantFor(entry.Server)
		if !ok {
			d.logger.Warn("no session grant for share server", "server", entry.Server)
			missing++
			continue
		}
		request := &ShareRequest{
			AccessID:       ciphertext.AccessID,
			Grant:          grant,
			PolicyTx:       policyTx,
			Sealed:         entry.Sealed,
			ReplyRecipient: reply.PublicKey,
		}
		launched++
		go func() {
			results <- d.fetch(fanoutCtx, server, request, replyIdentity)
		}()
	}

	// collected holds distinct share units; a server repeating an id
	// does not move the run towards quorum.
	var collected []Share
	seen := make(map[string]bool)
	denied := 0
	for range launched {
		result := <-results
		switch {
		case result.denied:
			denied++
			d.logger.Info("share server denied request", "server", result.server, "error", result.err)
		case result.err != nil:
			missing++
			d.logger.Warn("share server unavailable", "server", result.server, "error", result.err)
		case len(result.shares) == 0:
			missing++
			d.logger.Warn("share server returned no shares", "server", result.server)
		default:
			for _, share := range result.shares {
				if seen[string(share.ID)] {
					d.logger.Warn("share server repeated a share", "server", result.server)
					continue
				}
				seen[string(share.ID)] = true
				collected = append(collected, share)
			}
		}
		if len(collected) >= threshold {
			// Stragglers write into the buffered channel and exit.
			cancel()
			break
		}
	}

	if len(collected) < threshold {
		err := ctx.Err()
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("threshold: collecting shares: %w", err)
		}
		if err != nil {
			// Short of quorum at the deadline; the cause is text only.
			return nil, fmt.Errorf("%w: %d share unit(s) of %d collected before the deadline (%v), %d refused",
				ErrQuorumUnreachable, len(collected), threshold, err, denied)
		}
		if denied > 0 {
			return nil, fmt.Errorf("%w: %d server(s) refused, %d share unit(s) of %d collected",
				ErrAccessDenied, denied, len(collected), threshold)
		}
		return nil, fmt.Errorf("%w: %d server(s) unreachable, %d share unit(s) of %d collected",
			ErrQuorumUnreachable, missing, len(collected), threshold)
	}
	return Combine(ciphertext, collected)
}

func (d *Decryptor) fetch(ctx context.Context, server ShareServer, request *ShareRequest, replyIdentity *sealed.Identity) fetchResult {
	result := fetchResult{server: server.ID()}
	if d.serverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.serverTimeout)
		defer cancel()
	}
	sealedReply, err := server.FetchShare(ctx, request)
	if err != nil {
		result.err = err
		result.denied = errors.Is(err, ErrDenied)
		return result
	}
	if len(sealedReply) == 0 {
		return result
	}
	plain, err := replyIdentity.Open(sealedReply)
	if err != nil {
		result.err = fmt.Errorf("opening reply: %w", err)
		return result
	}
	defer plain.Close()
	if err := codec.Unmarshal(plain.Bytes(), &result.shares); err != nil {
		result.err = fmt.Errorf("decoding reply: %w", err)
		result.shares = nil
	}
	return result
}

// SealReply is the server half of the reply protocol: it encodes
// shares and seals them to the requester's reply recipient.
func SealReply(shares []Share, replyRecipient string) ([]byte, error) {
	plain, err := codec.Marshal(shares)
	if err != nil {
		return nil, fmt.Errorf("threshold: encoding reply: %w", err)
	}
	defer secret.Zero(plain)
	return sealed.Seal(plain, replyRecipient)
}
