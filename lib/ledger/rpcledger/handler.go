// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpcledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/handoff/lib/ledger"
	"github.com/bureau-foundation/handoff/lib/netutil"
	"github.com/bureau-foundation/handoff/lib/ref"
)

// pendingWait is how long ledger_getTransaction waits on the backing
// ledger before answering "pending". Clients poll, so the handler never
// holds a request open for long.
const pendingWait = 50 * time.Millisecond

// NewHandler serves the JSON-RPC protocol in front of backend.
func NewHandler(backend ledger.Client, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &handler{backend: backend, logger: logger}
}

type handler struct {
	backend ledger.Client
	logger  *slog.Logger
}

func (h *handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rpc rpcRequest
	if err := netutil.DecodeRequest(request.Body, &rpc); err != nil {
		h.write(writer, rpcResponse{Version: "2.0", Error: &RPCError{Code: codeParseError, Message: err.Error()}})
		return
	}
	if rpc.Version != "2.0" {
		h.write(writer, rpcResponse{Version: "2.0", ID: rpc.ID, Error: &RPCError{Code: codeInvalidRequest, Message: "jsonrpc must be \"2.0\""}})
		return
	}

	result, err := h.dispatch(request.Context(), rpc)
	response := rpcResponse{Version: "2.0", ID: rpc.ID}
	if err != nil {
		response.Error = toRPCError(err)
		if response.Error.Code == codeInternal {
			h.logger.Error("ledger rpc failed", "method", rpc.Method, "error", err)
		}
	} else {
		encoded, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			response.Error = &RPCError{Code: codeInternal, Message: marshalErr.Error()}
		} else {
			response.Result = encoded
		}
	}
	h.write(writer, response)
}

func (h *handler) write(writer http.ResponseWriter, response rpcResponse) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(response); err != nil {
		h.logger.Warn("writing rpc response", "error", err)
	}
}

type paramError struct{ err error }

func (e *paramError) Error() string { return e.err.Error() }

func params(rpc rpcRequest, targets ...any) error {
	if len(rpc.Params) < len(targets) {
		return &paramError{fmt.Errorf("%s: got %d params, want %d", rpc.Method, len(rpc.Params), len(targets))}
	}
	for index, target := range targets {
		if err := json.Unmarshal(rpc.Params[index], target); err != nil {
			return &paramError{fmt.Errorf("%s: param %d: %w", rpc.Method, index, err)}
		}
	}
	return nil
}

func (h *handler) dispatch(ctx context.Context, rpc rpcRequest) (any, error) {
	switch rpc.Method {
	case methodSubmit:
		var signed ledger.SignedTransaction
		if err := params(rpc, &signed); err != nil {
			return nil, err
		}
		return h.backend.Submit(ctx, &signed)

	case methodGetTransaction:
		var digest ref.Digest
		var options ledger.WaitOptions
		if err := params(rpc, &digest, &options); err != nil {
			return nil, err
		}
		waitCtx, cancel := context.WithTimeout(ctx, pendingWait)
		defer cancel()
		result, err := h.backend.WaitForFinality(waitCtx, digest, options)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errPending
		}
		return result, err

	case methodGetObject:
		var id ref.ObjectID
		if err := params(rpc, &id); err != nil {
			return nil, err
		}
		return h.backend.GetObject(ctx, id)

	case methodDryRun:
		var txBytes []byte
		var sender ref.Address
		if err := params(rpc, &txBytes, &sender); err != nil {
			return nil, err
		}
		return h.backend.DryRun(ctx, txBytes, sender)
	}
	return nil, &RPCError{Code: codeMethodNotFound, Message: "unknown method " + rpc.Method}
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	var badParams *paramError
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &badParams):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, errPending):
		return &RPCError{Code: codePending, Message: "transaction pending"}
	case errors.Is(err, ledger.ErrRejected):
		return &RPCError{Code: codeRejected, Message: err.Error()}
	case errors.Is(err, ledger.ErrObjectNotFound):
		return &RPCError{Code: codeObjectNotFound, Message: err.Error()}
	}
	return &RPCError{Code: codeInternal, Message: err.Error()}
}
