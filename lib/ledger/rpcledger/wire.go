// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpcledger

import (
	"encoding/json"
	"fmt"
)

const (
	methodSubmit         = "ledger_submitTransaction"
	methodGetTransaction = "ledger_getTransaction"
	methodGetObject      = "ledger_getObject"
	methodDryRun         = "ledger_dryRun"
)

// JSON-RPC error codes. The negative 32000 range is reserved by the
// JSON-RPC 2.0 specification for implementation-defined server errors.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603

	codeRejected       = -32002
	codeObjectNotFound = -32003
	codePending        = -32004
)

type rpcRequest struct {
	Version string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Version string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object returned by the node. Callers
// can use errors.As to inspect the code.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpcledger: rpc error %d: %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP response from the node.
type StatusError struct {
	Method string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpcledger: %s: unexpected HTTP %d: %s", e.Method, e.Code, e.Body)
}
