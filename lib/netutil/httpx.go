// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP body I/O shared by the ledger
// JSON-RPC adapter and the provisioning API.
//
// Response helpers (ReadResponse, DecodeResponse, ErrorBody) bound reads
// at MaxResponseSize so a misbehaving ledger node cannot exhaust memory.
// DecodeRequest bounds inbound request bodies at MaxRequestSize and
// rejects unknown fields and trailing data, so a provisioning request
// is either exactly understood or refused.
package netutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response body reads: 64 MB. Ledger
// responses carrying full object-change lists are orders of magnitude
// smaller.
const MaxResponseSize int64 = 64 << 20

// MaxRequestSize bounds inbound JSON request bodies: 1 MB.
const MaxRequestSize int64 = 1 << 20

// ErrRequestTooLarge is returned by DecodeRequest when the body exceeds
// MaxRequestSize.
var ErrRequestTooLarge = errors.New("netutil: request body too large")

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON API response body (up to MaxResponseSize
// bytes) and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body and returns it as a string for
// diagnostic error messages. Read errors are silently ignored; a partial or
// empty body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}

// DecodeRequest strictly decodes one JSON value from an inbound request
// body into v.
func DecodeRequest(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxRequestSize+1))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(data)) > MaxRequestSize {
		return ErrRequestTooLarge
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("decoding request body: trailing data after JSON value")
	}
	return nil
}
