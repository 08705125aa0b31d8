// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// NewGRPCServer returns a gRPC server with tracing installed and the
// key server service registered.
func NewGRPCServer(server *Server, options ...grpc.ServerOption) *grpc.Server {
	options = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, options...)
	grpcServer := grpc.NewServer(options...)
	Register(grpcServer, server)
	return grpcServer
}

// Dial opens a traced client connection to target. Transport
// credentials must be supplied in options.
func Dial(id, target string, options ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	options = append([]grpc.DialOption{grpc.WithStatsHandler(otelgrpc.NewClientHandler())}, options...)
	conn, err := grpc.NewClient(target, options...)
	if err != nil {
		return nil, nil, err
	}
	return NewClient(id, conn), conn, nil
}
