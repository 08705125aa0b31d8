// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/bureau-foundation/handoff/lib/codec"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/session"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// Messages travel as CBOR inside protobuf BytesValue wrappers, so the
// service needs no generated code.

const serviceName = "handoff.keyserver.v1.KeyServer"

const (
	methodChallenge     = "/" + serviceName + "/Challenge"
	methodCreateSession = "/" + serviceName + "/CreateSession"
	methodRevoke        = "/" + serviceName + "/Revoke"
	methodFetchShare    = "/" + serviceName + "/FetchShare"
)

type challengeRequest struct {
	Address ref.Address `cbor:"1,keyasint"`
}

// keyServerService is the handler interface behind the service
// descriptor.
type keyServerService interface {
	Challenge(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	CreateSession(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Revoke(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	FetchShare(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// Register exposes server on registrar.
func Register(registrar grpc.ServiceRegistrar, server *Server) {
	registrar.RegisterService(&serviceDesc, &grpcService{server: server})
}

type grpcService struct {
	server *Server
}

func (g *grpcService) Challenge(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var request challengeRequest
	if err := codec.Unmarshal(in.GetValue(), &request); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding challenge request: %v", err)
	}
	challenge, err := g.server.Challenge(ctx, request.Address)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeReply(challenge)
}

func (g *grpcService) CreateSession(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var request session.Request
	if err := codec.Unmarshal(in.GetValue(), &request); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding session request: %v", err)
	}
	grant, err := g.server.CreateSession(ctx, &request)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(grant), nil
}

func (g *grpcService) Revoke(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := g.server.Revoke(ctx, in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(nil), nil
}

func (g *grpcService) FetchShare(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var request threshold.ShareRequest
	if err := codec.Unmarshal(in.GetValue(), &request); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding share request: %v", err)
	}
	reply, err := g.server.FetchShare(ctx, &request)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(reply), nil
}

func encodeReply(v any) (*wrapperspb.BytesValue, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, threshold.ErrDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

func fromStatus(err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", threshold.ErrDenied, status.Convert(err).Message())
	case codes.Unauthenticated:
		// Share requests treat an unusable grant as an explicit denial.
		return fmt.Errorf("%w: %w: %s", ErrUnauthenticated, threshold.ErrDenied, status.Convert(err).Message())
	default:
		return err
	}
}

func unaryHandler(method string, call func(keyServerService, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(keyServerService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(keyServerService), ctx, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*keyServerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Challenge", Handler: unaryHandler(methodChallenge, keyServerService.Challenge)},
		{MethodName: "CreateSession", Handler: unaryHandler(methodCreateSession, keyServerService.CreateSession)},
		{MethodName: "Revoke", Handler: unaryHandler(methodRevoke, keyServerService.Revoke)},
		{MethodName: "FetchShare", Handler: unaryHandler(methodFetchShare, keyServerService.FetchShare)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keyserver.proto",
}

// Client is a remote key server. It satisfies session.Server and
// threshold.ShareServer.
type Client struct {
	id string
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection to the key server with the given id.
func NewClient(id string, cc grpc.ClientConnInterface) *Client {
	return &Client{id: id, cc: cc}
}

// ID returns the server id.
func (c *Client) ID() string { return c.id }

func (c *Client) invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, method, wrapperspb.Bytes(payload), out); err != nil {
		return nil, fromStatus(err)
	}
	return out.GetValue(), nil
}

// Challenge requests a nonce for address.
func (c *Client) Challenge(ctx context.Context, address ref.Address) (*session.Challenge, error) {
	payload, err := codec.Marshal(challengeRequest{Address: address})
	if err != nil {
		return nil, err
	}
	reply, err := c.invoke(ctx, methodChallenge, payload)
	if err != nil {
		return nil, err
	}
	var challenge session.Challenge
	if err := codec.Unmarshal(reply, &challenge); err != nil {
		return nil, fmt.Errorf("keyserver: decoding challenge: %w", err)
	}
	return &challenge, nil
}

// CreateSession submits a signed challenge and returns the grant.
func (c *Client) CreateSession(ctx context.Context, request *session.Request) ([]byte, error) {
	payload, err := codec.Marshal(request)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, methodCreateSession, payload)
}

// Revoke invalidates grant on the server.
func (c *Client) Revoke(ctx context.Context, grant []byte) error {
	_, err := c.invoke(ctx, methodRevoke, grant)
	return err
}

// FetchShare requests the server's shares.
func (c *Client) FetchShare(ctx context.Context, request *threshold.ShareRequest) ([]byte, error) {
	payload, err := codec.Marshal(request)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, methodFetchShare, payload)
}
