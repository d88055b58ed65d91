package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/governor"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

// Client is a typed client for the governor.v1.Governor service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. The connection is established lazily on the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message) error {
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return fromStatusError(err)
	}
	return nil
}

func (c *Client) directive(ctx context.Context, method string, in proto.Message) (governor.Directive, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, method, in, out); err != nil {
		return governor.Directive{}, err
	}

	var d governor.Directive
	if err := fromStruct(out, &d); err != nil {
		return governor.Directive{}, err
	}
	return d, nil
}

func (c *Client) OnUnitComplete(ctx context.Context, delta int64) (governor.Directive, error) {
	return c.directive(ctx, methodOnUnitComplete, wrapperspb.Int64(delta))
}

func (c *Client) BeforeLargeOutput(ctx context.Context, estimatedSize int64) (governor.Directive, error) {
	return c.directive(ctx, methodBeforeLargeOutput, wrapperspb.Int64(estimatedSize))
}

func (c *Client) Checkpoint(ctx context.Context, snap snapshot.Snapshot) (governor.Directive, error) {
	in, err := continuityToStruct(snap)
	if err != nil {
		return governor.Directive{}, err
	}
	return c.directive(ctx, methodCheckpoint, in)
}

func (c *Client) UpdateContinuity(ctx context.Context, snap snapshot.Snapshot) error {
	in, err := continuityToStruct(snap)
	if err != nil {
		return err
	}
	return c.invoke(ctx, methodUpdateContinuity, in, &emptypb.Empty{})
}

func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	return c.status(ctx, methodStatus)
}

func (c *Client) Reset(ctx context.Context) (DaemonStatus, error) {
	return c.status(ctx, methodReset)
}

func (c *Client) status(ctx context.Context, method string) (DaemonStatus, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, method, &emptypb.Empty{}, out); err != nil {
		return DaemonStatus{}, err
	}

	var status DaemonStatus
	if err := fromStruct(out, &status); err != nil {
		return DaemonStatus{}, err
	}
	return status, nil
}

// ReadLatest returns the latest snapshot of sessionID, or of the current session when it is empty.
func (c *Client) ReadLatest(ctx context.Context, sessionID core.SessionID) (snapshot.Snapshot, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, methodReadLatest, wrapperspb.String(string(sessionID)), out); err != nil {
		return snapshot.Snapshot{}, err
	}

	var snap snapshot.Snapshot
	if err := fromStruct(out, &snap); err != nil {
		return snapshot.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) Shutdown(ctx context.Context) (string, error) {
	out := &wrapperspb.StringValue{}
	if err := c.invoke(ctx, methodShutdown, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
