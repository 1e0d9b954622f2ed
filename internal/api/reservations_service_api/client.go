package reservations_service_api

import (
	"context"

	"github.com/Domenick1991/reservations/internal/api/grpcjson"
	"google.golang.org/grpc"
)

// Client calls ReservationService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Hold(ctx context.Context, in *HoldRequest, opts ...grpc.CallOption) (*HoldReply, error) {
	out := new(HoldReply)
	return out, c.invoke(ctx, "Hold", in, out, opts)
}

func (c *Client) Confirm(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*HoldReply, error) {
	out := new(HoldReply)
	return out, c.invoke(ctx, "Confirm", in, out, opts)
}

func (c *Client) Release(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*ReleaseReply, error) {
	out := new(ReleaseReply)
	return out, c.invoke(ctx, "Release", in, out, opts)
}

func (c *Client) Cancel(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*HoldReply, error) {
	out := new(HoldReply)
	return out, c.invoke(ctx, "Cancel", in, out, opts)
}

func (c *Client) GetHold(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*HoldReply, error) {
	out := new(HoldReply)
	return out, c.invoke(ctx, "GetHold", in, out, opts)
}

func (c *Client) GetPoolSnapshot(ctx context.Context, in *PoolRequest, opts ...grpc.CallOption) (*PoolSnapshot, error) {
	out := new(PoolSnapshot)
	return out, c.invoke(ctx, "GetPoolSnapshot", in, out, opts)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(grpcjson.Name)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
