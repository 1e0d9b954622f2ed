package reservations_service_api

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const ServiceName = "reservations.v1.ReservationService"

type HoldRequest struct {
	Token    string  `json:"token"`
	PoolID   int64   `json:"pool_id"`
	Quantity int64   `json:"quantity"`
	UnitIDs  []int64 `json:"unit_ids,omitempty"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type PoolRequest struct {
	PoolID int64 `json:"pool_id"`
}

type Hold struct {
	Token     string    `json:"token"`
	PoolID    int64     `json:"pool_id"`
	Quantity  int64     `json:"quantity"`
	UnitIDs   []int64   `json:"unit_ids,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type HoldReply struct {
	Hold     *Hold `json:"hold"`
	Replayed bool  `json:"replayed,omitempty"`
}

type ReleaseReply struct{}

type PoolSnapshot struct {
	PoolID      int64  `json:"pool_id"`
	SlotID      int64  `json:"slot_id"`
	CategoryKey string `json:"category_key"`
	UnitTracked bool   `json:"unit_tracked"`
	Total       int64  `json:"total"`
	Available   int64  `json:"available"`
	Held        int64  `json:"held"`
	Sold        int64  `json:"sold"`
	Version     int64  `json:"version"`
}

type ReservationServiceServer interface {
	Hold(ctx context.Context, req *HoldRequest) (*HoldReply, error)
	Confirm(ctx context.Context, req *TokenRequest) (*HoldReply, error)
	Release(ctx context.Context, req *TokenRequest) (*ReleaseReply, error)
	Cancel(ctx context.Context, req *TokenRequest) (*HoldReply, error)
	GetHold(ctx context.Context, req *TokenRequest) (*HoldReply, error)
	GetPoolSnapshot(ctx context.Context, req *PoolRequest) (*PoolSnapshot, error)
}

// ServiceDesc describes the service for grpc.Server.RegisterService. Messages
// travel as JSON, see package grpcjson.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReservationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Hold", ReservationServiceServer.Hold),
		unary("Confirm", ReservationServiceServer.Confirm),
		unary("Release", ReservationServiceServer.Release),
		unary("Cancel", ReservationServiceServer.Cancel),
		unary("GetHold", ReservationServiceServer.GetHold),
		unary("GetPoolSnapshot", ReservationServiceServer.GetPoolSnapshot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reservations/v1/reservations.json",
}

func RegisterReservationServiceServer(s grpc.ServiceRegistrar, srv ReservationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(ReservationServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReservationServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReservationServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
