package reservations_service_api

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/service/reservation"
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type PoolReader interface {
	GetPoolSnapshot(ctx context.Context, poolID int64) (*domain.Snapshot, error)
}

// Server implements ReservationServiceServer on top of the reservation manager.
type Server struct {
	reservations reservation.UseCase
	pools        PoolReader
	logger       *slog.Logger
}

func NewServer(reservations reservation.UseCase, pools PoolReader, logger *slog.Logger) *Server {
	return &Server{reservations: reservations, pools: pools, logger: logger}
}

func (s *Server) Hold(ctx context.Context, req *HoldRequest) (*HoldReply, error) {
	res, err := s.reservations.Hold(ctx, reservation.HoldInput{
		Token:    req.Token,
		PoolID:   req.PoolID,
		Quantity: int(req.Quantity),
		UnitIDs:  req.UnitIDs,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &HoldReply{Hold: toPBHold(&res.Hold), Replayed: res.Replayed}, nil
}

func (s *Server) Confirm(ctx context.Context, req *TokenRequest) (*HoldReply, error) {
	h, err := s.reservations.Confirm(ctx, req.Token)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &HoldReply{Hold: toPBHold(h)}, nil
}

func (s *Server) Release(ctx context.Context, req *TokenRequest) (*ReleaseReply, error) {
	if err := s.reservations.Release(ctx, req.Token); err != nil {
		return nil, s.toStatus(err)
	}
	return &ReleaseReply{}, nil
}

func (s *Server) Cancel(ctx context.Context, req *TokenRequest) (*HoldReply, error) {
	h, err := s.reservations.Cancel(ctx, req.Token)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &HoldReply{Hold: toPBHold(h)}, nil
}

func (s *Server) GetHold(ctx context.Context, req *TokenRequest) (*HoldReply, error) {
	h, err := s.reservations.GetHold(ctx, req.Token)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &HoldReply{Hold: toPBHold(h)}, nil
}

func (s *Server) GetPoolSnapshot(ctx context.Context, req *PoolRequest) (*PoolSnapshot, error) {
	snap, err := s.pools.GetPoolSnapshot(ctx, req.PoolID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &PoolSnapshot{
		PoolID:      snap.PoolID,
		SlotID:      snap.SlotID,
		CategoryKey: snap.CategoryKey,
		UnitTracked: snap.UnitTracked,
		Total:       int64(snap.Total),
		Available:   int64(snap.Available),
		Held:        int64(snap.Held),
		Sold:        int64(snap.Sold),
		Version:     snap.Version,
	}, nil
}

func (s *Server) toStatus(err error) error {
	code := codeFor(err)
	if code == codes.Internal || code == codes.Unknown {
		s.logger.Error("reservation rpc failed", "error", err)
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrInsufficientCapacity),
		errors.Is(err, domain.ErrUnitUnavailable):
		return codes.ResourceExhausted
	case errors.Is(err, domain.ErrSlotClosed),
		errors.Is(err, domain.ErrHoldAlreadyConfirmed),
		errors.Is(err, domain.ErrCapacityBelowCommitted),
		errors.Is(err, domain.ErrUnitTracked):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrHoldNotFound),
		errors.Is(err, domain.ErrPoolNotFound),
		errors.Is(err, domain.ErrSlotNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrUnitNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrTokenRequired),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidSlot):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return codes.Aborted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func toPBHold(h *domain.Hold) *Hold {
	if h == nil {
		return nil
	}
	return &Hold{
		Token:     h.Token,
		PoolID:    h.PoolID,
		Quantity:  int64(h.Quantity),
		UnitIDs:   h.UnitIDs,
		Status:    string(h.Status),
		CreatedAt: h.CreatedAt,
		ExpiresAt: h.ExpiresAt,
	}
}

var _ ReservationServiceServer = (*Server)(nil)
