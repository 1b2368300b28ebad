package reservation_grpc

import (
	"context"
	"time"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const ServiceName = "railbooking.Reservation"

type ReservationServer interface {
	ComputeFare(context.Context, *ComputeFareRequest) (*api.FareResponse, error)
	Book(context.Context, *BookRequest) (*api.BookingResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*api.BookingResponse, error)
	CancelPassengers(context.Context, *CancelPassengersRequest) (*CancelPassengersReply, error)
}

func RegisterReservationServer(s grpc.ServiceRegistrar, srv ReservationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method into a grpc.MethodDesc handler.
func unary[Req any, Resp any](method string, call func(ReservationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReservationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReservationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReservationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ComputeFare", ReservationServer.ComputeFare),
		unary("Book", ReservationServer.Book),
		unary("GetStatus", ReservationServer.GetStatus),
		unary("CancelPassengers", ReservationServer.CancelPassengers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "railbooking/reservation.proto",
}

// LoggingInterceptor attaches a request-scoped logger, taking the id from the
// x-request-id metadata when the caller sends one.
func LoggingInterceptor(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = logger.WithRequestID(ctx, log, id)

		resp, err := handler(ctx, req)

		entry := logger.FromContext(ctx, log).WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       status.Code(err).String(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			entry.WithError(err).Warn("grpc request")
		} else {
			entry.Info("grpc request")
		}
		return resp, err
	}
}

// Client is a thin caller for the Reservation service using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *Client) ComputeFare(ctx context.Context, in *ComputeFareRequest, opts ...grpc.CallOption) (*api.FareResponse, error) {
	out := new(api.FareResponse)
	if err := c.invoke(ctx, "ComputeFare", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Book(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*api.BookingResponse, error) {
	out := new(api.BookingResponse)
	if err := c.invoke(ctx, "Book", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*api.BookingResponse, error) {
	out := new(api.BookingResponse)
	if err := c.invoke(ctx, "GetStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelPassengers(ctx context.Context, in *CancelPassengersRequest, opts ...grpc.CallOption) (*CancelPassengersReply, error) {
	out := new(CancelPassengersReply)
	if err := c.invoke(ctx, "CancelPassengers", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
