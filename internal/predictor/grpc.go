package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region wire
const (
	serviceName   = "mdap.v1.Predictor"
	predictMethod = "/" + serviceName + "/Predict"
)

// PredictorService is the client side of the Predict RPC.
type PredictorService interface {
	Predict(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type predictorClient struct {
	cc grpc.ClientConnInterface
}

func (c *predictorClient) Predict(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, predictMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeContext converts a step context to the wire message. Domain values
// go through JSON so any JSON-marshalable state works.
func EncodeContext(in mdap.Context) (*structpb.Struct, error) {
	raw, err := json.Marshal(map[string]any{
		"run_id":        in.RunID,
		"step":          in.Step,
		"sample":        in.Sample,
		"state":         in.State,
		"previous_move": in.PreviousMove,
		"goal":          in.Goal,
	})
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}
	return structpb.NewStruct(m)
}

// DecodeContext is the inverse of EncodeContext. Numbers inside state and
// moves come back as float64.
func DecodeContext(s *structpb.Struct) mdap.Context {
	m := s.AsMap()
	in := mdap.Context{
		State:        m["state"],
		PreviousMove: m["previous_move"],
		Goal:         m["goal"],
	}
	in.RunID, _ = m["run_id"].(string)
	if f, ok := m["step"].(float64); ok {
		in.Step = int(f)
	}
	if f, ok := m["sample"].(float64); ok {
		in.Sample = int(f)
	}
	return in
}

// #endregion wire

// #region client
// GRPC calls a remote predictor service.
type GRPC struct {
	conn   *grpc.ClientConn
	client PredictorService
}

// NewGRPC connects to a predictor server at addr.
func NewGRPC(addr string, opts ...grpc.DialOption) (*GRPC, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPC{conn: conn, client: &predictorClient{cc: conn}}, nil
}

// NewGRPCWithService uses an injected client. Used for testing.
func NewGRPCWithService(svc PredictorService) *GRPC {
	return &GRPC{client: svc}
}

// Close shuts down the connection, if this client owns one.
func (g *GRPC) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}

// Predict implements mdap.Predictor.
func (g *GRPC) Predict(ctx context.Context, in mdap.Context) (string, error) {
	req, err := EncodeContext(in)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Predict(ctx, req)
	if err != nil {
		return "", fmt.Errorf("predict rpc: %w", err)
	}
	text, ok := resp.GetFields()["text"]
	if !ok {
		return "", fmt.Errorf("predict rpc: response has no text")
	}
	return text.GetStringValue(), nil
}

// #endregion client

// #region server
var predictorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*mdap.Predictor)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mdap/v1/predictor.proto",
}

// RegisterPredictorServer exposes p as the Predictor service on s.
func RegisterPredictorServer(s grpc.ServiceRegistrar, p mdap.Predictor) {
	s.RegisterService(&predictorServiceDesc, p)
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return servePredict(ctx, srv.(mdap.Predictor), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	return interceptor(ctx, in, info, handler)
}

func servePredict(ctx context.Context, p mdap.Predictor, req *structpb.Struct) (*structpb.Struct, error) {
	text, err := p.Predict(ctx, DecodeContext(req))
	if err != nil {
		code := codes.Internal
		switch {
		case errors.Is(err, hanoi.ErrNoMove):
			code = codes.FailedPrecondition
		case errors.Is(err, context.DeadlineExceeded):
			code = codes.DeadlineExceeded
		case errors.Is(err, context.Canceled):
			code = codes.Canceled
		}
		return nil, status.Error(code, err.Error())
	}
	return structpb.NewStruct(map[string]any{"text": text})
}

// #endregion server
