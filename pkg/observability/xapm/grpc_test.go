package xapm

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

var getOrderInfo = &grpc.UnaryServerInfo{FullMethod: "/shop.v1.Orders/Get"}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestUnaryServerInterceptor(t *testing.T) {
	a, tr := newTestAgent(t, testConfig())
	interceptor := UnaryServerInterceptor(a)

	var txID string
	resp, err := interceptor(incoming(xtrace.HeaderTraceparent, inboundSampled), "req", getOrderInfo,
		func(ctx context.Context, req any) (any, error) {
			ev := EventFromContext(ctx)
			require.NotNil(t, ev)
			txID = ev.ID()
			return "resp", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	tx := find(t, tr.docs(t, 0), "transaction", txID)
	assert.Equal(t, "/shop.v1.Orders/Get", tx["name"])
	assert.Equal(t, TypeRequest, tx["type"])
	assert.Equal(t, "OK", tx["result"])
	assert.Equal(t, inboundTraceID, tx["trace_id"])
	assert.Equal(t, inboundParent, tx["parent_id"])
}

func TestUnaryServerInterceptor_HandlerError(t *testing.T) {
	a, tr := newTestAgent(t, testConfig())
	interceptor := UnaryServerInterceptor(a)

	_, err := interceptor(context.Background(), nil, getOrderInfo,
		func(context.Context, any) (any, error) {
			return nil, status.Error(codes.NotFound, "no such order")
		})
	assert.Equal(t, codes.NotFound, status.Code(err))

	var kinds []string
	for _, d := range tr.docs(t, 0) {
		kinds = append(kinds, d.kind)
		if d.kind == "transaction" {
			assert.Equal(t, "NotFound", d.body["result"])
		}
	}
	assert.Equal(t, []string{"metadata", "error", "transaction"}, kinds)
}

func TestUnaryServerInterceptor_Panic(t *testing.T) {
	a, tr := newTestAgent(t, testConfig())
	interceptor := UnaryServerInterceptor(a)

	assert.Panics(t, func() {
		_, _ = interceptor(context.Background(), nil, getOrderInfo,
			func(context.Context, any) (any, error) { panic("bad") })
	})
	docs := tr.docs(t, 0)
	require.Len(t, docs, 3)
	assert.Equal(t, "Internal", docs[2].body["result"])
}

func TestUnaryServerInterceptor_TracestateOverflow(t *testing.T) {
	a, tr := newTestAgent(t, testConfig())
	interceptor := UnaryServerInterceptor(a)

	members := make([]string, 33)
	for i := range members {
		members[i] = fmt.Sprintf("k%d=v", i)
	}
	ctx := incoming(xtrace.HeaderTraceparent, inboundSampled, xtrace.HeaderTracestate, strings.Join(members, ","))
	called := false
	_, err := interceptor(ctx, nil, getOrderInfo, func(context.Context, any) (any, error) {
		called = true
		return nil, nil
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.False(t, called)
	assert.Equal(t, 0, tr.batchCount())
}

func TestUnaryClientInterceptor(t *testing.T) {
	a, tr := newTestAgent(t, testConfig())
	tracer := newTestTracer(t, a)
	tx, err := tracer.StartTransaction("t", "")
	require.NoError(t, err)
	ctx := ContextWithEvent(ContextWithTracer(context.Background(), tracer), tx)

	var outgoing metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		outgoing, _ = metadata.FromOutgoingContext(ctx)
		return status.Error(codes.Unavailable, "down")
	}
	err = UnaryClientInterceptor()(ctx, "/shop.v1.Stock/Reserve", nil, nil, nil, invoker)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	require.NotNil(t, outgoing)
	tp := outgoing.Get(xtrace.HeaderTraceparent)
	require.Len(t, tp, 1)
	assert.True(t, strings.HasPrefix(tp[0], "00-"+tracer.TraceContext().TraceID+"-"))

	require.NoError(t, tracer.Close(context.Background()))
	var span map[string]any
	for _, d := range tr.docs(t, 0) {
		if d.kind == "span" {
			span = d.body
		}
	}
	require.NotNil(t, span)
	assert.Contains(t, tp[0], span["id"].(string))
	assert.Equal(t, "external", span["type"])
	assert.Equal(t, "grpc", span["subtype"])
	assert.Equal(t, "call", span["action"])
	grpcCtx := span["context"].(map[string]any)["grpc"].(map[string]any)
	assert.Equal(t, "shop.v1.Stock/Reserve", grpcCtx["method"])
	assert.Equal(t, "Unavailable", grpcCtx["status_code"])
}

func TestUnaryClientInterceptor_NoTracer(t *testing.T) {
	called := false
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		called = true
		_, ok := metadata.FromOutgoingContext(ctx)
		assert.False(t, ok)
		return nil
	}
	require.NoError(t, UnaryClientInterceptor()(context.Background(), "/m", nil, nil, nil, invoker))
	assert.True(t, called)
}
