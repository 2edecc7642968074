package xctx_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xapm/pkg/context/xctx"
)

func TestTraceFields(t *testing.T) {
	ctx := context.Background()
	var err error

	ctx, err = xctx.WithTraceID(ctx, "0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	ctx, err = xctx.WithSpanID(ctx, "b9c7c989f97918e1")
	require.NoError(t, err)
	ctx, err = xctx.WithTransactionID(ctx, "a1a1a1a1a1a1a1a1")
	require.NoError(t, err)
	ctx, err = xctx.WithTraceFlags(ctx, "01")
	require.NoError(t, err)

	assert.Equal(t, xctx.Trace{
		TraceID:       "0af7651916cd43dd8448eb211c80319c",
		SpanID:        "b9c7c989f97918e1",
		TransactionID: "a1a1a1a1a1a1a1a1",
		TraceFlags:    "01",
	}, xctx.GetTrace(ctx))
}

func TestNilContext(t *testing.T) {
	//nolint:staticcheck // 测试 nil context
	_, err := xctx.WithTraceID(nil, "x")
	assert.ErrorIs(t, err, xctx.ErrNilContext)

	//nolint:staticcheck // 测试 nil context
	assert.Empty(t, xctx.TraceID(nil))

	//nolint:staticcheck // 测试 nil context
	_, err = xctx.WithTrace(nil, xctx.Trace{TraceID: "x"})
	assert.ErrorIs(t, err, xctx.ErrNilContext)
}

func TestRequire(t *testing.T) {
	_, err := xctx.RequireTraceID(context.Background())
	assert.ErrorIs(t, err, xctx.ErrMissingTraceID)
	_, err = xctx.RequireSpanID(context.Background())
	assert.ErrorIs(t, err, xctx.ErrMissingSpanID)

	ctx, err := xctx.WithSpanID(context.Background(), "b9c7c989f97918e1")
	require.NoError(t, err)
	v, err := xctx.RequireSpanID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b9c7c989f97918e1", v)
}

func TestWithTrace_SkipsEmpty(t *testing.T) {
	ctx, err := xctx.WithTrace(context.Background(), xctx.Trace{TraceID: "t1", SpanID: "s1"})
	require.NoError(t, err)

	ctx, err = xctx.WithTrace(ctx, xctx.Trace{SpanID: "s2"})
	require.NoError(t, err)

	assert.Equal(t, "t1", xctx.TraceID(ctx))
	assert.Equal(t, "s2", xctx.SpanID(ctx))
}

func TestTraceAttrs(t *testing.T) {
	assert.Nil(t, xctx.TraceAttrs(context.Background()))

	ctx, err := xctx.WithTrace(context.Background(), xctx.Trace{TraceID: "t1", TraceFlags: "01"})
	require.NoError(t, err)
	assert.Equal(t, []slog.Attr{
		slog.String(xctx.KeyTraceID, "t1"),
		slog.String(xctx.KeyTraceFlags, "01"),
	}, xctx.TraceAttrs(ctx))
}
