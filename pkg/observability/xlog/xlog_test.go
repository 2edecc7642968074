package xlog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xapm/pkg/context/xctx"
	"github.com/omeyang/xapm/pkg/observability/xlog"
)

func buildJSON(t *testing.T, buf *bytes.Buffer, b *xlog.Builder) xlog.LoggerWithLevel {
	t.Helper()
	logger, cleanup, err := b.SetOutput(buf).SetFormat("json").Build()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, cleanup()) })
	return logger
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := buildJSON(t, &buf, xlog.New().SetLevel(xlog.LevelDebug))
	ctx := context.Background()

	logger.Debug(ctx, "d")
	logger.Info(ctx, "i")
	logger.Warn(ctx, "w")
	logger.Error(ctx, "e")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.Equal(t, "ERROR", lines[3]["level"])
}

func TestLogger_DynamicLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := buildJSON(t, &buf, xlog.New())
	ctx := context.Background()

	logger.Debug(ctx, "hidden")
	assert.Empty(t, buf.String())
	assert.False(t, logger.Enabled(ctx, xlog.LevelDebug))

	logger.SetLevel(xlog.LevelDebug)
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())
	logger.Debug(ctx, "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_EnrichFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := buildJSON(t, &buf, xlog.New())

	ctx, err := xctx.WithTrace(context.Background(), xctx.Trace{
		TraceID:       "0af7651916cd43dd8448eb211c80319c",
		SpanID:        "b9c7c989f97918e1",
		TransactionID: "a1a1a1a1a1a1a1a1",
	})
	require.NoError(t, err)

	logger.Info(ctx, "hello", xlog.EventType("span"))
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", lines[0][xctx.KeyTraceID])
	assert.Equal(t, "b9c7c989f97918e1", lines[0][xctx.KeySpanID])
	assert.Equal(t, "a1a1a1a1a1a1a1a1", lines[0][xctx.KeyTransactionID])
	assert.Equal(t, "span", lines[0][xlog.KeyEventType])
}

func TestLogger_EnrichDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := buildJSON(t, &buf, xlog.New().SetEnrich(false))
	ctx, err := xctx.WithTraceID(context.Background(), "0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)

	logger.Info(ctx, "hello")
	assert.NotContains(t, buf.String(), xctx.KeyTraceID)
}

func TestLogger_ServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := buildJSON(t, &buf, xlog.New().SetService("checkout", "dev"))

	logger.With(slog.String("k", "v")).Info(context.Background(), "hello")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "checkout", lines[0][xlog.KeyServiceName])
	assert.Equal(t, "dev", lines[0][xlog.KeyEnvironment])
	assert.Equal(t, "v", lines[0]["k"])
}

func TestLogger_Stack(t *testing.T) {
	var buf bytes.Buffer
	logger := buildJSON(t, &buf, xlog.New())
	logger.Stack(context.Background(), "boom", xlog.Err(errors.New("bad")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "bad", lines[0][xlog.KeyError])
	assert.Contains(t, lines[0][xlog.KeyStack], "goroutine")
}

func TestLogger_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := buildJSON(t, &buf, xlog.New())
	logger.WithGroup("intake").Info(context.Background(), "x", xlog.Count(3))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	group, ok := lines[0]["intake"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 3, group[xlog.KeyCount], 0)
}

func TestBuilder_Errors(t *testing.T) {
	_, _, err := xlog.New().SetFormat("xml").Build()
	assert.Error(t, err)

	_, _, err = xlog.New().SetLevelString("verbose").Build()
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]xlog.Level{
		"debug": xlog.LevelDebug, "INFO": xlog.LevelInfo, " warning ": xlog.LevelWarn,
		"error": xlog.LevelError, "": xlog.LevelInfo,
	} {
		got, err := xlog.ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	var l xlog.Level
	require.NoError(t, l.UnmarshalText([]byte("warn")))
	assert.Equal(t, "WARN", l.String())

	assert.Equal(t, xlog.LevelDebug, xlog.AgentLevel(true))
	assert.Equal(t, xlog.LevelWarn, xlog.AgentLevel(false))
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, slog.Attr{}, xlog.Err(nil))
}

func TestGlobal(t *testing.T) {
	t.Cleanup(xlog.ResetDefault)

	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).Build()
	require.NoError(t, err)
	xlog.SetDefault(logger)
	xlog.SetDefault(nil)

	xlog.Warn(context.Background(), "global warn")
	assert.Contains(t, buf.String(), "global warn")
	assert.Same(t, logger, xlog.Default())
}

func TestDiscard(t *testing.T) {
	l := xlog.Discard()
	assert.NotPanics(t, func() {
		l.Error(context.Background(), "nothing")
		l.Stack(context.Background(), "nothing")
	})
}
