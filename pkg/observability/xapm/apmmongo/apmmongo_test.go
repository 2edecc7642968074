package apmmongo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/event"

	"github.com/omeyang/xapm/pkg/observability/xapm"
	"github.com/omeyang/xapm/pkg/observability/xintake"
	"github.com/omeyang/xapm/pkg/observability/xlog"
)

func setup(t *testing.T) (*xapm.Tracer, context.Context, *xintake.MemoryTransport) {
	t.Helper()
	cfg := xapm.DefaultConfig()
	cfg.ServiceName = "inventory"
	mem := xintake.NewMemoryTransport()
	agent, err := xapm.NewAgent(cfg, xapm.WithTransport(mem), xapm.WithLogger(xlog.Discard()))
	require.NoError(t, err)

	tracer, err := agent.NewTracer(context.Background(), nil)
	require.NoError(t, err)
	tx, err := tracer.StartTransaction("t", "")
	require.NoError(t, err)
	return tracer, xapm.ContextWithEvent(xapm.ContextWithTracer(context.Background(), tracer), tx), mem
}

func documents(t *testing.T, mem *xintake.MemoryTransport) map[string][]map[string]any {
	t.Helper()
	batches := mem.Batches()
	require.Len(t, batches, 1)
	out := map[string][]map[string]any{}
	sc := bufio.NewScanner(bytes.NewReader(batches[0]))
	sc.Buffer(nil, 1<<20)
	for sc.Scan() {
		var line map[string]map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		for k, v := range line {
			out[k] = append(out[k], v)
		}
	}
	return out
}

func started(t *testing.T, id int64, cmd bson.D) *event.CommandStartedEvent {
	t.Helper()
	raw, err := bson.Marshal(cmd)
	require.NoError(t, err)
	return &event.CommandStartedEvent{
		Command:      raw,
		DatabaseName: "shop",
		CommandName:  cmd[0].Key,
		RequestID:    id,
		ConnectionID: "localhost:27017[-1]",
	}
}

func finished(id int64, name string) event.CommandFinishedEvent {
	return event.CommandFinishedEvent{CommandName: name, DatabaseName: "shop", RequestID: id}
}

func TestMonitor_Succeeded(t *testing.T) {
	tracer, ctx, mem := setup(t)
	m := NewMonitor()

	m.Started(ctx, started(t, 7, bson.D{{Key: "find", Value: "orders"}, {Key: "filter", Value: bson.D{{Key: "paid", Value: true}}}}))
	m.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished(7, "find")})

	require.NoError(t, tracer.Close(context.Background()))
	docs := documents(t, mem)
	require.Len(t, docs["span"], 1)
	span := docs["span"][0]
	assert.Equal(t, "shop.orders.find", span["name"])
	assert.Equal(t, SpanType, span["type"])
	assert.Equal(t, Subtype, span["subtype"])
	assert.Equal(t, "find", span["action"])

	c := span["context"].(map[string]any)
	db := c["db"].(map[string]any)
	assert.Equal(t, "mongodb", db["type"])
	assert.Equal(t, "shop", db["instance"])
	assert.Contains(t, db["statement"], `"orders"`)
	assert.Equal(t, map[string]any{"address": "localhost:27017[-1]"}, c["destination"])
}

func TestMonitor_Failed(t *testing.T) {
	tracer, ctx, mem := setup(t)
	m := NewMonitor(WithStatement(false))

	m.Started(ctx, started(t, 9, bson.D{{Key: "insert", Value: "orders"}}))
	m.Failed(ctx, &event.CommandFailedEvent{
		CommandFinishedEvent: finished(9, "insert"),
		Failure:              errors.New("duplicate key"),
	})
	// 重复的完成事件被忽略
	m.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished(9, "insert")})

	require.NoError(t, tracer.Close(context.Background()))
	docs := documents(t, mem)
	require.Len(t, docs["span"], 1)
	require.Len(t, docs["error"], 1)
	assert.Equal(t, docs["span"][0]["id"], docs["error"][0]["parent_id"])
	assert.NotContains(t, docs["span"][0]["context"].(map[string]any)["db"], "statement")
}

func TestMonitor_InflightBounded(t *testing.T) {
	tracer, ctx, mem := setup(t)
	m := NewMonitor(WithMaxInflight(1))

	m.Started(ctx, started(t, 1, bson.D{{Key: "find", Value: "orders"}}))
	// 第二个命令挤掉第一个，后者的 span 立即结束
	m.Started(ctx, started(t, 2, bson.D{{Key: "find", Value: "users"}}))
	m.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished(1, "find")})
	m.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished(2, "find")})

	require.NoError(t, tracer.Close(context.Background()))
	docs := documents(t, mem)
	require.Len(t, docs["span"], 2)
	names := []any{docs["span"][0]["name"], docs["span"][1]["name"]}
	assert.ElementsMatch(t, []any{"shop.orders.find", "shop.users.find"}, names)
}

func TestMonitor_NoTracer(t *testing.T) {
	m := NewMonitor()
	m.Started(context.Background(), started(t, 1, bson.D{{Key: "ping", Value: 1}}))
	m.Succeeded(context.Background(), &event.CommandSucceededEvent{CommandFinishedEvent: finished(1, "ping")})
}

func TestSpanName(t *testing.T) {
	assert.Equal(t, "shop.orders.find", spanName(started(t, 1, bson.D{{Key: "find", Value: "orders"}})))
	assert.Equal(t, "shop.ping", spanName(started(t, 1, bson.D{{Key: "ping", Value: 1}})))
}
