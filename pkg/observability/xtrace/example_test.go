package xtrace_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omeyang/xapm/pkg/observability/xtrace"
)

func ExampleCodec() {
	codec := xtrace.NewCodec()

	in := http.Header{}
	in.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	in.Add("tracestate", "rojo=00f067aa0ba902b7")
	in.Add("tracestate", "congo=t61rcWkgMzE")

	tc, err := codec.Extract(context.Background(), xtrace.HeaderCarrier(in))
	if err != nil {
		panic(err)
	}
	fmt.Println("valid:", tc.Valid)
	fmt.Println("trace-id:", tc.TraceID)
	fmt.Println("parent-id:", tc.ParentID)
	fmt.Println("record:", tc.IsRecordRequest())

	// 下一跳的 parent-id 是当前 span 的 id
	out := http.Header{}
	codec.Inject(xtrace.HeaderCarrier(out), tc, "00f067aa0ba902b7")
	fmt.Println("traceparent:", out.Get("traceparent"))
	fmt.Println("tracestate:", out.Get("tracestate"))

	// Output:
	// valid: true
	// trace-id: 0af7651916cd43dd8448eb211c80319c
	// parent-id: b7ad6b7169203331
	// record: true
	// traceparent: 00-0af7651916cd43dd8448eb211c80319c-00f067aa0ba902b7-01
	// tracestate: rojo=00f067aa0ba902b7,congo=t61rcWkgMzE
}

func ExampleTracestate_Add() {
	ts, err := xtrace.ParseTracestate("rojo=00f067aa0ba902b7,congo=t61rcWkgMzE")
	if err != nil {
		panic(err)
	}
	// 已有的 key 移到最前
	ts.Add("congo", "ucfJifl5GOE")
	fmt.Println(ts.String())

	// 非 ASCII 的值不合法
	fmt.Println(ts.Add("vendor", "é"))

	// Output:
	// congo=ucfJifl5GOE,rojo=00f067aa0ba902b7
	// false
}
