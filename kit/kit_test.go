package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != TransportHTTP {
		t.Errorf("default transport = %q, want http", GetTransport(ctx))
	}
	ctx = WithUserID(ctx, "usr_1")
	ctx = WithRequestID(ctx, "req_1")
	ctx = WithRemoteAddr(ctx, "10.0.0.1")
	ctx = WithTransport(ctx, TransportMCP)

	if GetUserID(ctx) != "usr_1" || GetRequestID(ctx) != "req_1" ||
		GetRemoteAddr(ctx) != "10.0.0.1" || GetTransport(ctx) != TransportMCP {
		t.Fatal("context values not preserved")
	}
}

func TestChain_Order(t *testing.T) {
	var trail []string
	tag := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				trail = append(trail, name)
				return next(ctx, req)
			}
		}
	}
	e := Chain(tag("a"), tag("b"), tag("c"))(func(_ context.Context, req any) (any, error) {
		trail = append(trail, "endpoint")
		return req, nil
	})
	if _, err := e(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(trail, ","); got != "a,b,c,endpoint" {
		t.Errorf("order = %s", got)
	}
}

func TestRequestID_KeepsExisting(t *testing.T) {
	var seen []string
	e := RequestID(func() string { return "generated" })(func(ctx context.Context, _ any) (any, error) {
		seen = append(seen, GetRequestID(ctx))
		return nil, nil
	})
	e(context.Background(), nil)
	e(WithRequestID(context.Background(), "inbound"), nil)
	if seen[0] != "generated" || seen[1] != "inbound" {
		t.Errorf("seen = %v", seen)
	}
}

func TestLogging_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("boom")
	e := Chain(WithTransportTag(TransportMCP), Logging(logger, "parse"))(func(context.Context, any) (any, error) {
		return nil, boom
	})
	if _, err := e(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "endpoint=parse") || !strings.Contains(out, "transport=mcp_stdio") || !strings.Contains(out, "error=boom") {
		t.Errorf("log output = %q", out)
	}
}

func TestMCPTool(t *testing.T) {
	srv := mcp.NewServer(&mcp.Implementation{Name: "kit-test", Version: "0"}, nil)
	MCPTool{
		Tool: &mcp.Tool{Name: "echo", InputSchema: map[string]any{"type": "object"}},
		Decode: func(args json.RawMessage) (any, error) {
			var v struct {
				Say string `json:"say"`
			}
			if err := json.Unmarshal(args, &v); err != nil {
				return nil, err
			}
			if v.Say == "" {
				return nil, errors.New("say is required")
			}
			return v.Say, nil
		},
		Endpoint: func(ctx context.Context, req any) (any, error) {
			if req == "fail" {
				return nil, errors.New("endpoint failed")
			}
			return map[string]string{"echo": req.(string), "transport": GetTransport(ctx)}, nil
		},
	}.Register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0"}, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	call := func(args map[string]any) *mcp.CallToolResult {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: args})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	res := call(map[string]any{"say": "hi"})
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if text := res.Content[0].(*mcp.TextContent).Text; text != `{"echo":"hi","transport":"mcp_stdio"}` {
		t.Errorf("result = %s", text)
	}

	res = call(map[string]any{})
	if !res.IsError || !strings.Contains(res.Content[0].(*mcp.TextContent).Text, "invalid arguments") {
		t.Errorf("decode failure not reported: %+v", res.Content)
	}
	res = call(map[string]any{"say": "fail"})
	if !res.IsError || res.Content[0].(*mcp.TextContent).Text != "endpoint failed" {
		t.Errorf("endpoint failure not reported: %+v", res.Content)
	}
}
